package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/storefront-cs/internal/memory"
	"github.com/easeaico/storefront-cs/internal/types"
)

// sessionStateModel maps to the session_states table. The full state is kept
// as a JSON document; the indexed columns serve pruning and lookups.
type sessionStateModel struct {
	SessionID string             `gorm:"primaryKey;size:191"`
	UserHash  string             `gorm:"index;size:64"`
	Data      types.SessionState `gorm:"type:text;serializer:json"`
	UpdatedAt time.Time          `gorm:"index"`
}

func (sessionStateModel) TableName() string {
	return "session_states"
}

type userStateModel struct {
	UserHash  string          `gorm:"primaryKey;size:64"`
	Data      types.UserState `gorm:"type:text;serializer:json"`
	UpdatedAt time.Time       `gorm:"index"`
}

func (userStateModel) TableName() string {
	return "user_states"
}

// memoryRepo persists session and user state.
type memoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a memory.Repo.
func NewMemoryRepo(db *gorm.DB) memory.Repo {
	return &memoryRepo{db: db}
}

func (r *memoryRepo) Load(ctx context.Context) (memory.Snapshot, error) {
	var sessions []sessionStateModel
	if err := r.db.WithContext(ctx).Find(&sessions).Error; err != nil {
		return memory.Snapshot{}, fmt.Errorf("failed to query session states: %w", err)
	}
	var users []userStateModel
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return memory.Snapshot{}, fmt.Errorf("failed to query user states: %w", err)
	}

	snap := memory.Snapshot{
		Sessions: make(map[string]types.SessionState, len(sessions)),
		Users:    make(map[string]types.UserState, len(users)),
	}
	for _, m := range sessions {
		snap.Sessions[m.SessionID] = sessionStateFromModel(m)
	}
	for _, m := range users {
		snap.Users[m.UserHash] = userStateFromModel(m)
	}
	return snap, nil
}

func (r *memoryRepo) SaveSession(ctx context.Context, state types.SessionState) error {
	record := sessionStateModel{
		SessionID: state.SessionID,
		UserHash:  state.UserHash,
		Data:      state,
		UpdatedAt: state.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert session state: %w", err)
	}
	return nil
}

func (r *memoryRepo) SaveUser(ctx context.Context, state types.UserState) error {
	record := userStateModel{
		UserHash:  state.UserHash,
		Data:      state,
		UpdatedAt: state.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert user state: %w", err)
	}
	return nil
}

func (r *memoryRepo) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("session_id IN ?", ids).Delete(&sessionStateModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete session states: %w", err)
	}
	return nil
}

func (r *memoryRepo) DeleteUsers(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("user_hash IN ?", hashes).Delete(&userStateModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete user states: %w", err)
	}
	return nil
}

func sessionStateFromModel(model sessionStateModel) types.SessionState {
	state := model.Data
	state.SessionID = model.SessionID
	if state.UserHash == "" {
		state.UserHash = model.UserHash
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = model.UpdatedAt
	}
	state.Normalize()
	return state
}

func userStateFromModel(model userStateModel) types.UserState {
	state := model.Data
	state.UserHash = model.UserHash
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = model.UpdatedAt
	}
	state.Normalize()
	return state
}
