package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

type knowledgeItemModel struct {
	ID        string   `gorm:"primaryKey;size:64"`
	Question  string   `gorm:"type:text"`
	Answer    string   `gorm:"type:text"`
	Answers   []string `gorm:"type:text;serializer:json"`
	Intent    string   `gorm:"size:64"`
	Category  string   `gorm:"size:64"`
	Tags      []string `gorm:"type:text;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (knowledgeItemModel) TableName() string {
	return "knowledge_items"
}

// knowledgeRepo accesses the knowledge_items table.
type knowledgeRepo struct {
	db *gorm.DB
}

// NewKnowledgeRepo returns a knowledge.Repo.
func NewKnowledgeRepo(db *gorm.DB) knowledge.Repo {
	return &knowledgeRepo{db: db}
}

func (r *knowledgeRepo) ListItems(ctx context.Context) ([]types.KnowledgeItem, error) {
	var records []knowledgeItemModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query knowledge items: %w", err)
	}
	items := make([]types.KnowledgeItem, 0, len(records))
	for _, record := range records {
		items = append(items, knowledgeItemFromModel(record))
	}
	return items, nil
}

func (r *knowledgeRepo) SaveItem(ctx context.Context, item types.KnowledgeItem) error {
	record := knowledgeItemToModel(item)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert knowledge item: %w", err)
	}
	return nil
}

func (r *knowledgeRepo) DeleteItem(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&knowledgeItemModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete knowledge item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return knowledge.ErrNotFound
	}
	return nil
}

func (r *knowledgeRepo) ClearItems(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&knowledgeItemModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear knowledge items: %w", err)
	}
	return nil
}

func knowledgeItemToModel(item types.KnowledgeItem) knowledgeItemModel {
	return knowledgeItemModel{
		ID:        item.ID,
		Question:  item.Question,
		Answer:    item.Answer,
		Answers:   item.Answers,
		Intent:    item.Intent,
		Category:  item.Category,
		Tags:      item.Tags,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func knowledgeItemFromModel(model knowledgeItemModel) types.KnowledgeItem {
	item := types.KnowledgeItem{
		ID:        model.ID,
		Question:  model.Question,
		Answer:    model.Answer,
		Answers:   model.Answers,
		Intent:    model.Intent,
		Category:  model.Category,
		Tags:      model.Tags,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	item.NormalizeAnswers()
	return item
}
