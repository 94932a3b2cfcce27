package types

import (
	"maps"
	"slices"
	"time"
)

// MaxRecentReplyHashes bounds UserState.RecentReplyHashes.
const MaxRecentReplyHashes = 40

// SessionState is the per-conversation decision state.
type SessionState struct {
	SessionID string `json:"session_id"`
	UserHash  string `json:"user_hash"`

	AddressPromptCount            int                  `json:"address_prompt_count"`
	SentAddressStores             []string             `json:"sent_address_stores"`
	AddressImageSentCount         int                  `json:"address_image_sent_count"`
	AddressImageLastSentAtByStore map[string]time.Time `json:"address_image_last_sent_at_by_store"`
	ContactImageSentCount         int                  `json:"contact_image_sent_count"`
	ContactImageLastSentAt        time.Time            `json:"contact_image_last_sent_at,omitzero"`
	KBContactImageCount           int                  `json:"kb_contact_image_count"`
	ContactWarmup                 bool                 `json:"contact_warmup"`
	ContactFollowupPromptCount    int                  `json:"contact_followup_prompt_count"`

	GeoFollowupRound   int    `json:"geo_followup_round"`
	GeoChoiceOffered   bool   `json:"geo_choice_offered"`
	LastGeoPending     bool   `json:"last_geo_pending"`
	LastTargetStore    string `json:"last_target_store"`
	LastRouteReason    string `json:"last_route_reason"`
	LastIntent         Intent `json:"last_intent"`
	LastReplyGoal      string `json:"last_reply_goal"`
	LastDetectedRegion string `json:"last_detected_region"`

	StrongIntentAfterBothCount int  `json:"strong_intent_after_both_count"`
	PurchaseBothFirstHintSent  bool `json:"purchase_both_first_hint_sent"`
	AfterSalesSessionLocked    bool `json:"after_sales_session_locked"`
	AfterSalesFollowupCount    int  `json:"after_sales_followup_count"`

	LogLedger MediaLedger `json:"log_ledger"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState returns a session with every collection initialized.
func NewSessionState(sessionID, userHash string, now time.Time) SessionState {
	return SessionState{
		SessionID:                     sessionID,
		UserHash:                      userHash,
		SentAddressStores:             []string{},
		AddressImageLastSentAtByStore: map[string]time.Time{},
		LogLedger:                     NewMediaLedger(),
		CreatedAt:                     now,
		UpdatedAt:                     now,
	}
}

// Normalize fills collections that an older snapshot may have left nil.
func (s *SessionState) Normalize() {
	if s.SentAddressStores == nil {
		s.SentAddressStores = []string{}
	}
	if s.AddressImageLastSentAtByStore == nil {
		s.AddressImageLastSentAtByStore = map[string]time.Time{}
	}
	if s.GeoFollowupRound < 0 {
		s.GeoFollowupRound = 0
	}
	s.LogLedger.Normalize()
}

// Clone returns a deep copy.
func (s SessionState) Clone() SessionState {
	out := s
	out.SentAddressStores = slices.Clone(s.SentAddressStores)
	out.AddressImageLastSentAtByStore = maps.Clone(s.AddressImageLastSentAtByStore)
	out.LogLedger = s.LogLedger.Clone()
	out.Normalize()
	return out
}

// BothImagesSent reports whether the session has delivered an address and a contact image.
func (s SessionState) BothImagesSent() bool {
	return s.AddressImageSentCount > 0 && s.ContactImageSentCount > 0
}

// UserState is the per-person state shared by every session of one user hash.
type UserState struct {
	UserHash              string    `json:"user_hash"`
	VideoArmed            bool      `json:"video_armed"`
	VideoSent             bool      `json:"video_sent"`
	PostContactReplyCount int       `json:"post_contact_reply_count"`
	RecentReplyHashes     []string  `json:"recent_reply_hashes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// NewUserState returns a user with defaults applied.
func NewUserState(userHash string, now time.Time) UserState {
	return UserState{
		UserHash:          userHash,
		RecentReplyHashes: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Normalize fills nil collections and enforces the hash bound.
func (u *UserState) Normalize() {
	if u.RecentReplyHashes == nil {
		u.RecentReplyHashes = []string{}
	}
	if n := len(u.RecentReplyHashes); n > MaxRecentReplyHashes {
		u.RecentReplyHashes = slices.Clone(u.RecentReplyHashes[n-MaxRecentReplyHashes:])
	}
	if u.PostContactReplyCount < 0 {
		u.PostContactReplyCount = 0
	}
}

// Clone returns a deep copy.
func (u UserState) Clone() UserState {
	out := u
	out.RecentReplyHashes = slices.Clone(u.RecentReplyHashes)
	out.Normalize()
	return out
}

// PushReplyHash appends hash as the newest entry, dropping the oldest past the bound.
func (u *UserState) PushReplyHash(hash string) {
	if hash == "" {
		return
	}
	u.RecentReplyHashes = append(u.RecentReplyHashes, hash)
	if n := len(u.RecentReplyHashes); n > MaxRecentReplyHashes {
		u.RecentReplyHashes = u.RecentReplyHashes[n-MaxRecentReplyHashes:]
	}
}

// HasReplyHash reports whether hash is among the recent replies.
func (u UserState) HasReplyHash(hash string) bool {
	return slices.Contains(u.RecentReplyHashes, hash)
}

// MediaLedger is the projection of a session's conversation log onto media
// send counters, valid up to byte Offset of the log file.
type MediaLedger struct {
	Offset int64 `json:"offset"`
	// TailDigest fingerprints the log bytes just before Offset. A mismatch
	// means the log was rewritten.
	TailDigest        string               `json:"tail_digest,omitempty"`
	AddressSentAt     map[string]time.Time `json:"address_sent_at"`
	AddressSentCount  int                  `json:"address_sent_count"`
	ContactSentCount  int                  `json:"contact_sent_count"`
	ContactLastSentAt time.Time            `json:"contact_last_sent_at,omitzero"`
	VideoSentCount    int                  `json:"video_sent_count"`
	// LastAttempt pairs a media_attempt with the media_result that follows it.
	LastAttempt map[MediaPlan]MediaItem `json:"last_attempt"`
}

// NewMediaLedger returns an empty ledger at offset zero.
func NewMediaLedger() MediaLedger {
	return MediaLedger{
		AddressSentAt: map[string]time.Time{},
		LastAttempt:   map[MediaPlan]MediaItem{},
	}
}

// Normalize fills nil maps.
func (l *MediaLedger) Normalize() {
	if l.AddressSentAt == nil {
		l.AddressSentAt = map[string]time.Time{}
	}
	if l.LastAttempt == nil {
		l.LastAttempt = map[MediaPlan]MediaItem{}
	}
	if l.Offset < 0 {
		l.Offset = 0
	}
}

// Clone returns a deep copy.
func (l MediaLedger) Clone() MediaLedger {
	out := l
	out.AddressSentAt = maps.Clone(l.AddressSentAt)
	out.LastAttempt = maps.Clone(l.LastAttempt)
	out.Normalize()
	return out
}
