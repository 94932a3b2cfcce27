package memory

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

// LogReader is the read side of the conversation log.
type LogReader interface {
	Enabled() bool
	Size(sessionID string) int64
	ReadFrom(sessionID string, offset int64) ([]types.LogRecord, int64, error)
	TailDigest(sessionID string, offset int64) string
}

// Reconciler rebuilds a session's media counters from its conversation log.
type Reconciler struct {
	log          LogReader
	storeForPath func(path string) string
}

// NewReconciler returns a Reconciler. storeForPath classifies an address
// image path when the log record carries no target store; it may be nil.
func NewReconciler(log LogReader, storeForPath func(path string) string) *Reconciler {
	return &Reconciler{log: log, storeForPath: storeForPath}
}

// Active reports whether the log is available as a source of truth.
func (r *Reconciler) Active() bool {
	return r != nil && r.log != nil && r.log.Enabled()
}

// Reconcile folds unseen log records into the session ledger and overwrites
// the session counters with the ledger projection. It returns true when the
// persisted counters disagreed with the log.
func (r *Reconciler) Reconcile(state *types.SessionState) bool {
	if !r.Active() {
		return false
	}
	state.LogLedger.Normalize()

	offset := state.LogLedger.Offset
	size := r.log.Size(state.SessionID)
	switch {
	case size < offset:
		slog.Warn("conversation log shorter than verified offset, resetting media ledger",
			"session_id", state.SessionID, "offset", offset, "size", size)
		state.LogLedger = types.NewMediaLedger()
	case offset > 0 && r.log.TailDigest(state.SessionID, offset) != state.LogLedger.TailDigest:
		slog.Warn("conversation log rewritten before verified offset, resetting media ledger",
			"session_id", state.SessionID, "offset", offset)
		state.LogLedger = types.NewMediaLedger()
	}

	records, next, err := r.log.ReadFrom(state.SessionID, state.LogLedger.Offset)
	if err != nil {
		slog.Warn("failed to read conversation log", "session_id", state.SessionID, "error", err.Error())
	} else {
		for _, rec := range records {
			r.fold(&state.LogLedger, rec)
		}
		state.LogLedger.Offset = next
		state.LogLedger.TailDigest = r.log.TailDigest(state.SessionID, next)
	}

	before := counterView(*state)
	Project(state)
	after := counterView(*state)
	if before != after {
		slog.Warn("media counters corrected from conversation log",
			"session_id", state.SessionID, "before", before, "after", after)
		return true
	}
	return false
}

func (r *Reconciler) fold(ledger *types.MediaLedger, rec types.LogRecord) {
	switch rec.EventType {
	case types.EventMediaAttempt:
		var p types.MediaAttemptPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil || !p.Type.Valid() {
			return
		}
		ledger.LastAttempt[p.Type] = types.MediaItem{Type: p.Type, Path: p.Path, TargetStore: p.TargetStore}
	case types.EventMediaResult:
		var p types.MediaResultPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil || !p.Type.Valid() {
			return
		}
		attempt := ledger.LastAttempt[p.Type]
		delete(ledger.LastAttempt, p.Type)
		if !p.Success {
			return
		}
		if attempt.Type == "" {
			attempt.Type = p.Type
		}
		if attempt.Type == types.MediaAddressImage && attempt.TargetStore == "" && r.storeForPath != nil {
			attempt.TargetStore = r.storeForPath(attempt.Path)
		}
		RecordSuccess(ledger, attempt, rec.Time())
	}
}

// RecordSuccess counts one successful media delivery in the ledger.
func RecordSuccess(ledger *types.MediaLedger, item types.MediaItem, at time.Time) {
	ledger.Normalize()
	switch item.Type {
	case types.MediaAddressImage:
		ledger.AddressSentCount++
		if item.TargetStore != "" && item.TargetStore != types.StoreUnknown {
			if prev, ok := ledger.AddressSentAt[item.TargetStore]; !ok || at.After(prev) {
				ledger.AddressSentAt[item.TargetStore] = at
			}
		}
	case types.MediaContactImage:
		ledger.ContactSentCount++
		if at.After(ledger.ContactLastSentAt) {
			ledger.ContactLastSentAt = at
		}
	case types.MediaDelayedVideo:
		ledger.VideoSentCount++
	}
}

// Project overwrites the session media counters with the ledger values.
// Lock state that depends on both images is cleared when the ledger no
// longer shows both.
func Project(state *types.SessionState) {
	l := state.LogLedger
	state.AddressImageSentCount = l.AddressSentCount
	state.AddressImageLastSentAtByStore = maps.Clone(l.AddressSentAt)
	state.SentAddressStores = slices.Sorted(maps.Keys(l.AddressSentAt))
	state.ContactImageSentCount = l.ContactSentCount
	state.ContactImageLastSentAt = l.ContactLastSentAt
	state.KBContactImageCount = l.ContactSentCount
	if !state.BothImagesSent() {
		state.StrongIntentAfterBothCount = 0
		state.PurchaseBothFirstHintSent = false
	}
	state.Normalize()
}

type counters struct {
	Address int
	Stores  int
	Contact int
	Locked  bool
}

func counterView(s types.SessionState) counters {
	return counters{
		Address: s.AddressImageSentCount,
		Stores:  len(s.AddressImageLastSentAtByStore),
		Contact: s.ContactImageSentCount,
		Locked:  s.PurchaseBothFirstHintSent,
	}
}
