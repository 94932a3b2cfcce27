package media

import (
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

// Reasons reported when planned media is withheld.
const (
	SkipFirstTurn       = "first_turn_global_no_media"
	SkipLocked          = "media_locked"
	SkipStoreUnknown    = "address_store_unknown"
	SkipAddressCooldown = "address_image_cooldown"
	SkipAddressLimit    = "address_image_limit"
	SkipAddressMissing  = "address_image_missing"
	SkipContactSent     = "contact_image_already_sent"
	SkipContactMissing  = "contact_image_missing"
	SkipContactWarmup   = "contact_warmup"
	SkipAfterSales      = "after_sales_no_media"
)

const (
	DefaultAddressCooldown = 24 * time.Hour
	MaxAddressImages       = 6
	MaxKBContactImages     = 3
	// VideoReplyThreshold is the number of delivered replies after a contact
	// send before the delayed video is released.
	VideoReplyThreshold = 2
)

// Offer is the media a rule would like to attach.
type Offer struct {
	Plan  types.MediaPlan
	Store string
	// FromKnowledge marks a contact image attached to a knowledge answer,
	// which has its own per-session allowance.
	FromKnowledge bool
}

// Verdict is the arbitrated outcome of an Offer.
type Verdict struct {
	Plan           types.MediaPlan
	Items          []types.MediaItem
	SkipReason     string
	FirstTurnGuard bool
}

func skip(reason string) Verdict {
	return Verdict{Plan: types.MediaNone, SkipReason: reason}
}

// Arbiter enforces per-session media throttling.
type Arbiter struct {
	library   *Library
	whitelist *Whitelist
	cooldown  time.Duration
	now       func() time.Time
}

// NewArbiter returns an Arbiter. A non-positive cooldown selects the default.
func NewArbiter(library *Library, whitelist *Whitelist, cooldown time.Duration) *Arbiter {
	if cooldown <= 0 {
		cooldown = DefaultAddressCooldown
	}
	return &Arbiter{library: library, whitelist: whitelist, cooldown: cooldown, now: time.Now}
}

// SetClock replaces the time source.
func (a *Arbiter) SetClock(now func() time.Time) {
	a.now = now
}

// Library returns the media library.
func (a *Arbiter) Library() *Library {
	return a.library
}

// Whitelist returns the session whitelist.
func (a *Arbiter) Whitelist() *Whitelist {
	return a.whitelist
}

// Whitelisted reports whether sessionID bypasses throttling.
func (a *Arbiter) Whitelisted(sessionID string) bool {
	return a.whitelist != nil && a.whitelist.Contains(sessionID)
}

// Locked reports whether the session has delivered both canonical images and
// is not exempt from throttling.
func (a *Arbiter) Locked(session types.SessionState) bool {
	return session.BothImagesSent() && !a.Whitelisted(session.SessionID)
}

// Arbitrate decides whether offer may be delivered for session. Counters on
// session must already be reconciled with the conversation log.
func (a *Arbiter) Arbitrate(offer Offer, session types.SessionState, firstTurn bool) Verdict {
	switch offer.Plan {
	case types.MediaAddressImage, types.MediaContactImage:
	default:
		return Verdict{Plan: types.MediaNone}
	}
	if firstTurn {
		v := skip(SkipFirstTurn)
		v.FirstTurnGuard = true
		return v
	}
	if a.Locked(session) {
		return skip(SkipLocked)
	}
	whitelisted := a.Whitelisted(session.SessionID)

	if offer.Plan == types.MediaAddressImage {
		return a.address(offer.Store, session, whitelisted)
	}
	return a.contact(offer.FromKnowledge, session, whitelisted)
}

func (a *Arbiter) address(store string, session types.SessionState, whitelisted bool) Verdict {
	if store == "" || store == types.StoreUnknown {
		return skip(SkipStoreUnknown)
	}
	if !whitelisted {
		if session.AddressImageSentCount >= MaxAddressImages {
			return skip(SkipAddressLimit)
		}
		if last, ok := session.AddressImageLastSentAtByStore[store]; ok && a.now().Sub(last) < a.cooldown {
			return skip(SkipAddressCooldown)
		}
	}
	path, ok := a.library.AddressImage(store)
	if !ok {
		return skip(SkipAddressMissing)
	}
	return Verdict{
		Plan:  types.MediaAddressImage,
		Items: []types.MediaItem{{Type: types.MediaAddressImage, Path: path, TargetStore: store}},
	}
}

func (a *Arbiter) contact(fromKnowledge bool, session types.SessionState, whitelisted bool) Verdict {
	if !whitelisted {
		limit := 1
		if fromKnowledge {
			limit = MaxKBContactImages
		}
		if session.ContactImageSentCount >= limit {
			return skip(SkipContactSent)
		}
	}
	path, ok := a.library.ContactImage()
	if !ok {
		return skip(SkipContactMissing)
	}
	return Verdict{
		Plan:  types.MediaContactImage,
		Items: []types.MediaItem{{Type: types.MediaContactImage, Path: path}},
	}
}

// VideoDue reports whether the user's delayed video may be released in this
// session, and if so which file to send.
func (a *Arbiter) VideoDue(session types.SessionState, user types.UserState) (types.MediaItem, bool) {
	if !user.VideoArmed || user.VideoSent || user.PostContactReplyCount < VideoReplyThreshold {
		return types.MediaItem{}, false
	}
	if session.AfterSalesSessionLocked || a.Locked(session) {
		return types.MediaItem{}, false
	}
	path, ok := a.library.Video()
	if !ok {
		return types.MediaItem{}, false
	}
	return types.MediaItem{Type: types.MediaDelayedVideo, Path: path}, true
}
