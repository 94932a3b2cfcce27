package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/easeaico/storefront-cs/internal/storage"
)

type whitelistDocument struct {
	Version    int      `json:"version"`
	SessionIDs []string `json:"session_ids"`
}

// Whitelist is the set of session ids exempt from media throttling.
type Whitelist struct {
	path string

	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewWhitelist returns an empty whitelist backed by path.
func NewWhitelist(path string) *Whitelist {
	return &Whitelist{path: path, ids: map[string]struct{}{}}
}

// Reload rereads the whitelist file. On error the list is emptied.
func (w *Whitelist) Reload() error {
	ids := map[string]struct{}{}
	doc, err := storage.LoadJSONFile[whitelistDocument](w.path)
	if err != nil {
		err = fmt.Errorf("failed to load media whitelist: %w", err)
	} else {
		for _, id := range doc.SessionIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids[id] = struct{}{}
			}
		}
	}
	w.mu.Lock()
	w.ids = ids
	w.mu.Unlock()
	return err
}

// Contains reports whether sessionID is whitelisted.
func (w *Whitelist) Contains(sessionID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.ids[sessionID]
	return ok
}

// Len returns the number of whitelisted sessions.
func (w *Whitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ids)
}
