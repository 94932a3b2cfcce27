// Package media indexes sendable media files and arbitrates which one, if
// any, accompanies a reply.
package media

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/easeaico/storefront-cs/internal/storage"
	"github.com/easeaico/storefront-cs/internal/types"
)

// Category names used in the image category index.
const (
	CategoryContact = "联系方式"
	CategoryAddress = "店铺地址"
	CategoryVideo   = "视频素材"
)

var videoExts = []string{".mp4", ".mov", ".m4v", ".avi", ".webm"}

// categoryIndex is the on-disk image category document.
type categoryIndex struct {
	Version    int                 `json:"version"`
	Categories []string            `json:"categories"`
	Images     map[string][]string `json:"images"`
}

// Counts summarizes the loaded library.
type Counts struct {
	Address int `json:"address_image_count"`
	Contact int `json:"contact_image_count"`
	Video   int `json:"video_media_count"`
}

// Library resolves media files by purpose.
type Library struct {
	imagesDir      string
	categoriesPath string

	mu      sync.RWMutex
	address map[string][]string
	contact []string
	video   []string
}

// NewLibrary returns an empty library. Call Reload to index files.
func NewLibrary(imagesDir, categoriesPath string) *Library {
	return &Library{
		imagesDir:      imagesDir,
		categoriesPath: categoriesPath,
		address:        map[string][]string{},
	}
}

// Reload rebuilds the index. A missing or unreadable category file leaves an
// empty address and contact index; the error is returned for logging only.
func (l *Library) Reload() error {
	address := map[string][]string{}
	var contact, video []string

	idx, err := storage.LoadJSONFile[categoryIndex](l.categoriesPath)
	if err != nil {
		err = fmt.Errorf("failed to load image categories: %w", err)
	}
	for _, name := range idx.Images[CategoryContact] {
		if p, ok := l.resolve(name); ok {
			contact = append(contact, p)
		}
	}
	for _, name := range idx.Images[CategoryVideo] {
		if p, ok := l.resolve(name); ok {
			video = append(video, p)
		}
	}
	for _, name := range idx.Images[CategoryAddress] {
		if p, ok := l.resolve(name); ok {
			store := StoreForPath(p)
			address[store] = append(address[store], p)
		}
	}
	if len(video) == 0 {
		video = l.scanVideos()
	}

	l.mu.Lock()
	l.address = address
	l.contact = contact
	l.video = video
	l.mu.Unlock()

	slog.Info("media library loaded", "address", countAll(address), "contact", len(contact), "video", len(video))
	return err
}

// resolve maps a configured name to an existing absolute file under imagesDir.
func (l *Library) resolve(name string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." {
		return "", false
	}
	p := filepath.Join(l.imagesDir, base)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p, true
}

func (l *Library) scanVideos() []string {
	entries, err := os.ReadDir(l.imagesDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !slices.Contains(videoExts, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		if p, ok := l.resolve(entry.Name()); ok {
			out = append(out, p)
		}
	}
	return out
}

// StoreForPath classifies an address image by file name. Names that match no
// store are filed under the 人广 store.
func StoreForPath(path string) string {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, "北京"):
		return types.StoreBeijing
	case strings.Contains(name, "徐汇"):
		return types.StoreXuhui
	case strings.Contains(name, "静安"):
		return types.StoreJingan
	case strings.Contains(name, "虹口"):
		return types.StoreHongkou
	case strings.Contains(name, "五角场"), strings.Contains(name, "杨浦"):
		return types.StoreWujiaochang
	default:
		return types.StoreRenmin
	}
}

// AddressImage picks an address image for store. Shanghai stores without
// their own image fall back to the 人广 images.
func (l *Library) AddressImage(store string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pool := l.address[store]
	if len(pool) == 0 && strings.HasPrefix(store, "sh_") {
		pool = l.address[types.StoreRenmin]
	}
	return pick(pool)
}

// ContactImage picks a contact image.
func (l *Library) ContactImage() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return pick(l.contact)
}

// Video picks a delayed video.
func (l *Library) Video() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return pick(l.video)
}

// Counts reports how many files of each kind are indexed.
func (l *Library) Counts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Counts{Address: countAll(l.address), Contact: len(l.contact), Video: len(l.video)}
}

func pick(pool []string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}
	return pool[rand.IntN(len(pool))], true
}

func countAll(m map[string][]string) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}
