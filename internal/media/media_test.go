package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newFixtureLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"contact.jpg", "北京地址.jpg", "人广地址.jpg", "intro.mp4"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	categories := filepath.Join(dir, "image_categories.json")
	writeFile(t, categories, `{
  "version": 1,
  "categories": ["联系方式", "店铺地址", "视频素材"],
  "images": {
    "联系方式": ["contact.jpg", "missing.jpg"],
    "店铺地址": ["北京地址.jpg", "nested/人广地址.jpg"],
    "视频素材": []
  }
}`)
	lib := NewLibrary(dir, categories)
	if err := lib.Reload(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return lib
}

func TestStoreForPath(t *testing.T) {
	cases := map[string]string{
		"/img/北京朝阳店.jpg": types.StoreBeijing,
		"徐汇店.png":        types.StoreXuhui,
		"静安寺.png":        types.StoreJingan,
		"虹口.png":         types.StoreHongkou,
		"杨浦五角场.png":      types.StoreWujiaochang,
		"人民广场.png":       types.StoreRenmin,
		"黄埔店.png":        types.StoreRenmin,
		"other.png":      types.StoreRenmin,
	}
	for path, want := range cases {
		if got := StoreForPath(path); got != want {
			t.Fatalf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestLibraryReload(t *testing.T) {
	lib := newFixtureLibrary(t)

	counts := lib.Counts()
	if counts.Contact != 1 || counts.Address != 2 || counts.Video != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if p, ok := lib.AddressImage(types.StoreBeijing); !ok || filepath.Base(p) != "北京地址.jpg" {
		t.Fatalf("expected beijing image, got %q", p)
	}
	if p, ok := lib.AddressImage(types.StoreJingan); !ok || filepath.Base(p) != "人广地址.jpg" {
		t.Fatalf("expected renmin fallback, got %q", p)
	}
	if p, ok := lib.Video(); !ok || filepath.Base(p) != "intro.mp4" {
		t.Fatalf("expected scanned video, got %q", p)
	}
}

func TestLibraryMissingCategoriesIsEmpty(t *testing.T) {
	lib := NewLibrary(t.TempDir(), filepath.Join(t.TempDir(), "none.json"))
	if err := lib.Reload(); err != nil {
		t.Fatalf("expected missing file to load empty, got %v", err)
	}
	if _, ok := lib.ContactImage(); ok {
		t.Fatalf("expected no contact image")
	}
}

func TestWhitelistReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media_whitelist.json")
	writeFile(t, path, `{"version":1,"session_ids":[" vip ", "", "qa"]}`)
	wl := NewWhitelist(path)
	if err := wl.Reload(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !wl.Contains("vip") || !wl.Contains("qa") || wl.Len() != 2 {
		t.Fatalf("unexpected whitelist: %d", wl.Len())
	}

	writeFile(t, path, `{broken`)
	if err := wl.Reload(); err == nil {
		t.Fatalf("expected error for corrupt file")
	}
	if wl.Len() != 0 {
		t.Fatalf("expected empty whitelist after failed reload")
	}
}

func newTestArbiter(t *testing.T, whitelisted ...string) (*Arbiter, *time.Time) {
	t.Helper()
	wl := NewWhitelist("")
	for _, id := range whitelisted {
		wl.ids[id] = struct{}{}
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	a := NewArbiter(newFixtureLibrary(t), wl, 0)
	a.SetClock(func() time.Time { return now })
	return a, &now
}

func TestArbitrateFirstTurnGuard(t *testing.T) {
	a, _ := newTestArbiter(t, "vip")
	s := types.NewSessionState("vip", "u", time.Now())
	v := a.Arbitrate(Offer{Plan: types.MediaContactImage}, s, true)
	if v.Plan != types.MediaNone || v.SkipReason != SkipFirstTurn || !v.FirstTurnGuard {
		t.Fatalf("expected first turn guard, got %+v", v)
	}
}

func TestArbitrateAddressCooldown(t *testing.T) {
	a, now := newTestArbiter(t)
	s := types.NewSessionState("s1", "u", *now)

	v := a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreBeijing}, s, false)
	if v.Plan != types.MediaAddressImage || len(v.Items) != 1 || v.Items[0].TargetStore != types.StoreBeijing {
		t.Fatalf("expected address image, got %+v", v)
	}

	s.AddressImageSentCount = 1
	s.AddressImageLastSentAtByStore[types.StoreBeijing] = now.Add(-time.Hour)
	v = a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreBeijing}, s, false)
	if v.SkipReason != SkipAddressCooldown {
		t.Fatalf("expected cooldown, got %+v", v)
	}

	s.AddressImageLastSentAtByStore[types.StoreBeijing] = now.Add(-25 * time.Hour)
	v = a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreBeijing}, s, false)
	if v.Plan != types.MediaAddressImage {
		t.Fatalf("expected eligible after cooldown, got %+v", v)
	}

	v = a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreUnknown}, s, false)
	if v.SkipReason != SkipStoreUnknown {
		t.Fatalf("expected unknown store skip, got %+v", v)
	}

	s.AddressImageSentCount = MaxAddressImages
	v = a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreBeijing}, s, false)
	if v.SkipReason != SkipAddressLimit {
		t.Fatalf("expected limit, got %+v", v)
	}
}

func TestArbitrateContactLimits(t *testing.T) {
	a, now := newTestArbiter(t, "vip")
	s := types.NewSessionState("s1", "u", *now)
	s.ContactImageSentCount = 1

	if v := a.Arbitrate(Offer{Plan: types.MediaContactImage}, s, false); v.SkipReason != SkipContactSent {
		t.Fatalf("expected once per session, got %+v", v)
	}
	if v := a.Arbitrate(Offer{Plan: types.MediaContactImage, FromKnowledge: true}, s, false); v.Plan != types.MediaContactImage {
		t.Fatalf("expected knowledge allowance, got %+v", v)
	}
	s.ContactImageSentCount = MaxKBContactImages
	if v := a.Arbitrate(Offer{Plan: types.MediaContactImage, FromKnowledge: true}, s, false); v.SkipReason != SkipContactSent {
		t.Fatalf("expected knowledge limit, got %+v", v)
	}

	vip := types.NewSessionState("vip", "u", *now)
	vip.ContactImageSentCount = 9
	if v := a.Arbitrate(Offer{Plan: types.MediaContactImage}, vip, false); v.Plan != types.MediaContactImage {
		t.Fatalf("expected whitelist bypass, got %+v", v)
	}
}

func TestArbitrateLockAfterBothImages(t *testing.T) {
	a, now := newTestArbiter(t, "vip")
	s := types.NewSessionState("s1", "u", *now)
	s.AddressImageSentCount = 1
	s.ContactImageSentCount = 1

	for _, offer := range []Offer{
		{Plan: types.MediaAddressImage, Store: types.StoreRenmin},
		{Plan: types.MediaContactImage, FromKnowledge: true},
	} {
		if v := a.Arbitrate(offer, s, false); v.SkipReason != SkipLocked {
			t.Fatalf("expected lock for %s, got %+v", offer.Plan, v)
		}
	}

	vip := s.Clone()
	vip.SessionID = "vip"
	if v := a.Arbitrate(Offer{Plan: types.MediaAddressImage, Store: types.StoreRenmin}, vip, false); v.Plan != types.MediaAddressImage {
		t.Fatalf("expected whitelist to bypass lock, got %+v", v)
	}
}

func TestVideoDue(t *testing.T) {
	a, now := newTestArbiter(t)
	s := types.NewSessionState("s1", "u", *now)
	u := types.NewUserState("u", *now)

	if _, ok := a.VideoDue(s, u); ok {
		t.Fatalf("expected no video before arming")
	}
	u.VideoArmed = true
	u.PostContactReplyCount = 1
	if _, ok := a.VideoDue(s, u); ok {
		t.Fatalf("expected no video after one reply")
	}
	u.PostContactReplyCount = 2
	item, ok := a.VideoDue(s, u)
	if !ok || item.Type != types.MediaDelayedVideo {
		t.Fatalf("expected video, got %+v", item)
	}

	locked := s.Clone()
	locked.AfterSalesSessionLocked = true
	if _, ok := a.VideoDue(locked, u); ok {
		t.Fatalf("expected after-sales session to suppress video")
	}

	u.VideoSent = true
	if _, ok := a.VideoDue(s, u); ok {
		t.Fatalf("expected video at most once per user")
	}
}
