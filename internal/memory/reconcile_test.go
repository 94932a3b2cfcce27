package memory

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/storefront-cs/internal/convlog"
	"github.com/easeaico/storefront-cs/internal/types"
)

func newLog(t *testing.T, now time.Time) *convlog.Log {
	t.Helper()
	l, err := convlog.New(convlog.Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("convlog.New failed: %v", err)
	}
	l.SetClock(func() time.Time { return now })
	return l
}

func logSend(l *convlog.Log, session string, item types.MediaItem, success bool) {
	l.Append(session, "u1", types.EventMediaAttempt, convlog.Meta{}, types.MediaAttemptPayload{Type: item.Type, Path: item.Path, TargetStore: item.TargetStore})
	l.Append(session, "u1", types.EventMediaResult, convlog.Meta{}, types.MediaResultPayload{Type: item.Type, Success: success, Result: json.RawMessage(`"ok"`)})
}

func storeFromName(path string) string {
	if strings.Contains(path, "北京") {
		return types.StoreBeijing
	}
	return ""
}

func TestReconcileCountsSuccessfulSends(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	l := newLog(t, now)
	logSend(l, "s1", types.MediaItem{Type: types.MediaAddressImage, Path: "/img/静安.jpg", TargetStore: types.StoreJingan}, true)
	logSend(l, "s1", types.MediaItem{Type: types.MediaContactImage, Path: "/img/contact.jpg"}, false)
	logSend(l, "s1", types.MediaItem{Type: types.MediaAddressImage, Path: "/img/北京地址.jpg"}, true)

	r := NewReconciler(l, storeFromName)
	st := types.NewSessionState("s1", "u1", now)
	r.Reconcile(&st)

	if st.AddressImageSentCount != 2 {
		t.Fatalf("expected 2 address sends, got %d", st.AddressImageSentCount)
	}
	if st.ContactImageSentCount != 0 {
		t.Fatalf("expected failed contact send ignored, got %d", st.ContactImageSentCount)
	}
	if _, ok := st.AddressImageLastSentAtByStore[types.StoreBeijing]; !ok {
		t.Fatalf("expected store classified from path, got %v", st.AddressImageLastSentAtByStore)
	}
	if len(st.SentAddressStores) != 2 {
		t.Fatalf("expected 2 sent stores, got %v", st.SentAddressStores)
	}
	if st.LogLedger.Offset != l.Size("s1") {
		t.Fatalf("expected ledger offset at log end, got %d", st.LogLedger.Offset)
	}
}

func TestReconcileIsIncremental(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	l := newLog(t, now)
	r := NewReconciler(l, nil)
	st := types.NewSessionState("s1", "u1", now)

	logSend(l, "s1", types.MediaItem{Type: types.MediaContactImage, Path: "/img/contact.jpg"}, true)
	r.Reconcile(&st)
	r.Reconcile(&st)
	if st.ContactImageSentCount != 1 {
		t.Fatalf("expected records folded once, got %d", st.ContactImageSentCount)
	}
	if st.ContactImageLastSentAt.IsZero() {
		t.Fatalf("expected contact time recorded")
	}
}

func TestReconcileOverridesStaleCounters(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	l := newLog(t, now)
	r := NewReconciler(l, nil)
	st := types.NewSessionState("s1", "u1", now)
	st.AddressImageSentCount = 3
	st.ContactImageSentCount = 1
	st.AddressImageLastSentAtByStore[types.StoreJingan] = now
	st.PurchaseBothFirstHintSent = true

	if !r.Reconcile(&st) {
		t.Fatalf("expected correction reported")
	}
	if st.AddressImageSentCount != 0 || st.ContactImageSentCount != 0 || len(st.AddressImageLastSentAtByStore) != 0 {
		t.Fatalf("expected counters reset to log, got %+v", st)
	}
	if st.PurchaseBothFirstHintSent {
		t.Fatalf("expected lock hint cleared")
	}
}

func TestReconcileResetsWhenLogDeleted(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	l := newLog(t, now)
	r := NewReconciler(l, nil)
	st := types.NewSessionState("s1", "u1", now)

	logSend(l, "s1", types.MediaItem{Type: types.MediaAddressImage, Path: "a.jpg", TargetStore: types.StoreXuhui}, true)
	logSend(l, "s1", types.MediaItem{Type: types.MediaContactImage, Path: "c.jpg"}, true)
	r.Reconcile(&st)
	if !st.BothImagesSent() {
		t.Fatalf("expected both images sent")
	}

	if err := os.Remove(l.Path("s1")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	r.Reconcile(&st)
	if st.BothImagesSent() || st.LogLedger.Offset != 0 {
		t.Fatalf("expected ledger reset after log deletion, got %+v", st.LogLedger)
	}
}

func TestReconcileDetectsSameLengthRewrite(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	l := newLog(t, now)
	r := NewReconciler(l, nil)
	st := types.NewSessionState("s1", "u1", now)

	logSend(l, "s1", types.MediaItem{Type: types.MediaAddressImage, Path: "a.jpg", TargetStore: types.StoreXuhui}, true)
	r.Reconcile(&st)
	if !st.AddressImageLastSentAtByStore[types.StoreXuhui].Equal(now) {
		t.Fatalf("expected send at %v, got %v", now, st.AddressImageLastSentAtByStore)
	}

	data, err := os.ReadFile(l.Path("s1"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	rewritten := strings.ReplaceAll(string(data), "2026-03-02", "2026-02-01")
	if len(rewritten) != len(data) {
		t.Fatalf("expected same length rewrite")
	}
	if err := os.WriteFile(l.Path("s1"), []byte(rewritten), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r.Reconcile(&st)
	if got := st.AddressImageLastSentAtByStore[types.StoreXuhui]; got.Month() != time.February {
		t.Fatalf("expected rewritten timestamp, got %v", got)
	}
	if st.AddressImageSentCount != 1 {
		t.Fatalf("expected 1 send after refold, got %d", st.AddressImageSentCount)
	}
}

func TestReconcileInactiveWhenLogDisabled(t *testing.T) {
	l, err := convlog.New(convlog.Config{Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	r := NewReconciler(l, nil)
	st := types.NewSessionState("s1", "u1", time.Now())
	st.ContactImageSentCount = 1
	if r.Reconcile(&st) || st.ContactImageSentCount != 1 {
		t.Fatalf("expected counters untouched when the log is disabled")
	}
}

func TestRecordSuccessKeepsLatestStoreTime(t *testing.T) {
	ledger := types.NewMediaLedger()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	RecordSuccess(&ledger, types.MediaItem{Type: types.MediaAddressImage, TargetStore: types.StoreRenmin}, t1.Add(time.Hour))
	RecordSuccess(&ledger, types.MediaItem{Type: types.MediaAddressImage, TargetStore: types.StoreRenmin}, t1)
	if !ledger.AddressSentAt[types.StoreRenmin].Equal(t1.Add(time.Hour)) {
		t.Fatalf("expected latest time kept, got %v", ledger.AddressSentAt[types.StoreRenmin])
	}
	if ledger.AddressSentCount != 2 {
		t.Fatalf("expected 2 sends, got %d", ledger.AddressSentCount)
	}
}
