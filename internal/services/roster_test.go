package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/feed"
	"github.com/tbourn/go-devradar-backend/internal/identity"
	"github.com/tbourn/go-devradar-backend/internal/repo"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newBroker(t *testing.T) *feed.Broker {
	t.Helper()
	b := feed.NewBroker(feed.Config{Buffer: 16}, zerolog.Nop())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestLiveRoster_LoadRenders(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	_, _ = st.CreateCheckIn(ctx, &domain.CheckIn{Fingerprint: "a", Name: "A", IsOnline: true})
	_, _ = st.CreateCheckIn(ctx, &domain.CheckIn{Fingerprint: "a", Name: "A2", IsOnline: true})
	_, _ = st.CreateCheckIn(ctx, &domain.CheckIn{Fingerprint: "b", Name: "B", IsOnline: false})

	rr := &recordingRenderer{}
	r := NewLiveRoster(st, newBroker(t), rr, 0, zerolog.Nop())
	list, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(list) != 2 || list[0].Name != "A2" {
		t.Fatalf("roster = %+v; want 2 online newest first", list)
	}
	markers, calls := rr.last()
	if calls != 1 || len(markers) != 2 {
		t.Fatalf("render calls=%d markers=%d", calls, len(markers))
	}
	if markers[1].RenderLat == markers[1].Latitude {
		t.Fatalf("second marker of same fingerprint not offset")
	}
	if r.Version() != 1 {
		t.Fatalf("version = %d", r.Version())
	}
}

func TestLiveRoster_LoadFailureKeepsSnapshot(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	_, _ = st.CreateCheckIn(ctx, &domain.CheckIn{Fingerprint: "a", Name: "A", IsOnline: true})
	rr := &recordingRenderer{}
	r := NewLiveRoster(st, newBroker(t), rr, 0, zerolog.Nop())
	if _, err := r.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	st.mu.Lock()
	st.listErr = errBoom
	st.mu.Unlock()
	_, err := r.Load(ctx)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v; want store error", err)
	}
	if len(r.Snapshot()) != 1 || r.Version() != 1 {
		t.Fatalf("snapshot replaced after failed load")
	}
	if _, calls := rr.last(); calls != 1 {
		t.Fatalf("renderer called on failed load")
	}
}

func TestLiveRoster_SubscribeReloadsOnAnyEvent(t *testing.T) {
	st := newMemStore()
	b := newBroker(t)
	r := NewLiveRoster(st, b, nil, 0, zerolog.Nop())
	ctx := context.Background()

	var notified atomic.Int32
	sub, err := r.Subscribe(ctx, func([]domain.CheckIn) { notified.Add(1) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	_, _ = st.CreateCheckIn(ctx, &domain.CheckIn{Fingerprint: "a", Name: "A", IsOnline: true})
	// the event payload is irrelevant; the roster always reloads in full
	if err := b.Publish(ctx, feed.Event{Table: "developers", Type: feed.Delete, ID: "unrelated"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "roster reload", func() bool { return len(r.Snapshot()) == 1 })
	waitFor(t, "onChange", func() bool { return notified.Load() >= 1 })

	// other tables are ignored
	before := atomic.LoadInt32(&st.listCalls)
	_ = b.Publish(ctx, feed.Event{Table: "user_limits", Type: feed.Update})
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&st.listCalls) != before {
		t.Fatalf("reloaded on unrelated table")
	}
}

func TestLiveRoster_NoReloadAfterClose(t *testing.T) {
	st := newMemStore()
	b := newBroker(t)
	r := NewLiveRoster(st, b, nil, 0, zerolog.Nop())
	ctx := context.Background()

	sub, err := r.Subscribe(ctx, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = b.Publish(ctx, feed.Event{Table: "developers", Type: feed.Insert})
	waitFor(t, "first reload", func() bool { return r.Version() == 1 })

	sub.Close()
	sub.Close()
	calls := atomic.LoadInt32(&st.listCalls)
	for i := 0; i < 5; i++ {
		_ = b.Publish(ctx, feed.Event{Table: "developers", Type: feed.Update})
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&st.listCalls); got != calls {
		t.Fatalf("list called %d times after Close", got-calls)
	}
}

func TestLiveRoster_CloseFromOnChange(t *testing.T) {
	b := newBroker(t)
	r := NewLiveRoster(newMemStore(), b, nil, 0, zerolog.Nop())
	ctx := context.Background()

	var sub *RosterSubscription
	ready := make(chan struct{})
	closed := make(chan struct{})
	sub, err := r.Subscribe(ctx, func([]domain.CheckIn) {
		<-ready
		sub.Close()
		close(closed)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	close(ready)

	_ = b.Publish(ctx, feed.Event{Table: "developers", Type: feed.Insert})
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("Close inside onChange did not return")
	}
	// the loop exits once onChange returns
	select {
	case <-sub.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription loop still running")
	}
	sub.Close()
}

func TestLiveRoster_RunConvergesWithStore(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := newBroker(t)
	if err := repo.RegisterChangeFeed(db, b, zerolog.Nop()); err != nil {
		t.Fatalf("changefeed: %v", err)
	}
	store := repo.NewStore(db)
	rr := &recordingRenderer{}
	r := NewLiveRoster(store, b, rr, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	waitFor(t, "initial load", func() bool { return r.Version() >= 1 })

	svc := NewCheckInService(store, NewQuotaService(store, 5, false), identity.Static("fpX"), zerolog.Nop())
	c1, err := svc.CheckIn(ctx, aliceProfile, &spyLocation{lat: 1, lon: 1})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	c2, err := svc.CheckIn(ctx, aliceProfile, &spyLocation{lat: 1, lon: 1})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	waitFor(t, "two online", func() bool { return len(r.Snapshot()) == 2 })

	if _, err := svc.SetOnline(ctx, c1.ID, false); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	waitFor(t, "one online", func() bool {
		s := r.Snapshot()
		return len(s) == 1 && s[0].ID == c2.ID
	})
	waitFor(t, "render of final roster", func() bool {
		m, _ := rr.last()
		return len(m) == 1 && m[0].ID == c2.ID
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
