// Package services – LiveRoster
//
// LiveRoster keeps an in-memory snapshot of every online check-in. It loads
// the full set once, then subscribes to the developers change feed and, on
// any event whatever its content, reloads the full set and replaces the
// snapshot. Events are never applied differentially. After every successful
// reload the offset marker list is handed to the MapRenderer.
package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/feed"
)

// RosterStore is the read side the roster needs.
type RosterStore interface {
	ListOnlineCheckIns(ctx context.Context) ([]domain.CheckIn, error)
}

// LiveRoster is the materialized view of online check-ins.
type LiveRoster struct {
	store    RosterStore
	feed     ChangeFeed
	renderer MapRenderer
	epsilon  float64
	log      zerolog.Logger

	loadMu sync.Mutex // serializes fetch+apply

	mu       sync.RWMutex
	snapshot []domain.CheckIn
	markers  []domain.Marker
	version  uint64
}

// NewLiveRoster constructs a roster. renderer may be nil. eps <= 0 selects
// DefaultMarkerEpsilon.
func NewLiveRoster(store RosterStore, changes ChangeFeed, renderer MapRenderer, eps float64, log zerolog.Logger) *LiveRoster {
	if eps <= 0 {
		eps = DefaultMarkerEpsilon
	}
	return &LiveRoster{
		store:    store,
		feed:     changes,
		renderer: renderer,
		epsilon:  eps,
		log:      log,
		snapshot: []domain.CheckIn{},
		markers:  []domain.Marker{},
	}
}

// Load fetches all online check-ins, newest first, and replaces the
// snapshot. On failure the previous snapshot is kept.
func (r *LiveRoster) Load(ctx context.Context) ([]domain.CheckIn, error) {
	ctx, span := otel.Tracer("services/LiveRoster").Start(ctx, "Load")
	defer span.End()

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	list, err := r.store.ListOnlineCheckIns(ctx)
	if err != nil {
		rosterReloads.WithLabelValues("error").Inc()
		span.RecordError(err)
		r.log.Error().Err(err).Msg("failed to load developers")
		return nil, &StoreError{Op: "load roster", Err: err}
	}
	if list == nil {
		list = []domain.CheckIn{}
	}
	markers := PlaceMarkers(list, r.epsilon)

	r.mu.Lock()
	r.snapshot = list
	r.markers = markers
	r.version++
	v := r.version
	r.mu.Unlock()

	span.SetAttributes(attribute.Int("roster.size", len(list)), attribute.Int64("roster.version", int64(v)))
	rosterReloads.WithLabelValues("ok").Inc()
	if r.renderer != nil {
		r.renderer.Render(copyMarkers(markers))
	}
	return copyCheckIns(list), nil
}

// Reload is Load for callers that only care about the outcome.
func (r *LiveRoster) Reload(ctx context.Context) error {
	_, err := r.Load(ctx)
	return err
}

// Snapshot returns a copy of the current roster.
func (r *LiveRoster) Snapshot() []domain.CheckIn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyCheckIns(r.snapshot)
}

// Markers returns a copy of the current offset marker list.
func (r *LiveRoster) Markers() []domain.Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMarkers(r.markers)
}

// Current returns a copy of the roster together with the version it
// belongs to, read under one lock.
func (r *LiveRoster) Current() ([]domain.CheckIn, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyCheckIns(r.snapshot), r.version
}

// CurrentMarkers is Current for the offset marker list.
func (r *LiveRoster) CurrentMarkers() ([]domain.Marker, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMarkers(r.markers), r.version
}

// Version counts successful loads. It only increases.
func (r *LiveRoster) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// RosterSubscription is the handle returned by Subscribe.
type RosterSubscription struct {
	cancel context.CancelFunc
	sub    feed.Subscription
	done   chan struct{}
	once   sync.Once

	notifying atomic.Bool // onChange is running
}

// Close releases the feed registration. When Close returns no further
// reload will be started by this subscription. Close may be called from
// onChange; it then returns without waiting for the loop to exit.
func (s *RosterSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.sub.Close()
	})
	if !s.notifying.Load() {
		<-s.done
	}
}

// Subscribe reloads the roster on every developers change event and calls
// onChange (if non-nil) with the new snapshot after each successful reload.
// Events are handled one at a time.
func (r *LiveRoster) Subscribe(ctx context.Context, onChange func([]domain.CheckIn)) (*RosterSubscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub, err := r.feed.Subscribe(subCtx, domain.CheckIn{}.TableName(), feed.All)
	if err != nil {
		cancel()
		return nil, err
	}
	rs := &RosterSubscription{cancel: cancel, sub: sub, done: make(chan struct{})}

	go func() {
		defer close(rs.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				if subCtx.Err() != nil {
					return
				}
				r.log.Debug().Str("type", string(ev.Type)).Str("id", ev.ID).Msg("roster change event")
				list, err := r.Load(subCtx)
				if err == nil && onChange != nil {
					rs.notifying.Store(true)
					onChange(list)
					rs.notifying.Store(false)
				}
			}
		}
	}()
	return rs, nil
}

// Run subscribes, performs the initial load and keeps the roster current
// until ctx is cancelled. The subscription is registered before the first
// load so no write between the two is missed.
func (r *LiveRoster) Run(ctx context.Context) error {
	sub, err := r.Subscribe(ctx, nil)
	if err != nil {
		return err
	}
	defer sub.Close()

	if _, err := r.Load(ctx); err != nil {
		r.log.Warn().Err(err).Msg("initial roster load failed; waiting for next change")
	}
	<-ctx.Done()
	return nil
}

func copyCheckIns(in []domain.CheckIn) []domain.CheckIn {
	out := make([]domain.CheckIn, len(in))
	copy(out, in)
	return out
}

func copyMarkers(in []domain.Marker) []domain.Marker {
	out := make([]domain.Marker, len(in))
	copy(out, in)
	return out
}
