package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

var errBoom = errors.New("boom")

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	seq      int
	checkins map[string]domain.CheckIn
	quotas   map[string]domain.QuotaRecord

	getQuotaErr  error
	insQuotaErr  error
	setQuotaErr  error
	createErr    error
	listErr      error
	quotaInserts int
	quotaWrites  int
	listCalls    int32
}

func newMemStore() *memStore {
	return &memStore{
		checkins: map[string]domain.CheckIn{},
		quotas:   map[string]domain.QuotaRecord{},
	}
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (m *memStore) CreateCheckIn(_ context.Context, c *domain.CheckIn) (*domain.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	cp := *c
	cp.ID = fmt.Sprintf("c%03d", m.seq)
	cp.CreatedAt = epoch.Add(time.Duration(m.seq) * time.Second)
	cp.UpdatedAt = cp.CreatedAt
	m.checkins[cp.ID] = cp
	return &cp, nil
}

func (m *memStore) GetCheckIn(_ context.Context, id string) (*domain.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (m *memStore) sorted(keep func(domain.CheckIn) bool) []domain.CheckIn {
	out := []domain.CheckIn{}
	for _, c := range m.checkins {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) ListOnlineCheckIns(context.Context) ([]domain.CheckIn, error) {
	atomic.AddInt32(&m.listCalls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(c domain.CheckIn) bool { return c.IsOnline }), nil
}

func (m *memStore) ListCheckInsByFingerprint(_ context.Context, fp string) ([]domain.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(c domain.CheckIn) bool { return c.Fingerprint == fp }), nil
}

func (m *memStore) update(id string, fn func(*domain.CheckIn)) (*domain.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	fn(&c)
	c.UpdatedAt = c.UpdatedAt.Add(time.Minute)
	m.checkins[id] = c
	return &c, nil
}

func (m *memStore) UpdateCheckInLocation(_ context.Context, id string, lat, lon float64) (*domain.CheckIn, error) {
	return m.update(id, func(c *domain.CheckIn) { c.Latitude, c.Longitude = lat, lon })
}

func (m *memStore) UpdateCheckInStatus(_ context.Context, id string, online bool) (*domain.CheckIn, error) {
	return m.update(id, func(c *domain.CheckIn) { c.IsOnline = online })
}

func (m *memStore) UpdateCheckInProfile(_ context.Context, id, name string, skills []string, contact *string) (*domain.CheckIn, error) {
	return m.update(id, func(c *domain.CheckIn) {
		c.Name, c.Skills, c.Communication = name, skills, contact
	})
}

func (m *memStore) GetQuota(_ context.Context, fp string) (*domain.QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getQuotaErr != nil {
		return nil, m.getQuotaErr
	}
	q, ok := m.quotas[fp]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &q, nil
}

func (m *memStore) InsertQuotaIfAbsent(_ context.Context, fp string, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insQuotaErr != nil {
		return false, m.insQuotaErr
	}
	if _, ok := m.quotas[fp]; ok {
		return false, nil
	}
	m.quotaInserts++
	m.quotas[fp] = domain.QuotaRecord{ID: "q-" + fp, Fingerprint: fp, MaxCheckIns: max}
	return true, nil
}

func (m *memStore) SetQuotaCount(_ context.Context, fp string, count int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setQuotaErr != nil {
		return m.setQuotaErr
	}
	q, ok := m.quotas[fp]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.quotaWrites++
	q.CheckInCount = count
	q.LastCheckIn = &at
	m.quotas[fp] = q
	return nil
}

func (m *memStore) ReserveQuota(_ context.Context, fp string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[fp]
	if !ok || q.CheckInCount >= q.MaxCheckIns {
		return false, nil
	}
	m.quotaWrites++
	q.CheckInCount++
	q.LastCheckIn = &at
	m.quotas[fp] = q
	return true, nil
}

func (m *memStore) ReleaseQuota(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[fp]
	if !ok {
		return nil
	}
	if q.CheckInCount > 0 {
		q.CheckInCount--
	}
	m.quotas[fp] = q
	return nil
}

func (m *memStore) seedQuota(fp string, count, max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[fp] = domain.QuotaRecord{ID: "q-" + fp, Fingerprint: fp, CheckInCount: count, MaxCheckIns: max}
}

func (m *memStore) quota(fp string) domain.QuotaRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotas[fp]
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checkins)
}

// spyLocation is a LocationSource that counts requests.
type spyLocation struct {
	lat, lon float64
	err      error
	calls    int32
}

func (s *spyLocation) RequestOnce(context.Context) (float64, float64, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.lat, s.lon, s.err
}

func (s *spyLocation) called() int { return int(atomic.LoadInt32(&s.calls)) }

// recordingRenderer collects Render calls.
type recordingRenderer struct {
	mu    sync.Mutex
	calls [][]domain.Marker
}

func (r *recordingRenderer) Render(m []domain.Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, m)
}

func (r *recordingRenderer) last() ([]domain.Marker, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, 0
	}
	return r.calls[len(r.calls)-1], len(r.calls)
}
