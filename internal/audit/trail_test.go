package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memRepo struct {
	mu       sync.Mutex
	entries  []Entry
	pruned   []time.Time
	failNext error
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Page{Entries: append([]Entry(nil), m.entries...), Total: len(m.entries)}, nil
}

func (m *memRepo) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, before)
	return 0, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestTrailFlushesOnShutdown(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(TrailConfig{Repository: repo})

	// Queued before Run starts; all must land once Run exits.
	for range 5 {
		trail.Record(Entry{Action: ActionSwitch, EntityType: EntityDevice, EntityID: "SWITCH_1", Source: "api"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trail.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if repo.count() != 5 {
		t.Errorf("written = %d, want 5", repo.count())
	}
	page, _ := trail.List(context.Background(), Filter{})
	if page.Entries[0].CreatedAt.IsZero() {
		t.Error("Record should stamp CreatedAt")
	}
}

func TestTrailDropsWhenFull(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(TrailConfig{Repository: repo, Buffer: 2})

	for range 4 {
		trail.Record(Entry{Action: ActionColor, EntityType: EntityDevice, Source: "api"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trail.Run(ctx)

	if repo.count() != 2 {
		t.Errorf("written = %d, want 2", repo.count())
	}
}

func TestTrailWriteErrorDoesNotStop(t *testing.T) {
	repo := &memRepo{failNext: errors.New("disk full")}
	trail := NewTrail(TrailConfig{Repository: repo})

	trail.Record(Entry{Action: ActionSwitch, EntityType: EntityDevice, Source: "api"})
	trail.Record(Entry{Action: ActionSwitch, EntityType: EntityDevice, Source: "api"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trail.Run(ctx)

	if repo.count() != 1 {
		t.Errorf("written = %d, want 1 after one failure", repo.count())
	}
}

func TestTrailPrunesWithRetention(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := &memRepo{}
	trail := NewTrail(TrailConfig{Repository: repo, Retention: 24 * time.Hour})
	trail.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trail.Run(ctx)

	if len(repo.pruned) != 1 || !repo.pruned[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("pruned = %v, want one cutoff at %v", repo.pruned, now.Add(-24*time.Hour))
	}

	repo.pruned = nil
	keep := NewTrail(TrailConfig{Repository: repo})
	keep.Run(ctx)
	if len(repo.pruned) != 0 {
		t.Error("zero retention should never prune")
	}
}
