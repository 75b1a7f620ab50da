package audit

import (
	"context"
	"time"
)

// DefaultBuffer is how many entries Record queues before it starts
// dropping.
const DefaultBuffer = 256

// pruneInterval is how often Run applies the retention window.
const pruneInterval = time.Hour

// writeTimeout bounds one store write.
const writeTimeout = 5 * time.Second

// Logger defines the logging interface used by the Trail.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TrailConfig holds the Trail's collaborators.
type TrailConfig struct {
	Repository Repository

	// Retention is how long entries are kept. Zero keeps them forever.
	Retention time.Duration
	Buffer    int

	Logger Logger
}

// Trail writes entries off the request path. Record never blocks; a
// single Run goroutine drains the queue serially, which suits SQLite's
// single-writer model.
type Trail struct {
	repo      Repository
	retention time.Duration
	queue     chan *Entry
	now       func() time.Time
	logger    Logger
}

// NewTrail creates a Trail. Call Run to start writing.
func NewTrail(cfg TrailConfig) *Trail {
	size := cfg.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	t := &Trail{
		repo:      cfg.Repository,
		retention: cfg.Retention,
		queue:     make(chan *Entry, size),
		now:       time.Now,
		logger:    cfg.Logger,
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	return t
}

// Record queues e. A full queue drops the entry with a warning.
func (t *Trail) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now().UTC()
	}
	select {
	case t.queue <- &e:
	default:
		t.logger.Warn("audit queue full, dropping entry",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
		)
	}
}

// List reads stored entries.
func (t *Trail) List(ctx context.Context, f Filter) (*Page, error) {
	return t.repo.List(ctx, f)
}

// Run writes queued entries until ctx is done, then flushes what is left.
// It also prunes entries older than the retention window.
func (t *Trail) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	t.prune()
	for {
		select {
		case e := <-t.queue:
			t.write(e)
		case <-ticker.C:
			t.prune()
		case <-ctx.Done():
			t.flush()
			return
		}
	}
}

func (t *Trail) flush() {
	for {
		select {
		case e := <-t.queue:
			t.write(e)
		default:
			return
		}
	}
}

// write uses its own context so entries queued before shutdown still land.
func (t *Trail) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.repo.Create(ctx, e); err != nil {
		t.logger.Error("audit write failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}

func (t *Trail) prune() {
	if t.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := t.repo.Prune(ctx, t.now().Add(-t.retention))
	if err != nil {
		t.logger.Error("audit prune failed", "error", err)
		return
	}
	if n > 0 {
		t.logger.Info("audit entries pruned", "removed", n, "retention", t.retention.String())
	}
}
