// Package autosave periodically persists the current document content as
// a version snapshot. Saves are single-flight: a tick that fires while a
// save request is still running is skipped, never queued.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/hsinyu-ko/coedit/internal/errors"
	"github.com/hsinyu-ko/coedit/internal/logging"
)

// DefaultSummary labels snapshots produced by the periodic save.
const DefaultSummary = "Auto-saved"

// Persister stores one content snapshot.
type Persister interface {
	SaveSnapshot(ctx context.Context, content, summary string) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, content, summary string) error

// SaveSnapshot implements Persister.
func (f PersistFunc) SaveSnapshot(ctx context.Context, content, summary string) error {
	return f(ctx, content, summary)
}

// Config tunes the saver. Zero values fall back to the defaults below.
type Config struct {
	// Interval paces the periodic save check.
	Interval time.Duration
	// Timeout bounds a single save request.
	Timeout time.Duration
	// Summary labels every snapshot.
	Summary string
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Summary == "" {
		c.Summary = DefaultSummary
	}
}

// Saver drives periodic and manual snapshot saves for one document.
//
// A periodic tick saves only when the content changed since the last
// successful save; SaveNow always issues a request. A failed save leaves
// the last-saved marker untouched, so the next tick retries naturally.
type Saver struct {
	cfg       Config
	source    func() string
	persister Persister

	mu          sync.Mutex
	inFlight    bool
	lastSaved   string
	lastSavedAt time.Time
	lastErr     error
	started     bool
	stopped     bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Saver reading content from source. seed is the content
// already persisted when the saver starts; an unchanged document produces
// no snapshot.
func New(cfg Config, seed string, source func() string, p Persister) *Saver {
	cfg.applyDefaults()
	return &Saver{
		cfg:       cfg,
		source:    source,
		persister: p,
		lastSaved: seed,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic save loop. It is a no-op when already
// started or stopped.
func (s *Saver) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

func (s *Saver) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.save(false)
		}
	}
}

// SaveNow issues a save immediately, bypassing the unchanged check. When
// a save is already in flight it does nothing and returns nil.
func (s *Saver) SaveNow() error {
	return s.save(true)
}

// save runs one save attempt. With force false the attempt is skipped
// when the content matches the last successful save.
func (s *Saver) save(force bool) error {
	content := s.source()

	s.mu.Lock()
	if s.stopped || s.inFlight {
		s.mu.Unlock()
		return nil
	}
	if !force && content == s.lastSaved {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	err := s.persister.SaveSnapshot(ctx, content, s.cfg.Summary)
	cancel()

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.lastErr = errors.Wrap(errors.ErrSnapshotSaveFailed, "save snapshot", err)
	} else {
		s.lastErr = nil
		s.lastSaved = content
		s.lastSavedAt = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		logging.Error("snapshot save failed", err)
		return s.LastError()
	}
	logging.Debug("snapshot saved", map[string]interface{}{"bytes": len(content)})
	return nil
}

// Stop halts the periodic loop and waits for it to exit. An in-flight
// save request is allowed to finish. Stop is idempotent.
func (s *Saver) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// LastError returns the error from the most recent save attempt, or nil
// if it succeeded.
func (s *Saver) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastSavedAt returns when the last successful save completed.
func (s *Saver) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// Dirty reports whether the current content differs from the last
// successful save.
func (s *Saver) Dirty() bool {
	content := s.source()
	s.mu.Lock()
	defer s.mu.Unlock()
	return content != s.lastSaved
}
