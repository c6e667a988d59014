package togglekit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SyncType tells an update callback what triggered the repository swap.
type SyncType int

const (
	// SyncPolling marks swaps made by the background poll loop.
	SyncPolling SyncType = iota
	// SyncManual marks swaps made by an explicit SyncNow call.
	SyncManual
)

func (t SyncType) String() string {
	switch t {
	case SyncPolling:
		return "polling"
	case SyncManual:
		return "manual"
	default:
		return "unknown"
	}
}

// UpdateCallback observes repository swaps. It runs outside the
// synchronizer's lock, once per swap, after the new repository is visible
// to readers.
type UpdateCallback func(old, new *Repository, syncType SyncType)

// Synchronizer keeps a local repository snapshot fresh by polling the
// toggle service. The held repository is replaced wholesale on each
// accepted update; snapshots handed to readers are never mutated.
type Synchronizer struct {
	togglesURL string
	sdkKey     string
	interval   time.Duration
	startWait  time.Duration
	httpClient HTTPDoer
	log        *slog.Logger
	metrics    *Metrics

	mu       sync.RWMutex
	repo     *Repository
	callback UpdateCallback

	initialized atomic.Bool
	stopOnce    sync.Once
	stop        chan struct{}
}

// NewSynchronizer builds a synchronizer from a resolved configuration. It
// does not start polling; call Start.
func NewSynchronizer(cfg *resolvedConfig, log *slog.Logger, metrics *Metrics) *Synchronizer {
	return &Synchronizer{
		togglesURL: cfg.togglesURL.String(),
		sdkKey:     cfg.serverSDKKey,
		interval:   cfg.refreshInterval,
		startWait:  cfg.startWait,
		httpClient: cfg.httpClient,
		log:        log,
		metrics:    metrics,
		stop:       make(chan struct{}),
	}
}

// Start launches the poll loop. When a start wait is configured it blocks
// until the first fetch succeeds, or until failures can no longer resolve
// within the wait, or until ctx is done. The loop itself keeps running in
// either case until Close.
func (s *Synchronizer) Start(ctx context.Context) error {
	ready := make(chan error, 1)
	go s.loop(ctx, ready)

	if s.startWait <= 0 {
		return nil
	}
	timer := time.NewTimer(s.startWait)
	defer timer.Stop()
	select {
	case err := <-ready:
		return err
	case <-timer.C:
		return fmt.Errorf("synchronizer: no repository within %v", s.startWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) loop(ctx context.Context, ready chan<- error) {
	start := time.Now()
	reported := false
	report := func(err error) {
		if reported {
			return
		}
		if err == nil {
			reported = true
			ready <- nil
			return
		}
		// keep retrying silently while another attempt could still land
		// inside the start wait
		if s.startWait > 0 && time.Since(start)+s.interval > s.startWait {
			reported = true
			ready <- err
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		err := s.syncOnce(ctx, SyncPolling)
		if err != nil {
			s.log.Warn("repository sync failed", "error", err)
		}
		report(err)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncNow performs one fetch immediately, outside the poll schedule.
func (s *Synchronizer) SyncNow(ctx context.Context) error {
	return s.syncOnce(ctx, SyncManual)
}

func (s *Synchronizer) syncOnce(ctx context.Context, syncType SyncType) error {
	start := time.Now()
	err := s.fetch(ctx, syncType)
	s.metrics.RecordSync(syncType, err, time.Since(start))
	return err
}

func (s *Synchronizer) fetch(ctx context.Context, syncType SyncType) error {
	if s.httpClient == nil {
		return fmt.Errorf("synchronizer: no remote configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	url := s.togglesURL + "?version=" + strconv.FormatUint(s.Snapshot().versionOrZero(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", s.sdkKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &HTTPError{StatusCode: resp.StatusCode}
	}

	repo, err := DecodeRepository(body)
	if err != nil {
		return err
	}

	s.initialized.Store(true)
	s.applyIfNewer(&repo, syncType)
	return nil
}

// applyIfNewer swaps in repo when its version is strictly greater than the
// held one. The callback, if any, runs after the swap is visible.
func (s *Synchronizer) applyIfNewer(repo *Repository, syncType SyncType) bool {
	s.mu.Lock()
	if repo.versionOrZero() <= s.repo.versionOrZero() {
		s.mu.Unlock()
		return false
	}
	old := s.repo
	s.repo = repo
	cb := s.callback
	s.mu.Unlock()

	s.metrics.SetRepository(repo)
	s.log.Debug("repository updated",
		"version", repo.versionOrZero(),
		"toggles", len(repo.Toggles),
		"type", syncType.String())
	if cb != nil {
		cb(old, repo, syncType)
	}
	return true
}

// seed installs repo directly, bypassing the version gate. Used when the
// client is built from a local repository instead of a remote service.
func (s *Synchronizer) seed(repo *Repository) {
	s.mu.Lock()
	s.repo = repo
	s.mu.Unlock()
	s.metrics.SetRepository(repo)
	s.initialized.Store(true)
}

// Snapshot returns the currently held repository, or nil before the first
// accepted update. Callers must treat it as read-only.
func (s *Synchronizer) Snapshot() *Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo
}

// SetUpdateCallback registers cb for subsequent swaps, replacing any
// earlier callback.
func (s *Synchronizer) SetUpdateCallback(cb UpdateCallback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// Initialized reports whether at least one fetch has succeeded end to end.
func (s *Synchronizer) Initialized() bool {
	return s.initialized.Load()
}

// Close stops the poll loop. An in-flight fetch is not interrupted; the
// loop exits before its next attempt. Safe to call more than once.
func (s *Synchronizer) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
