// Package togglekit is an embedded feature toggle SDK. A Client keeps a
// local repository of toggles in sync with a remote toggle service and
// evaluates them against user attributes without further network calls.
//
// Typical use:
//
//	client, err := togglekit.New(togglekit.Config{
//		ServerSDKKey: key,
//		RemoteURL:    "https://toggles.example.com/",
//		StartWait:    5 * time.Second,
//	})
//	if err != nil { ... }
//	defer client.Close()
//
//	user := togglekit.NewUser().With("city", "1")
//	if client.BoolValue("new_checkout", user, false) { ... }
package togglekit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const sdkVersion = "1.0.0"

const userAgent = "Go/" + sdkVersion

// Client is the SDK entry point. All methods are safe for concurrent use.
type Client struct {
	synchronizer *Synchronizer
	log          *slog.Logger
	metrics      *Metrics
	maxDepth     int

	mu       sync.RWMutex
	recorder AccessRecorder
}

// New builds a client and starts background synchronization. When
// Config.StartWait is set, New blocks until the first repository arrives or
// the wait elapses; the returned client keeps polling either way, so a
// timeout error still comes with a usable (if empty) client.
func New(config Config) (*Client, error) {
	cfg, err := config.build()
	if err != nil {
		return nil, err
	}

	c := &Client{
		synchronizer: NewSynchronizer(cfg, cfg.logger, cfg.metrics),
		log:          cfg.logger,
		metrics:      cfg.metrics,
		maxDepth:     cfg.maxDepth,
	}
	if err := c.synchronizer.Start(context.Background()); err != nil {
		return c, err
	}
	return c, nil
}

// NewWithRepository builds a client over a fixed local repository. No
// network activity happens; the repository can still be replaced later
// through the synchronizer's version gate via SyncNow on a started client,
// but this constructor never polls.
func NewWithRepository(repo *Repository) *Client {
	metrics := NewMetrics()
	c := &Client{
		synchronizer: &Synchronizer{
			interval: defaultRefreshInterval,
			log:      slog.Default(),
			metrics:  metrics,
			stop:     make(chan struct{}),
		},
		log:      slog.Default(),
		metrics:  metrics,
		maxDepth: DefaultMaxPrerequisitesDeep,
	}
	c.synchronizer.seed(repo)
	return c
}

// Close stops background synchronization. The client keeps serving the last
// held repository afterwards.
func (c *Client) Close() {
	c.synchronizer.Close()
}

// SyncNow fetches the repository once, outside the poll schedule.
func (c *Client) SyncNow(ctx context.Context) error {
	return c.synchronizer.SyncNow(ctx)
}

// Initialized reports whether the client has completed at least one
// successful fetch (or was built from a local repository).
func (c *Client) Initialized() bool {
	return c.synchronizer.Initialized()
}

// SetUpdateCallback registers cb to observe repository swaps.
func (c *Client) SetUpdateCallback(cb UpdateCallback) {
	c.synchronizer.SetUpdateCallback(cb)
}

// SetAccessRecorder registers r to receive access events for toggles that
// track them. Pass nil to stop recording.
func (c *Client) SetAccessRecorder(r AccessRecorder) {
	c.mu.Lock()
	c.recorder = r
	c.mu.Unlock()
}

// Metrics exposes the SDK's Prometheus collectors, for mounting on a host
// metrics endpoint.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// BoolValue evaluates toggle for user and returns its boolean value, or
// defaultValue when the toggle is missing or not a boolean.
func (c *Client) BoolValue(toggle string, user *User, defaultValue bool) bool {
	return value(c, toggle, user, defaultValue, asBool)
}

// StringValue evaluates toggle for user and returns its string value, or
// defaultValue when the toggle is missing or not a string.
func (c *Client) StringValue(toggle string, user *User, defaultValue string) string {
	return value(c, toggle, user, defaultValue, asString)
}

// NumberValue evaluates toggle for user and returns its numeric value, or
// defaultValue when the toggle is missing or not a number.
func (c *Client) NumberValue(toggle string, user *User, defaultValue float64) float64 {
	return value(c, toggle, user, defaultValue, asNumber)
}

// JSONValue evaluates toggle for user and returns its raw decoded value,
// or defaultValue when the toggle is missing.
func (c *Client) JSONValue(toggle string, user *User, defaultValue any) any {
	return value(c, toggle, user, defaultValue, asJSON)
}

// BoolDetail is BoolValue plus the rule, variation and reason behind the
// result.
func (c *Client) BoolDetail(toggle string, user *User, defaultValue bool) Detail[bool] {
	return detail(c, toggle, user, defaultValue, asBool)
}

// StringDetail is StringValue plus the rule, variation and reason behind
// the result.
func (c *Client) StringDetail(toggle string, user *User, defaultValue string) Detail[string] {
	return detail(c, toggle, user, defaultValue, asString)
}

// NumberDetail is NumberValue plus the rule, variation and reason behind
// the result.
func (c *Client) NumberDetail(toggle string, user *User, defaultValue float64) Detail[float64] {
	return detail(c, toggle, user, defaultValue, asNumber)
}

// JSONDetail is JSONValue plus the rule, variation and reason behind the
// result.
func (c *Client) JSONDetail(toggle string, user *User, defaultValue any) Detail[any] {
	return detail(c, toggle, user, defaultValue, asJSON)
}

func value[T any](c *Client, toggle string, user *User, defaultValue T, cast func(any) (T, bool)) T {
	raw, ok := c.evalDetail(toggle, user, false)
	c.metrics.RecordEvaluation(ok)
	if !ok {
		return defaultValue
	}
	c.recordAccess(toggle, user, raw)
	if raw.Value == nil {
		return defaultValue
	}
	v, castOK := cast(raw.Value)
	if !castOK {
		return defaultValue
	}
	return v
}

func detail[T any](c *Client, toggle string, user *User, defaultValue T, cast func(any) (T, bool)) Detail[T] {
	raw, ok := c.evalDetail(toggle, user, true)
	c.metrics.RecordEvaluation(ok)
	if !ok {
		return Detail[T]{
			Value:  defaultValue,
			Reason: fmt.Sprintf("Toggle:[%s] not exist", toggle),
		}
	}
	c.recordAccess(toggle, user, raw)
	return detailOf(raw, defaultValue, cast)
}

func (c *Client) evalDetail(toggle string, user *User, isDetail bool) (EvalDetail, bool) {
	repo := c.synchronizer.Snapshot()
	if repo == nil {
		return EvalDetail{}, false
	}
	t, ok := repo.Toggles[toggle]
	if !ok {
		return EvalDetail{}, false
	}
	d := t.evalWithLogger(user, repo.Segments, repo.Toggles, isDetail, c.maxDepth, repo.DebugUntilTime, c.log)
	return d, true
}

// recordAccess hands an event to the registered recorder when the toggle
// tracks access events or is within its debug window.
func (c *Client) recordAccess(toggle string, user *User, raw EvalDetail) {
	c.mu.RLock()
	r := c.recorder
	c.mu.RUnlock()
	if r == nil {
		return
	}

	now := nowUnixMilli()
	track := raw.TrackAccessEvents != nil && *raw.TrackAccessEvents
	debug := raw.DebugUntilTime != nil && *raw.DebugUntilTime >= now
	if !track && !debug {
		return
	}

	r.RecordAccess(AccessEvent{
		Time:           now,
		Key:            toggle,
		Value:          raw.Value,
		VariationIndex: raw.VariationIndex,
		RuleIndex:      raw.RuleIndex,
		Version:        raw.Version,
		Reason:         raw.Reason,
		User:           user.Key(),
	})
}
