package togglekit

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/klayengo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRefreshInterval = 5 * time.Second
	togglesURLPath         = "api/server-sdk/toggles"
	eventsURLPath          = "api/events"
	realtimeURLPath        = "realtime"
)

// HTTPDoer is the transport surface the synchronizer and event recorder
// need. *http.Client and *klayengo.Client both satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds everything needed to build a Client. ServerSDKKey and
// RemoteURL (or the individual URLs) are required; the rest has defaults.
type Config struct {
	// ServerSDKKey authenticates fetches against the toggle service.
	ServerSDKKey string

	// RemoteURL is the service base URL. TogglesURL, EventsURL and
	// RealtimeURL derive from it unless set explicitly.
	RemoteURL   string
	TogglesURL  string
	EventsURL   string
	RealtimeURL string

	// RefreshInterval is the poll period and the per-fetch timeout.
	// Defaults to 5s.
	RefreshInterval time.Duration

	// StartWait bounds how long Start blocks for the first successful
	// fetch. Zero means do not wait.
	StartWait time.Duration

	// MaxPrerequisitesDeep bounds prerequisite recursion. Defaults to
	// DefaultMaxPrerequisitesDeep.
	MaxPrerequisitesDeep int

	// HTTPClient overrides the default retrying client.
	HTTPClient HTTPDoer

	// Logger receives SDK log records. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives SDK instrumentation. Defaults to a fresh private
	// registry; pass NewMetricsWithRegisterer to share one.
	Metrics *Metrics
}

// resolvedConfig is a Config with defaults applied and URLs validated.
type resolvedConfig struct {
	serverSDKKey    string
	togglesURL      *url.URL
	eventsURL       *url.URL
	realtimeURL     *url.URL
	refreshInterval time.Duration
	startWait       time.Duration
	maxDepth        int
	httpClient      HTTPDoer
	logger          *slog.Logger
	metrics         *Metrics
}

func (c Config) build() (*resolvedConfig, error) {
	if c.ServerSDKKey == "" {
		return nil, fmt.Errorf("server sdk key is empty")
	}

	togglesURL, err := c.deriveURL(c.TogglesURL, togglesURLPath)
	if err != nil {
		return nil, err
	}
	eventsURL, err := c.deriveURL(c.EventsURL, eventsURLPath)
	if err != nil {
		return nil, err
	}
	realtimeURL, err := c.deriveURL(c.RealtimeURL, realtimeURLPath)
	if err != nil {
		return nil, err
	}

	rc := &resolvedConfig{
		serverSDKKey:    c.ServerSDKKey,
		togglesURL:      togglesURL,
		eventsURL:       eventsURL,
		realtimeURL:     realtimeURL,
		refreshInterval: c.RefreshInterval,
		startWait:       c.StartWait,
		maxDepth:        c.MaxPrerequisitesDeep,
		httpClient:      c.HTTPClient,
	}
	if rc.refreshInterval <= 0 {
		rc.refreshInterval = defaultRefreshInterval
	}
	if rc.maxDepth <= 0 {
		rc.maxDepth = DefaultMaxPrerequisitesDeep
	}
	if rc.httpClient == nil {
		rc.httpClient = defaultHTTPClient(rc.refreshInterval)
	}
	rc.logger = c.Logger
	if rc.logger == nil {
		rc.logger = slog.Default()
	}
	rc.metrics = c.Metrics
	if rc.metrics == nil {
		rc.metrics = NewMetrics()
	}
	return rc, nil
}

// deriveURL resolves an explicit URL, or joins path onto RemoteURL.
func (c Config) deriveURL(explicit, path string) (*url.URL, error) {
	raw := explicit
	if raw == "" {
		if c.RemoteURL == "" {
			return nil, fmt.Errorf("remote url is empty and no %s url given", path)
		}
		raw = strings.TrimSuffix(c.RemoteURL, "/") + "/" + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &URLError{URL: raw, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &URLError{URL: raw, Err: fmt.Errorf("missing scheme or host")}
	}
	return u, nil
}

// defaultHTTPClient retries transient failures with exponential backoff and
// traces outbound requests.
func defaultHTTPClient(timeout time.Duration) HTTPDoer {
	return klayengo.New(
		klayengo.WithTimeout(timeout),
		klayengo.WithMaxRetries(2),
		klayengo.WithInitialBackoff(100*time.Millisecond),
		klayengo.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	)
}

// ConfigFromEnv reads configuration from TOGGLEKIT_* environment variables:
// TOGGLEKIT_SERVER_SDK_KEY, TOGGLEKIT_REMOTE_URL, TOGGLEKIT_TOGGLES_URL,
// TOGGLEKIT_EVENTS_URL, TOGGLEKIT_REALTIME_URL, TOGGLEKIT_REFRESH_INTERVAL,
// TOGGLEKIT_START_WAIT and TOGGLEKIT_MAX_PREREQUISITES_DEEP.
func ConfigFromEnv() (Config, error) {
	c := Config{
		ServerSDKKey: os.Getenv("TOGGLEKIT_SERVER_SDK_KEY"),
		RemoteURL:    os.Getenv("TOGGLEKIT_REMOTE_URL"),
		TogglesURL:   os.Getenv("TOGGLEKIT_TOGGLES_URL"),
		EventsURL:    os.Getenv("TOGGLEKIT_EVENTS_URL"),
		RealtimeURL:  os.Getenv("TOGGLEKIT_REALTIME_URL"),
	}
	var err error
	if c.RefreshInterval, err = envDuration("TOGGLEKIT_REFRESH_INTERVAL"); err != nil {
		return Config{}, err
	}
	if c.StartWait, err = envDuration("TOGGLEKIT_START_WAIT"); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv("TOGGLEKIT_MAX_PREREQUISITES_DEEP"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse TOGGLEKIT_MAX_PREREQUISITES_DEEP: %w", err)
		}
		c.MaxPrerequisitesDeep = n
	}
	return c, nil
}

func envDuration(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}
