// Package main is a small demo client: it connects to a toggle service,
// keeps the repository in sync, and prints the value of one toggle for a
// synthetic user every refresh interval until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/togglekit/togglekit"
	"github.com/togglekit/togglekit/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

// attrFlags collects repeated -attr key=value pairs.
type attrFlags map[string]string

func (a attrFlags) String() string { return fmt.Sprint(map[string]string(a)) }

func (a attrFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("attribute must be key=value, got %q", v)
	}
	a[k] = val
	return nil
}

func run() error {
	var (
		remoteURL = flag.String("remote-url", "", "toggle service base URL (or TOGGLEKIT_REMOTE_URL)")
		sdkKey    = flag.String("sdk-key", "", "server SDK key (or TOGGLEKIT_SERVER_SDK_KEY)")
		toggle    = flag.String("toggle", "campaign_allow_list", "toggle key to evaluate")
		valueType = flag.String("type", "bool", "toggle value type: bool, string, number or json")
		userKey   = flag.String("user", "", "stable user key (random when empty)")
		interval  = flag.Duration("interval", 2*time.Second, "refresh interval")
		startWait = flag.Duration("start-wait", 5*time.Second, "max wait for the first repository")
		logLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat = flag.String("log-format", "text", "log format: text or json")
		attrs     = attrFlags{}
	)
	flag.Var(attrs, "attr", "user attribute key=value (repeatable)")
	flag.Parse()

	log := logging.New(*logLevel, *logFormat)
	slog.SetDefault(log)

	key := *sdkKey
	if key == "" {
		key = os.Getenv("TOGGLEKIT_SERVER_SDK_KEY")
	}
	remote := *remoteURL
	if remote == "" {
		remote = os.Getenv("TOGGLEKIT_REMOTE_URL")
	}

	client, err := togglekit.New(togglekit.Config{
		ServerSDKKey:    key,
		RemoteURL:       remote,
		RefreshInterval: *interval,
		StartWait:       *startWait,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("connect toggle service: %w", err)
	}
	defer client.Close()

	client.SetUpdateCallback(func(old, new *togglekit.Repository, syncType togglekit.SyncType) {
		log.Info("repository updated", "type", syncType.String())
	})

	user := togglekit.NewUser()
	if *userKey != "" {
		user.StableRollout(*userKey)
	}
	for k, v := range attrs {
		user = user.With(k, v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	evaluate, err := evaluator(client, *valueType)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		value, reason := evaluate(*toggle, user)
		fmt.Printf("%s = %v (reason: %s)\n", *toggle, value, reason)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func evaluator(client *togglekit.Client, valueType string) (func(string, *togglekit.User) (any, string), error) {
	switch valueType {
	case "bool":
		return func(toggle string, user *togglekit.User) (any, string) {
			d := client.BoolDetail(toggle, user, false)
			return d.Value, d.Reason
		}, nil
	case "string":
		return func(toggle string, user *togglekit.User) (any, string) {
			d := client.StringDetail(toggle, user, "")
			return d.Value, d.Reason
		}, nil
	case "number":
		return func(toggle string, user *togglekit.User) (any, string) {
			d := client.NumberDetail(toggle, user, 0)
			return d.Value, d.Reason
		}, nil
	case "json":
		return func(toggle string, user *togglekit.User) (any, string) {
			d := client.JSONDetail(toggle, user, nil)
			return d.Value, d.Reason
		}, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", valueType)
	}
}
