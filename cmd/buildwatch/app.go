package main

import (
	"context"
	"fmt"
	"time"

	"github.com/obentoo/buildwatch/internal/common/config"
	"github.com/obentoo/buildwatch/internal/common/httpclient"
	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/common/version"
	"github.com/obentoo/buildwatch/internal/engine"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/obentoo/buildwatch/internal/remote"
	"github.com/obentoo/buildwatch/internal/resolver"
	"github.com/obentoo/buildwatch/internal/selection"
	"github.com/obentoo/buildwatch/internal/stats"
	"github.com/obentoo/buildwatch/internal/tracker"
)

// app holds everything a command needs, wired from the config file
type app struct {
	cfg     *config.Config
	lib     *library.Library
	store   *tracker.Store
	session *remote.Session
	engine  *engine.Engine
}

// loadConfig reads --config when given, the default locations otherwise
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newHTTPClient(cfg *config.Config) *httpclient.RetryableHTTPClient {
	retry := httpclient.DefaultRetryConfig()
	if cfg.HTTP.MaxRetries >= 0 {
		retry.MaxRetries = cfg.HTTP.MaxRetries
	}
	if cfg.HTTP.Timeout > 0 {
		retry.Timeout = cfg.HTTP.Timeout
	}
	client := httpclient.NewRetryableHTTPClientWithConfig(retry)
	client.SetDefaultHeaders(map[string]string{"User-Agent": version.UserAgent()})
	return client
}

// openApp loads the library and the tracking cache, prunes cached state of
// removed entries and wires the engine. The remote session is created but
// only started when withSession is set.
func openApp(ctx context.Context, withSession bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	libPath, err := cfg.GetLibraryPath()
	if err != nil {
		return nil, err
	}
	lib, err := library.Load(libPath)
	if err != nil {
		return nil, err
	}
	if lib.Dirty() {
		if err := lib.Save(); err != nil {
			return nil, fmt.Errorf("saving generated entry ids: %w", err)
		}
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, err
	}
	store, err := tracker.Open(dataDir, tracker.WithDefaultMonths(cfg.Tracking.DefaultUpdateMonths))
	if err != nil {
		return nil, err
	}

	client := newHTTPClient(cfg)
	session := remote.NewSession(
		remote.NewGatewayTransport(cfg.Gateway.URL, client),
		remote.WithPollInterval(cfg.Gateway.PollInterval),
	)
	res := resolver.New(session)
	sel := selection.New(res, store,
		selection.WithExcludeTags(cfg.Tracking.ExcludeTags),
		selection.WithProgress(func(e library.Entry) {
			logger.Debug("considering %s", e.Name)
		}),
	)
	reviews := stats.NewReviewClient(cfg.Reviews.URL, client,
		stats.WithRateLimit(cfg.Reviews.RequestsPerSecond, 1))

	a := &app{
		cfg:     cfg,
		lib:     lib,
		store:   store,
		session: session,
		engine: engine.New(session, res, store, sel, stats.NewAggregator(reviews),
			engine.WithUpdateTag(cfg.Tracking.UpdateTag)),
	}

	if _, err := a.engine.Reconcile(lib.Games); err != nil {
		logger.Warn("%v", err)
	}

	if withSession {
		if err := a.connect(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// connect starts the session and waits for the anonymous logon
func (a *app) connect(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	timeout := a.cfg.HTTP.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.session.WaitReady(waitCtx); err != nil {
		return fmt.Errorf("connecting to %s: %w", a.cfg.Gateway.URL, err)
	}
	return nil
}

// Close stops the session if it was started
func (a *app) Close() {
	a.session.Stop()
}

// saveLibrary writes the library back to disk
func (a *app) saveLibrary() error {
	if err := a.lib.Save(); err != nil {
		return fmt.Errorf("saving library: %w", err)
	}
	return nil
}

// findEntries resolves refs (ids or names) to library entries. No refs
// selects the whole library.
func (a *app) findEntries(refs []string) ([]*library.Entry, error) {
	if len(refs) == 0 {
		entries := make([]*library.Entry, len(a.lib.Games))
		for i := range a.lib.Games {
			entries[i] = &a.lib.Games[i]
		}
		return entries, nil
	}

	entries := make([]*library.Entry, 0, len(refs))
	for _, ref := range refs {
		e, err := a.lib.Find(ref)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// formatDate renders a unix time as YYYY/MM/DD, or "never" for zero
func formatDate(seconds int64) string {
	if seconds == 0 {
		return "never"
	}
	return time.Unix(seconds, 0).UTC().Format(dateLayout)
}

// dateLayout is the YYYY/MM/DD format accepted by --last-updated
const dateLayout = "2006/01/02"

// parseDate reads a YYYY/MM/DD date as midnight UTC
func parseDate(s string) (int64, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q, expected YYYY/MM/DD", s)
	}
	return t.Unix(), nil
}
