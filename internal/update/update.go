// Package update implements the trail updater (TU): a periodic task
// that refreshes the trail store's current snapshot. The remote
// fetch/merge format itself is out of scope (spec.md §1); Fetcher is
// the in-scope collaborator contract it talks through.
package update

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentineltrail/sentinel/internal/trail"
)

// Fetcher retrieves a fresh trail snapshot from a configured source.
// A non-nil error, or an empty snapshot, both count as "no fresh
// table" per spec.md §4.1 step 2/3.
type Fetcher interface {
	Fetch(ctx context.Context, server string) (*trail.Snapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, server string) (*trail.Snapshot, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, server string) (*trail.Snapshot, error) {
	return f(ctx, server)
}

// HTTPFetcher fetches a trail table as JSON over net/http. It is the
// default, in-scope transport for the out-of-scope feed-merge service
// (spec.md §1, §6).
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, server string) (*trail.Snapshot, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{resp.StatusCode}
	}

	snap := trail.NewSnapshot()
	if err := decodeJSONBody(resp, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func decodeJSONBody(resp *http.Response, snap *trail.Snapshot) error {
	return json.NewDecoder(resp.Body).Decode(snap)
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

// Updater runs the periodic refresh loop described in spec.md §4.1.
type Updater struct {
	Store      *trail.Store
	Fetcher    Fetcher
	Server     string
	Period     time.Duration
	CachePath  string
	Log        *logrus.Logger
}

// Run blocks, ticking every Period until ctx is cancelled. Each tick
// follows spec.md §4.1 steps 1-4 exactly: fetch; install if non-empty;
// else fall back to the local cache only if nothing is installed yet;
// reschedule.
func (u *Updater) Run(ctx context.Context) {
	log := u.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	u.tick(ctx, log)

	ticker := time.NewTicker(u.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.tick(ctx, log)
		}
	}
}

func (u *Updater) tick(ctx context.Context, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	snap, err := u.Fetcher.Fetch(ctx, u.Server)
	if err != nil {
		log.WithError(err).Warn("trail update: fetch failed, retrying next tick")
		snap = nil
	}

	switch {
	case snap != nil && !snap.Empty():
		u.Store.Install(snap)
		log.WithFields(logrus.Fields{
			"ip":  len(snap.IP),
			"dns": len(snap.DNS),
			"url": len(snap.URL),
		}).Info("trail update: installed fresh snapshot")
	case u.Store.Load() == nil:
		cached, err := trail.LoadCache(u.CachePath)
		if err != nil {
			log.WithError(err).Warn("trail update: no snapshot installed and local cache unavailable")
			return
		}
		u.Store.Install(cached)
		log.Info("trail update: installed cached snapshot")
	}
}
