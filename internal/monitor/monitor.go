// Package monitor runs one fetch-match-merge-write cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rewired-gh/skywatch/internal/alert"
	"github.com/rewired-gh/skywatch/internal/lock"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
	"github.com/rewired-gh/skywatch/internal/tracker"
	"github.com/rewired-gh/skywatch/internal/watchlist"
)

// WatchlistSource builds a fresh watchlist index.
type WatchlistSource interface {
	Fetch(ctx context.Context) (*watchlist.Index, error)
}

// StateSource returns the current live aircraft.
type StateSource interface {
	FetchStates(ctx context.Context) ([]models.LiveState, error)
}

// SnapshotStore loads prior traces and replaces the snapshot.
type SnapshotStore interface {
	Load() models.History
	Save(snap models.Snapshot) error
}

// Notifier delivers one sighting.
type Notifier interface {
	SendSighting(ctx context.Context, s models.Sighting) error
}

// Publisher fans out a finished snapshot.
type Publisher interface {
	Publish(cycleID string, snap models.Snapshot) error
}

// RunRecorder keeps the cycle run log.
type RunRecorder interface {
	RecordRun(run *models.CycleRun) error
}

// Deps are the collaborators of a Monitor. Notifier, Publisher and Runs are
// optional; Locker defaults to lock.Nop and Decider to the default policy.
type Deps struct {
	Watchlist WatchlistSource
	States    StateSource
	Store     SnapshotStore
	Locker    lock.Locker
	Decider   *alert.Decider
	Notifier  Notifier
	Publisher Publisher
	Runs      RunRecorder
}

type Config struct {
	MaxTracePoints      int
	PreserveOnEmptyFeed bool
	CycleTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxTracePoints: models.MaxTracePoints,
		CycleTimeout:   3 * time.Minute,
	}
}

// Result summarizes a completed cycle.
type Result struct {
	CycleID      string
	StartedAt    time.Time
	Duration     time.Duration
	LiveCount    int
	Matches      models.Snapshot
	Written      bool
	AlertsSent   int
	AlertsFailed int
}

type Monitor struct {
	deps   Deps
	config Config

	mu   sync.Mutex
	last *Result
}

func New(deps Deps, config Config) *Monitor {
	if deps.Locker == nil {
		deps.Locker = lock.Nop{}
	}
	if deps.Decider == nil {
		deps.Decider = alert.NewDecider(nil, nil)
	}
	if config.MaxTracePoints <= 0 || config.MaxTracePoints > models.MaxTracePoints {
		config.MaxTracePoints = models.MaxTracePoints
	}
	return &Monitor{deps: deps, config: config}
}

// RunCycle performs one cycle. A source failure aborts before anything is
// written and the prior snapshot stays in place. Alert delivery happens after
// the snapshot is persisted and its failures never fail the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (*Result, error) {
	res := &Result{CycleID: uuid.NewString(), StartedAt: time.Now()}

	if m.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.CycleTimeout)
		defer cancel()
	}

	release, err := m.deps.Locker.TryLock(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			cyclesTotal.WithLabelValues("locked").Inc()
		} else {
			cyclesTotal.WithLabelValues("failed").Inc()
		}
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("Failed to release cycle lock: %v", err)
		}
	}()

	logger.Info("Starting scan cycle %s", res.CycleID)

	idx, err := m.deps.Watchlist.Fetch(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}

	history := m.deps.Store.Load()

	states, err := m.deps.States.FetchStates(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to fetch live states: %w", err)
	}
	res.LiveCount = len(states)
	liveAircraft.Set(float64(len(states)))

	if len(states) == 0 && m.config.PreserveOnEmptyFeed {
		logger.Warn("Live feed is empty, keeping the previous snapshot")
		cyclesTotal.WithLabelValues("preserved").Inc()
		m.finish(res)
		return res, nil
	}

	res.Matches = tracker.Match(idx, states, history, m.config.MaxTracePoints)
	logger.Info("Matched %d of %s live aircraft against %s watched",
		len(res.Matches), humanize.Comma(int64(len(states))), humanize.Comma(int64(idx.Len())))
	if len(states) == 0 {
		logger.Warn("Live feed is empty, all prior traces will be dropped")
	}

	if err := m.deps.Store.Save(res.Matches); err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	res.Written = true
	matchedAircraft.Set(float64(len(res.Matches)))

	m.dispatchAlerts(ctx, res)

	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.Publish(res.CycleID, res.Matches); err != nil {
			logger.Warn("Failed to broadcast snapshot: %v", err)
		}
	}

	cyclesTotal.WithLabelValues("ok").Inc()
	m.finish(res)
	return res, nil
}

// dispatchAlerts stops once ctx is done; undelivered hits are not recorded.
func (m *Monitor) dispatchAlerts(ctx context.Context, res *Result) {
	now := time.Now()
	hits := m.deps.Decider.Select(res.Matches, now)
	for i, hit := range hits {
		if err := ctx.Err(); err != nil {
			logger.Warn("Stopped alert delivery with %d of %d pending: %v", len(hits)-i, len(hits), err)
			break
		}
		if m.deps.Notifier == nil {
			logger.Debug("Alert for %s (%s) skipped: notifications disabled", hit.Hex, hit.Category)
			continue
		}
		err := m.deps.Notifier.SendSighting(ctx, models.Sighting{Aircraft: hit, CycleID: res.CycleID, SeenAt: now})
		if err != nil {
			res.AlertsFailed++
			alertsTotal.WithLabelValues("failed").Inc()
			logger.Error("Failed to send alert for %s: %v", hit.Hex, err)
			continue
		}
		res.AlertsSent++
		alertsTotal.WithLabelValues("sent").Inc()
		m.deps.Decider.Delivered(hit, res.CycleID, now)
	}
	if res.AlertsSent > 0 || res.AlertsFailed > 0 {
		logger.Info("Alerts: %d sent, %d failed", res.AlertsSent, res.AlertsFailed)
	}
}

func (m *Monitor) finish(res *Result) {
	res.Duration = time.Since(res.StartedAt)
	cycleDuration.Observe(res.Duration.Seconds())

	if m.deps.Runs != nil {
		run := &models.CycleRun{
			ID:         res.CycleID,
			StartedAt:  res.StartedAt,
			Duration:   res.Duration,
			LiveCount:  res.LiveCount,
			MatchCount: len(res.Matches),
			AlertsSent: res.AlertsSent,
			Written:    res.Written,
		}
		if err := m.deps.Runs.RecordRun(run); err != nil {
			logger.Warn("Failed to record cycle run: %v", err)
		}
	}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()

	logger.Info("Scan cycle %s completed in %v", res.CycleID, res.Duration.Round(time.Millisecond))
}

// Last returns the most recent completed cycle, or nil.
func (m *Monitor) Last() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Status describes the last completed cycle in one line.
func (m *Monitor) Status() string {
	last := m.Last()
	if last == nil {
		return "No completed cycle yet"
	}
	return fmt.Sprintf("Last cycle %s: %d watched aircraft airborne out of %s, %d alerts sent",
		humanize.Time(last.StartedAt), len(last.Matches), humanize.Comma(int64(last.LiveCount)), last.AlertsSent)
}

// IsLocked reports whether err means another cycle was already running.
func IsLocked(err error) bool {
	return errors.Is(err, lock.ErrLocked)
}
