package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/presenced/internal/logger"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 5 * time.Second

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is the poller's state machine position.
type Status int

const (
	// StatusIdle is the state before the first tick.
	StatusIdle Status = iota
	// StatusNotConfigured means no user ID; the poller never leaves it.
	StatusNotConfigured
	// StatusLoading means a request for the current tick is in flight.
	StatusLoading
	// StatusReady carries freshly parsed data.
	StatusReady
	// StatusErrored means the current tick failed. No data is retained.
	StatusErrored
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNotConfigured:
		return "not_configured"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusErrored:
		return "errored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ///////////////////////////////////////////////
// Snapshot
// ///////////////////////////////////////////////

// Candidate is the single thing worth displaying. Exactly one field is set.
type Candidate struct {
	Music    *MusicStatus
	Activity *ActivityStatus
}

// Snapshot is an immutable view of the poller state. Music, Activities, and
// Primary are only populated for [StatusReady].
type Snapshot struct {
	Status     Status
	Generation uint64
	Music      *MusicStatus
	Activities []ActivityStatus
	Primary    *Candidate
	Err        error
	UpdatedAt  time.Time
}

// ChoosePrimary picks the display candidate: playing music first, then the
// first activity (the first editor activity when preferEditor is set, falling
// back to the first of any kind). It returns nil when nothing qualifies.
func ChoosePrimary(music *MusicStatus, acts []ActivityStatus, preferEditor bool) *Candidate {
	if music != nil && music.IsPlaying {
		return &Candidate{Music: music}
	}
	if preferEditor {
		for i := range acts {
			if acts[i].Kind == KindEditor {
				return &Candidate{Activity: &acts[i]}
			}
		}
	}
	if len(acts) > 0 {
		return &Candidate{Activity: &acts[0]}
	}
	return nil
}

// ///////////////////////////////////////////////
// Poller
// ///////////////////////////////////////////////

// Fetcher retrieves a raw payload. [*Client] is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, userID string) (*Response, error)
}

// PollerOptions configures [NewPoller].
type PollerOptions struct {
	// UserID is the watched user. Empty puts the poller in
	// [StatusNotConfigured] permanently.
	UserID string
	// Interval is the refresh period; defaults to [DefaultInterval].
	Interval time.Duration
	// Fetcher performs the network call.
	Fetcher Fetcher
	// Parser derives activities; defaults to NewParser(ParserOptions{}).
	Parser *Parser
	// PreferEditor makes editor activities outrank earlier non-editor ones.
	PreferEditor bool
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// Poller refreshes presence on a fixed interval. At most one request is in
// flight: each tick cancels its predecessor, and a result is committed only
// if its tick is still the newest one.
type Poller struct {
	userID       string
	interval     time.Duration
	fetcher      Fetcher
	parser       *Parser
	preferEditor bool
	now          func() time.Time
	log          *slog.Logger
	metrics      *Metrics

	// mu guards every field below.
	mu sync.Mutex
	// snap is the published state.
	snap Snapshot
	// gen is the generation of the newest tick.
	gen uint64
	// cancel aborts the newest tick's request; nil when none is in flight.
	cancel context.CancelFunc
	// stopped is set once by [Poller.Stop]; no transitions happen after it.
	stopped bool

	// changes is buffered to 1 so bursts of transitions coalesce.
	changes chan struct{}
	// wg tracks tick goroutines so Stop can wait for them.
	wg sync.WaitGroup
}

// NewPoller creates a Poller in [StatusIdle], or [StatusNotConfigured] when
// opts.UserID is empty.
func NewPoller(opts PollerOptions) *Poller {
	p := &Poller{
		userID:       opts.UserID,
		interval:     opts.Interval,
		fetcher:      opts.Fetcher,
		parser:       opts.Parser,
		preferEditor: opts.PreferEditor,
		now:          opts.Now,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		changes:      make(chan struct{}, 1),
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.parser == nil {
		p.parser = NewParser(ParserOptions{})
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.log = p.log.With("component", "poller")

	p.snap = Snapshot{Status: StatusIdle, UpdatedAt: p.now()}
	if p.userID == "" {
		p.snap.Status = StatusNotConfigured
		p.snap.Err = ErrNotConfigured
	}
	p.metrics.observeStatus(p.snap.Status)
	return p
}

// Configured reports whether a user ID is set.
func (p *Poller) Configured() bool {
	return p.userID != ""
}

// Snapshot returns the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Changes delivers a signal after each state transition. Signals coalesce;
// read [Poller.Snapshot] for the latest state.
func (p *Poller) Changes() <-chan struct{} {
	return p.changes
}

// Run ticks immediately and then every interval until ctx ends, then tears
// down: the in-flight request is cancelled and tick goroutines are awaited.
// With no user ID it returns at once without touching the network.
func (p *Poller) Run(ctx context.Context) {
	if !p.Configured() {
		p.log.Info("presence user id not configured, poller disabled")
		return
	}
	defer p.Stop()

	p.log.Info("poller started", "user_id", p.userID, "interval", p.interval)
	p.Tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick starts a new refresh cycle: it cancels any outstanding request,
// advances the generation, moves to [StatusLoading], and fetches in the
// background. It is a no-op when unconfigured or stopped.
func (p *Poller) Tick(ctx context.Context) {
	if !p.Configured() {
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	tickCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.snap = Snapshot{Status: StatusLoading, Generation: gen, UpdatedAt: p.now()}
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.tick()
	p.metrics.observeStatus(StatusLoading)
	p.notify()
	logger.Trace(p.log, "tick", "gen", gen)

	go p.runTick(tickCtx, cancel, gen)
}

// Stop cancels the in-flight request and waits for tick goroutines. It is
// idempotent; once it returns the snapshot never changes again.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// runTick executes the fetch/parse pipeline for generation gen.
func (p *Poller) runTick(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer p.wg.Done()
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("presence pipeline panic: %v", r)
			logger.Fail(p.log, "tick panicked", "gen", gen, "error", err)
			p.commitError(gen, err)
		}
	}()

	start := time.Now()
	resp, err := p.fetcher.Fetch(ctx, p.userID)
	p.metrics.observeFetch(time.Since(start))

	if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
		logger.Trace(p.log, "tick cancelled", "gen", gen)
		return
	}
	if err != nil {
		p.commitError(gen, err)
		return
	}
	if resp == nil || resp.PresenceData == nil {
		p.commitError(gen, fmt.Errorf("%w: empty response", ErrParse))
		return
	}

	now := p.now()
	music := ParseMusic(resp.PresenceData.SpotifyStatus, now)
	acts := p.parser.ParseActivities(resp.PresenceData.MiscActivities)
	snap := Snapshot{
		Status:     StatusReady,
		Generation: gen,
		Music:      music,
		Activities: acts,
		Primary:    ChoosePrimary(music, acts, p.preferEditor),
		UpdatedAt:  now,
	}
	if p.commit(snap) {
		p.metrics.result(nil)
		p.log.Debug("presence refreshed",
			"gen", gen,
			"playing", music != nil && music.IsPlaying,
			"activities", len(acts),
		)
	}
}

// commitError publishes an errored snapshot for gen. Stale data is dropped
// rather than kept.
func (p *Poller) commitError(gen uint64, err error) {
	snap := Snapshot{Status: StatusErrored, Generation: gen, Err: err, UpdatedAt: p.now()}
	if p.commit(snap) {
		p.metrics.result(err)
		p.log.Warn("presence refresh failed", "gen", gen, "kind", ErrorKind(err), "error", err)
	}
}

// commit publishes snap if its generation is still the newest and the
// poller has not stopped. It reports whether snap was published.
func (p *Poller) commit(snap Snapshot) bool {
	p.mu.Lock()
	if p.stopped || snap.Generation != p.gen {
		p.mu.Unlock()
		logger.Trace(p.log, "discarding stale result", "gen", snap.Generation)
		return false
	}
	p.snap = snap
	p.cancel = nil
	p.mu.Unlock()

	p.metrics.observeStatus(snap.Status)
	p.notify()
	return true
}

// notify sends a coalescing change signal.
func (p *Poller) notify() {
	select {
	case p.changes <- struct{}{}:
	default:
	}
}

// ErrorKind classifies err for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "internal"
	}
}
