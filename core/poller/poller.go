package poller

import (
	"context"
	"net/http"
	"sync"
	"time"

	"trackvault/config"
	"trackvault/logger"
)

// Gateway persists readiness transitions for tracks.
type Gateway interface {
	SetProcessing(ctx context.Context, trackID int64, processing bool) error
}

// ProbeFunc checks whether a playback locator is retrievable. A returned
// error means the probe was inconclusive (network failure, timeout), not
// that the file is absent.
type ProbeFunc func(ctx context.Context, playbackURL string) (bool, error)

// Entry is a track waiting to become playable.
type Entry struct {
	TrackID     int64
	PlaybackURL string
	CreatedAt   time.Time
}

// Poller probes processing tracks until the archive confirms them playable.
// A track that was marked ready in this session is never probed again, even
// if a later refresh re-registers it.
type Poller struct {
	mu      sync.Mutex
	pending map[int64]Entry
	checked map[int64]bool

	gateway  Gateway
	probe    ProbeFunc
	interval time.Duration
	fallback time.Duration
	now      func() time.Time
	onReady  func(trackID int64)
}

// Option configures a Poller.
type Option func(*Poller)

// WithProbe replaces the HTTP probe.
func WithProbe(probe ProbeFunc) Option { return func(p *Poller) { p.probe = probe } }

// WithInterval overrides the batch cadence.
func WithInterval(d time.Duration) Option { return func(p *Poller) { p.interval = d } }

// WithFallback overrides the assume-ready age threshold.
func WithFallback(d time.Duration) Option { return func(p *Poller) { p.fallback = d } }

// WithClock injects a clock.
func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

// WithOnReady installs a callback fired after a track's readiness has been
// persisted, so the view layer can refresh.
func WithOnReady(fn func(trackID int64)) Option { return func(p *Poller) { p.onReady = fn } }

// New builds a Poller with the standard defaults: 15s cadence, 5s probe
// timeout, 5 minute assume-ready fallback.
func New(gateway Gateway, opts ...Option) *Poller {
	p := &Poller{
		pending:  make(map[int64]Entry),
		checked:  make(map[int64]bool),
		gateway:  gateway,
		probe:    DefaultProbe(&http.Client{Timeout: config.ProbeTimeout}),
		interval: config.ProbeInterval,
		fallback: config.ProcessingFallback,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultProbe issues a HEAD request against the playback locator. Any
// success or redirect class status means the file is retrievable.
func DefaultProbe(client *http.Client) ProbeFunc {
	return func(ctx context.Context, playbackURL string) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, playbackURL, nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		resp.Body.Close()
		return resp.StatusCode < 400, nil
	}
}

// Register adds a processing track to the polling set. Tracks already
// confirmed ready this session are ignored.
func (p *Poller) Register(e Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked[e.TrackID] {
		return
	}
	p.pending[e.TrackID] = e
}

// Forget drops a track from the polling set without marking it checked.
func (p *Poller) Forget(trackID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, trackID)
}

// Run probes pending tracks on a fixed cadence until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunBatch(ctx)
		}
	}
}

// RunBatch probes every pending track concurrently and applies the results
// once all probes in the batch have resolved.
func (p *Poller) RunBatch(ctx context.Context) {
	p.mu.Lock()
	batch := make([]Entry, 0, len(p.pending))
	for _, e := range p.pending {
		batch = append(batch, e)
	}
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	type outcome struct {
		entry Entry
		ready bool
	}
	results := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i, entry := range batch {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			results[i] = outcome{entry: entry, ready: p.decide(ctx, entry)}
		}(i, entry)
	}
	wg.Wait()

	for _, res := range results {
		if res.ready {
			p.markReady(ctx, res.entry)
		}
	}
}

// decide resolves one probe. Probe errors are never fatal: the track is
// declared ready anyway once it is older than the fallback threshold,
// because cross-origin probe failures would otherwise pin it to
// "processing" forever.
func (p *Poller) decide(ctx context.Context, entry Entry) bool {
	probeCtx, cancel := context.WithTimeout(ctx, config.ProbeTimeout)
	defer cancel()

	ready, err := p.probe(probeCtx, entry.PlaybackURL)
	if err == nil {
		return ready
	}

	if p.now().Sub(entry.CreatedAt) > p.fallback {
		logger.Info("Assuming track ready after fallback window",
			logger.Int64("trackId", entry.TrackID),
			logger.Duration("age", p.now().Sub(entry.CreatedAt)),
		)
		return true
	}

	logger.Debug("Readiness probe inconclusive",
		logger.Int64("trackId", entry.TrackID),
		logger.ErrorField(err),
	)
	return false
}

func (p *Poller) markReady(ctx context.Context, entry Entry) {
	if err := p.gateway.SetProcessing(ctx, entry.TrackID, false); err != nil {
		// Keep it pending; the next batch retries the persistence.
		logger.Error("Failed to persist track readiness",
			logger.Int64("trackId", entry.TrackID),
			logger.ErrorField(err),
		)
		return
	}

	p.mu.Lock()
	delete(p.pending, entry.TrackID)
	p.checked[entry.TrackID] = true
	p.mu.Unlock()

	logger.Info("Track is ready", logger.Int64("trackId", entry.TrackID))
	if p.onReady != nil {
		p.onReady(entry.TrackID)
	}
}

// IsChecked reports whether the track was confirmed ready this session.
func (p *Poller) IsChecked(trackID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked[trackID]
}
