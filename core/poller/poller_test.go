package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu      sync.Mutex
	marked  []int64
	failFor map[int64]error
}

func (g *fakeGateway) SetProcessing(ctx context.Context, trackID int64, processing bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failFor[trackID]; ok {
		return err
	}
	g.marked = append(g.marked, trackID)
	return nil
}

func (g *fakeGateway) markedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.marked...)
}

func TestBatchMarksReadyTracks(t *testing.T) {
	gw := &fakeGateway{}
	var ready []int64
	p := New(gw,
		WithProbe(func(ctx context.Context, url string) (bool, error) { return true, nil }),
		WithOnReady(func(id int64) { ready = append(ready, id) }),
	)

	p.Register(Entry{TrackID: 1, PlaybackURL: "https://x/1", CreatedAt: time.Now()})
	p.Register(Entry{TrackID: 2, PlaybackURL: "https://x/2", CreatedAt: time.Now()})
	p.RunBatch(context.Background())

	assert.ElementsMatch(t, []int64{1, 2}, gw.markedIDs())
	assert.ElementsMatch(t, []int64{1, 2}, ready)
	assert.True(t, p.IsChecked(1))
	assert.True(t, p.IsChecked(2))
}

func TestCheckedTrackIsNeverReprobed(t *testing.T) {
	gw := &fakeGateway{}
	probes := 0
	p := New(gw, WithProbe(func(ctx context.Context, url string) (bool, error) {
		probes++
		return true, nil
	}))

	entry := Entry{TrackID: 5, PlaybackURL: "https://x/5", CreatedAt: time.Now()}
	p.Register(entry)
	p.RunBatch(context.Background())
	require.Equal(t, 1, probes)

	// A later refresh re-registers the same track.
	p.Register(entry)
	p.RunBatch(context.Background())
	assert.Equal(t, 1, probes)
}

func TestInconclusiveProbeKeepsYoungTrackPending(t *testing.T) {
	gw := &fakeGateway{}
	p := New(gw, WithProbe(func(ctx context.Context, url string) (bool, error) {
		return false, errors.New("timeout")
	}))

	p.Register(Entry{TrackID: 3, PlaybackURL: "https://x/3", CreatedAt: time.Now()})
	p.RunBatch(context.Background())

	assert.Empty(t, gw.markedIDs())
	assert.False(t, p.IsChecked(3))
}

func TestInconclusiveProbeAssumesOldTrackReady(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}
	p := New(gw,
		WithProbe(func(ctx context.Context, url string) (bool, error) {
			return false, errors.New("cors")
		}),
		WithClock(func() time.Time { return now }),
	)

	p.Register(Entry{TrackID: 4, PlaybackURL: "https://x/4", CreatedAt: now.Add(-6 * time.Minute)})
	p.RunBatch(context.Background())

	assert.Equal(t, []int64{4}, gw.markedIDs())
	assert.True(t, p.IsChecked(4))
}

func TestPersistenceFailureKeepsTrackPending(t *testing.T) {
	gw := &fakeGateway{failFor: map[int64]error{6: errors.New("db down")}}
	p := New(gw, WithProbe(func(ctx context.Context, url string) (bool, error) { return true, nil }))

	p.Register(Entry{TrackID: 6, PlaybackURL: "https://x/6", CreatedAt: time.Now()})
	p.RunBatch(context.Background())

	assert.False(t, p.IsChecked(6))

	// Once the gateway recovers, the next batch succeeds.
	gw.mu.Lock()
	delete(gw.failFor, 6)
	gw.mu.Unlock()
	p.RunBatch(context.Background())

	assert.True(t, p.IsChecked(6))
	assert.Equal(t, []int64{6}, gw.markedIDs())
}

func TestForgetDropsWithoutChecking(t *testing.T) {
	gw := &fakeGateway{}
	probes := 0
	p := New(gw, WithProbe(func(ctx context.Context, url string) (bool, error) {
		probes++
		return true, nil
	}))

	p.Register(Entry{TrackID: 7, PlaybackURL: "https://x/7", CreatedAt: time.Now()})
	p.Forget(7)
	p.RunBatch(context.Background())

	assert.Zero(t, probes)
	assert.False(t, p.IsChecked(7))
}
