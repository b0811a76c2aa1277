package uploadflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackvault/core/archive"
	"trackvault/core/overlay"
	"trackvault/core/poller"
	"trackvault/model"
)

type fakeStore struct {
	created []*model.Track
	err     error
	nextID  int64
}

func (s *fakeStore) CreateTrack(ctx context.Context, t *model.Track) (*model.Track, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.nextID++
	out := *t
	out.ID = s.nextID
	out.TrackNumber = len(s.created) + 1
	out.CreatedAt = time.Now()
	s.created = append(s.created, &out)
	return &out, nil
}

type nopGateway struct{}

func (nopGateway) SetProcessing(ctx context.Context, trackID int64, processing bool) error {
	return nil
}

func testFlow(t *testing.T, baseURL string, store *fakeStore) (*Flow, *overlay.Registry, *poller.Poller) {
	t.Helper()
	registry := overlay.NewRegistry()
	t.Cleanup(registry.Close)
	p := poller.New(nopGateway{})
	signer := archive.NewSignerAt(
		func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
		func() string { return "abcd1234" },
	)
	// 把签名出的目标地址重定向到本地测试服务器
	uploader := archive.NewUploader(rewriteClient(baseURL))
	creds := func() model.ArchiveCredentials {
		return model.ArchiveCredentials{AccessKey: "AKEY", SecretKey: "SKEY"}
	}
	return New(signer, uploader, registry, store, p, creds), registry, p
}

// rewriteClient sends every request to the test server regardless of host.
func rewriteClient(baseURL string) *http.Client {
	target, _ := url.Parse(baseURL)
	return &http.Client{Transport: &rewriteTransport{host: target.Host}}
}

type rewriteTransport struct {
	host string
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = rt.host
	return http.DefaultTransport.RoundTrip(req)
}

func uploadRequest() Request {
	body := strings.NewReader("file bytes")
	return Request{
		AlbumID:     7,
		UserID:      3,
		Title:       "My Song",
		Artist:      "Someone",
		FileName:    "my song.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(body.Len()),
		Body:        body,
	}
}

func TestUploadCreatesProcessingTrack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{}
	flow, registry, p := testFlow(t, server.URL, store)

	created, err := flow.Upload(context.Background(), uploadRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "My Song", created.Title)
	assert.Equal(t, "Someone", created.Artist)
	assert.True(t, created.Processing)
	assert.Equal(t, model.SourceArchive, created.Source)
	assert.Contains(t, created.PlaybackURL, "my-song")

	// 乐观条目在记录落库后立即移除
	registry.Flush()
	assert.Empty(t, registry.ForAlbum(7))

	// The track now waits in the readiness queue.
	assert.False(t, p.IsChecked(created.ID))
}

func TestUploadDefaultsArtist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{}
	flow, _, _ := testFlow(t, server.URL, store)

	req := uploadRequest()
	req.Artist = ""
	created, err := flow.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultArtist, created.Artist)
}

func TestUploadTransportFailureClearsOverlay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature mismatch", http.StatusForbidden)
	}))
	defer server.Close()

	store := &fakeStore{}
	flow, registry, _ := testFlow(t, server.URL, store)

	_, err := flow.Upload(context.Background(), uploadRequest())
	var uploadErr *archive.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusForbidden, uploadErr.StatusCode)
	assert.Contains(t, uploadErr.Body, "signature mismatch")
	assert.Empty(t, store.created)

	registry.Flush()
	assert.Empty(t, registry.ForAlbum(7))
}

func TestUploadPersistenceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{err: errors.New("db down")}
	flow, registry, _ := testFlow(t, server.URL, store)

	_, err := flow.Upload(context.Background(), uploadRequest())
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Contains(t, persistErr.PlaybackURL, "my-song")

	registry.Flush()
	assert.Empty(t, registry.ForAlbum(7))
}

func TestUploadWithoutCredentials(t *testing.T) {
	store := &fakeStore{}
	registry := overlay.NewRegistry()
	t.Cleanup(registry.Close)
	flow := New(
		archive.NewSigner(),
		archive.NewUploader(nil),
		registry,
		store,
		poller.New(nopGateway{}),
		func() model.ArchiveCredentials { return model.ArchiveCredentials{} },
	)

	_, err := flow.Upload(context.Background(), uploadRequest())
	assert.ErrorIs(t, err, archive.ErrCredentialsMissing)
	assert.Empty(t, store.created)
}
