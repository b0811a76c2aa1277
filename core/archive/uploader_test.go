package archive

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget(url string) *UploadTarget {
	return &UploadTarget{
		Identifier:  "bucket",
		UploadURL:   url + "/bucket/file.mp3",
		Headers:     map[string]string{"Authorization": "LOW a:b"},
		PlaybackURL: "https://archive.org/download/bucket/file.mp3",
	}
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "LOW a:b", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := bytes.Repeat([]byte("x"), 64<<10)
	var reported []int
	u := NewUploader(srv.Client())

	result, err := u.Upload(context.Background(), bytes.NewReader(payload), int64(len(payload)), testTarget(srv.URL), func(pct int) {
		reported = append(reported, pct)
	})
	require.NoError(t, err)
	assert.Equal(t, "bucket", result.Identifier)
	assert.Equal(t, "https://archive.org/download/bucket/file.mp3", result.PlaybackURL)

	require.NotEmpty(t, reported)
	// Transfer progress never exceeds 90; the final 10 arrives only with
	// the server's acknowledgement.
	last := reported[len(reported)-1]
	assert.Equal(t, 100, last)
	prev := -1
	for _, pct := range reported[:len(reported)-1] {
		assert.LessOrEqual(t, pct, 90)
		assert.Greater(t, pct, prev)
		prev = pct
	}
}

func TestUploadKeepsProviderRejectionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("signature mismatch"))
	}))
	defer srv.Close()

	u := NewUploader(srv.Client())
	_, err := u.Upload(context.Background(), bytes.NewReader([]byte("abc")), 3, testTarget(srv.URL), nil)
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusForbidden, uploadErr.StatusCode)
	assert.Contains(t, uploadErr.Body, "signature mismatch")
}

func TestProgressSilentAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fired := false
	p := &progressReader{
		r:        bytes.NewReader([]byte("abc")),
		total:    3,
		ctx:      ctx,
		progress: func(int) { fired = true },
	}
	p.report(50)
	assert.False(t, fired)
}

func TestProgressNeverDecreases(t *testing.T) {
	var reported []int
	p := &progressReader{
		ctx:      context.Background(),
		progress: func(pct int) { reported = append(reported, pct) },
	}
	p.report(40)
	p.report(30)
	p.report(40)
	p.report(60)
	assert.Equal(t, []int{40, 60}, reported)
}
