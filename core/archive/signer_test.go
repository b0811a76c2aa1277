package archive

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackvault/model"
)

func fixedSigner() (*Signer, time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSignerAt(func() time.Time { return now }, func() string { return "abcd1234" })
	return s, now
}

func TestIssueUploadTarget(t *testing.T) {
	s, now := fixedSigner()
	creds := model.ArchiveCredentials{AccessKey: "AKEY", SecretKey: "SKEY"}

	target, err := s.IssueUploadTarget(FileMetadata{
		FileName:    "My Song.mp3",
		ContentType: "audio/mpeg",
		Title:       "My Song!",
		Artist:      "Some Artist",
	}, creds)
	require.NoError(t, err)

	wantIdentifier := fmt.Sprintf("my-song-%d-abcd1234", now.Unix())
	assert.Equal(t, wantIdentifier, target.Identifier)
	assert.Equal(t, "https://s3.us.archive.org/"+wantIdentifier+"/my-song.mp3", target.UploadURL)
	assert.Equal(t, "https://archive.org/download/"+wantIdentifier+"/my-song.mp3", target.PlaybackURL)
	assert.Equal(t, "https://archive.org/details/"+wantIdentifier, target.DetailsURL)

	date := now.UTC().Format(http.TimeFormat)
	assert.Equal(t, date, target.Headers["Date"])
	assert.Equal(t, "audio/mpeg", target.Headers["Content-Type"])
	assert.Equal(t, "1", target.Headers["x-amz-auto-make-bucket"])
	assert.Equal(t, "my-song", target.Headers["x-archive-meta-title"])
	assert.Equal(t, "some-artist", target.Headers["x-archive-meta-creator"])
	assert.Equal(t, "audio", target.Headers["x-archive-meta-mediatype"])
	assert.Equal(t, "opensource_audio", target.Headers["x-archive-meta-collection"])

	// The signature covers method, content type, date, the bucket header
	// and the resource path, in that order.
	stringToSign := strings.Join([]string{
		"PUT",
		"audio/mpeg",
		date,
		"x-amz-auto-make-bucket:1",
		"/" + wantIdentifier + "/my-song.mp3",
	}, "\n")
	mac := hmac.New(sha1.New, []byte("SKEY"))
	mac.Write([]byte(stringToSign))
	wantAuth := "LOW AKEY:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, wantAuth, target.Headers["Authorization"])
}

func TestIssueUploadTargetWithoutCredentials(t *testing.T) {
	s, _ := fixedSigner()

	_, err := s.IssueUploadTarget(FileMetadata{Title: "x", FileName: "x.mp3"}, model.ArchiveCredentials{})
	assert.ErrorIs(t, err, ErrCredentialsMissing)

	_, err = s.IssueUploadTarget(FileMetadata{Title: "x", FileName: "x.mp3"}, model.ArchiveCredentials{AccessKey: "only"})
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestIssueUploadTargetDefaultsContentType(t *testing.T) {
	s, _ := fixedSigner()
	creds := model.ArchiveCredentials{AccessKey: "a", SecretKey: "b"}

	target, err := s.IssueUploadTarget(FileMetadata{FileName: "x.bin", Title: "x"}, creds)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", target.Headers["Content-Type"])
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World!", "hello-world"},
		{"My   Song", "my-song"},
		{"--Weird__Name--", "weird-name"},
		{"ALLCAPS", "allcaps"},
		{"track01", "track01"},
		{"...", ""},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Sanitize(c.in), "input %q", c.in)
	}
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "my-song.mp3", sanitizeFileName("My Song.MP3"))
	assert.Equal(t, "audio.flac", sanitizeFileName("???.flac"))
	assert.Equal(t, "audio", sanitizeFileName(""))
}

func TestBucketNameFallsBackForEmptyTitle(t *testing.T) {
	s, now := fixedSigner()
	creds := model.ArchiveCredentials{AccessKey: "a", SecretKey: "b"}

	target, err := s.IssueUploadTarget(FileMetadata{FileName: "x.mp3", Title: "!!!"}, creds)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("track-%d-abcd1234", now.Unix()), target.Identifier)
}
