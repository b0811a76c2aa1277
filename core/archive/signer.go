package archive

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackvault/model"
)

// ErrCredentialsMissing is returned when the caller has no archive keys on
// file. Fatal to the upload flow; there is nothing to retry.
var ErrCredentialsMissing = errors.New("archive: no signing credentials on file")

const (
	uploadHost   = "s3.us.archive.org"
	downloadHost = "archive.org"

	// The archive requires this header to create the bucket on first PUT.
	autoMakeBucketHeader = "x-amz-auto-make-bucket"
)

// FileMetadata describes the file about to be uploaded.
type FileMetadata struct {
	FileName    string
	ContentType string
	Title       string
	Artist      string
}

// UploadTarget is a one-time signed upload destination. The playback URL is
// where the file will be retrievable once the archive finishes indexing it.
type UploadTarget struct {
	Identifier  string            `json:"identifier"`
	UploadURL   string            `json:"uploadUrl"`
	Headers     map[string]string `json:"headers"`
	PlaybackURL string            `json:"playbackUrl"`
	DetailsURL  string            `json:"detailsUrl"`
}

// Signer computes signed upload targets. Pure computation over its inputs;
// it never contacts the network.
type Signer struct {
	now    func() time.Time
	suffix func() string
}

// NewSigner returns a Signer using the real clock and random suffixes.
func NewSigner() *Signer {
	return &Signer{
		now:    time.Now,
		suffix: func() string { return uuid.NewString()[:8] },
	}
}

// NewSignerAt returns a Signer with a fixed clock and suffix source.
func NewSignerAt(now func() time.Time, suffix func() string) *Signer {
	return &Signer{now: now, suffix: suffix}
}

// IssueUploadTarget computes the signed request for a direct client-to-archive
// upload. Free-text metadata is sanitized to the archive's accepted character
// set before it goes into headers; skipping that causes a remote rejection,
// not a local error.
func (s *Signer) IssueUploadTarget(meta FileMetadata, creds model.ArchiveCredentials) (*UploadTarget, error) {
	if !creds.HasKeys() {
		return nil, ErrCredentialsMissing
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileName := sanitizeFileName(meta.FileName)
	identifier := s.bucketName(meta.Title)
	resource := "/" + identifier + "/" + fileName
	date := s.now().UTC().Format(http.TimeFormat)

	// Canonical string: method, content type, date, the bucket-creation
	// header, then the resource path. Signed with HMAC-SHA1 per the
	// archive's S3-like contract.
	stringToSign := strings.Join([]string{
		http.MethodPut,
		contentType,
		date,
		autoMakeBucketHeader + ":1",
		resource,
	}, "\n")

	mac := hmac.New(sha1.New, []byte(creds.SecretKey))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		"Authorization":             fmt.Sprintf("LOW %s:%s", creds.AccessKey, signature),
		"Content-Type":              contentType,
		"Date":                      date,
		autoMakeBucketHeader:        "1",
		"x-archive-meta-title":      Sanitize(meta.Title),
		"x-archive-meta-mediatype":  "audio",
		"x-archive-meta-collection": "opensource_audio",
	}
	if meta.Artist != "" {
		headers["x-archive-meta-creator"] = Sanitize(meta.Artist)
	}

	return &UploadTarget{
		Identifier:  identifier,
		UploadURL:   fmt.Sprintf("https://%s%s", uploadHost, resource),
		Headers:     headers,
		PlaybackURL: fmt.Sprintf("https://%s/download/%s/%s", downloadHost, identifier, fileName),
		DetailsURL:  fmt.Sprintf("https://%s/details/%s", downloadHost, identifier),
	}, nil
}

// bucketName combines the sanitized title with a timestamp and random suffix
// so two uploads can never collide on the archive.
func (s *Signer) bucketName(title string) string {
	base := Sanitize(title)
	if base == "" {
		base = "track"
	}
	return fmt.Sprintf("%s-%d-%s", base, s.now().Unix(), s.suffix())
}

// Sanitize reduces free text to the archive's accepted character set:
// lowercase ASCII alphanumerics and hyphens.
func Sanitize(text string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// sanitizeFileName keeps the extension but sanitizes the base name.
func sanitizeFileName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	base := Sanitize(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	if base == "" {
		base = "audio"
	}
	return base + ext
}
