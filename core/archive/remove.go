package archive

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"trackvault/model"
)

// SignDelete computes the signed DELETE for a previously uploaded file.
// Deletion is best-effort at the call sites; a failure never blocks the
// local record's removal.
func (s *Signer) SignDelete(playbackURL string, creds model.ArchiveCredentials) (deleteURL string, headers map[string]string, err error) {
	if !creds.HasKeys() {
		return "", nil, ErrCredentialsMissing
	}

	parsed, err := url.Parse(playbackURL)
	if err != nil {
		return "", nil, fmt.Errorf("archive: bad playback URL: %w", err)
	}
	// Playback URLs look like /download/<identifier>/<file>; the S3-style
	// resource drops the /download prefix.
	resource := strings.TrimPrefix(parsed.Path, "/download")

	date := s.now().UTC().Format(http.TimeFormat)
	stringToSign := strings.Join([]string{http.MethodDelete, "", date, resource}, "\n")

	mac := hmac.New(sha1.New, []byte(creds.SecretKey))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("https://%s%s", uploadHost, resource), map[string]string{
		"Authorization": fmt.Sprintf("LOW %s:%s", creds.AccessKey, signature),
		"Date":          date,
	}, nil
}

// Delete issues the signed DELETE. Callers treat an error as advisory.
func (u *Uploader) Delete(ctx context.Context, deleteURL string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("archive: building delete request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("archive: delete transport: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("archive: remote delete returned status %d", resp.StatusCode)
	}
	return nil
}
