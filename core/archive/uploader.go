package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Progress split: byte transfer accounts for 0-90, the remaining 10 is only
// granted once the archive acknowledges the request, because the store
// accepts the byte stream before it has finished indexing it.
const transferCeiling = 90

// ProgressFunc receives percentages in [0,100]. Values are non-decreasing.
type ProgressFunc func(percent int)

// UploadResult is returned when the archive accepted the file.
type UploadResult struct {
	Identifier  string
	PlaybackURL string
}

// UploadError is a transport-level failure. The raw provider response body
// is kept for diagnostics; track uploads are never auto-retried.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("archive: upload rejected with status %d: %s", e.StatusCode, e.Body)
}

// Uploader streams files directly to a signed archive target.
type Uploader struct {
	client *http.Client
}

// NewUploader returns an Uploader on the given client. A nil client gets a
// default with a generous timeout for large audio files.
func NewUploader(client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Uploader{client: client}
}

// Upload PUTs size bytes from r to the signed target, reporting progress as
// it goes. Progress stops firing once ctx is cancelled; cancellation does
// not guarantee in-flight bytes are aborted.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, size int64, target *UploadTarget, progress ProgressFunc) (*UploadResult, error) {
	body := &progressReader{
		r:        r,
		total:    size,
		ctx:      ctx,
		progress: progress,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("archive: building upload request: %w", err)
	}
	req.ContentLength = size
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: upload transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &UploadError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// The store confirmed receipt; only now may progress reach 100.
	body.report(100)

	return &UploadResult{
		Identifier:  target.Identifier,
		PlaybackURL: target.PlaybackURL,
	}, nil
}

// progressReader reports transfer progress capped at transferCeiling until
// the response confirms receipt. Reported values never decrease, and nothing
// fires after the context is cancelled.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	last     int
	ctx      context.Context
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.total > 0 {
			pct := int(p.sent * int64(transferCeiling) / p.total)
			if pct > transferCeiling {
				pct = transferCeiling
			}
			p.report(pct)
		}
	}
	return n, err
}

func (p *progressReader) report(pct int) {
	if p.progress == nil || p.ctx.Err() != nil {
		return
	}
	if pct <= p.last {
		return
	}
	p.last = pct
	p.progress(pct)
}
