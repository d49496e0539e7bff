// Package download is the download trigger: it takes a resolved URL plus a
// suggested filename and saves the stream to disk, reporting progress to the
// caller. Files are staged in a temporary file and renamed into place so an
// aborted download never leaves a half-written target.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ytdown/ytdown"
)

// Progress is a snapshot of one download's byte counts. Expected is zero when
// the server did not send a Content-Length.
type Progress struct {
	ID         ytdown.DownloadID
	Filename   string
	Downloaded int64
	Expected   int64
	Done       bool
}

type Trigger struct {
	targetDir string
	http      *http.Client
	progress  func(Progress)
	log       *zap.SugaredLogger
}

var _ ytdown.DownloadTrigger = (*Trigger)(nil)

type Option func(*Trigger)

// WithTargetDir sets where completed downloads land.
func WithTargetDir(dir string) Option {
	return func(t *Trigger) {
		t.targetDir = dir
	}
}

// WithProgress registers a callback invoked on every progress update.
func WithProgress(f func(Progress)) Option {
	return func(t *Trigger) {
		t.progress = f
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(t *Trigger) {
		t.http = hc
	}
}

func NewTrigger(opts ...Option) *Trigger {
	t := &Trigger{
		targetDir: ".",
		http:      &http.Client{},
		log:       zap.S().Named("download"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Download fetches req.URL into the target directory under req.Filename,
// returning an opaque handle. With SaveAs set, an existing file is never
// overwritten: the filename gets a numeric suffix instead.
func (t *Trigger) Download(ctx context.Context, req ytdown.DownloadRequest) (ytdown.DownloadID, error) {
	id := ytdown.DownloadID(uuid.NewString())

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	if err := os.MkdirAll(t.targetDir, 0775); err != nil {
		return "", err
	}
	targetPath := filepath.Join(t.targetDir, req.Filename)
	if req.SaveAs {
		targetPath = uniquePath(targetPath)
	}

	if err := t.save(ctx, id, req.URL, targetPath); err != nil {
		return "", err
	}
	t.log.Infow("download complete", "download_id", id, "path", targetPath)
	return id, nil
}

func (t *Trigger) save(ctx context.Context, id ytdown.DownloadID, rawURL, targetPath string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	expected := resp.ContentLength
	if expected < 0 {
		expected = 0
	}

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), ".ytdown-*")
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	counter := &progressWriter{
		trigger:  t,
		snapshot: Progress{ID: id, Filename: filepath.Base(targetPath), Expected: expected},
	}
	_, err = io.Copy(io.MultiWriter(tmp, counter), &readerContext{ctx: ctx, r: resp.Body})
	if err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), targetPath); err != nil {
		return err
	}

	counter.snapshot.Done = true
	t.emit(counter.snapshot)
	return nil
}

func (t *Trigger) emit(p Progress) {
	if t.progress != nil {
		t.progress(p)
	}
}

// progressWriter counts bytes and emits a Progress snapshot per write. Keep
// it last in the MultiWriter so failed file writes are not counted.
type progressWriter struct {
	trigger  *Trigger
	snapshot Progress
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.snapshot.Downloaded += int64(len(p))
	w.trigger.emit(w.snapshot)
	return len(p), nil
}

// readerContext aborts an in-progress copy as soon as the context is
// cancelled, without waiting for the next network read to fail.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// uniquePath appends " (n)" before the extension until the path is unused.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
