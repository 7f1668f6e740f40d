// Package direct streams a file straight from its HTTP(S) origin to disk,
// reporting byte-level progress.
package direct

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/albadl/albadl/internal/app"
	"github.com/albadl/albadl/internal/files"
	"github.com/albadl/albadl/internal/finalize"
	"github.com/albadl/albadl/internal/logging"
)

// TempSuffix marks a transfer in progress next to its final name.
const TempSuffix = ".download"

const copyChunkSize = 64 * 1024

// Pipeline implements the direct HTTP fetch strategy.
type Pipeline struct {
	client    *http.Client
	finalizer *finalize.Finalizer
}

// New creates the pipeline. The client follows redirects transparently,
// switching between plain and encrypted transport as the Location header
// dictates.
func New(fin *finalize.Finalizer) *Pipeline {
	return &Pipeline{client: &http.Client{}, finalizer: fin}
}

// Run fetches the job's URL into a uniquely named file in the target
// directory. The temporary artifact is removed on every error and
// cancellation path; cancellation itself is classified by the engine from
// the handle, not here.
func (p *Pipeline) Run(ctx context.Context, job app.Job, h *app.Handle, emit app.EmitFunc) (app.Result, error) {
	log := logging.FromContextS(ctx)

	parsed, err := url.Parse(job.URL)
	if err != nil {
		return app.Result{}, fmt.Errorf("the given URL is not valid: %w", err)
	}

	fileName := files.UniqueName(job.Directory, files.StemFromURL(parsed)+job.Format.Extension())
	preview := app.Preview{
		Title:  files.Humanize(fileName),
		Source: app.SourceDirect,
		URL:    job.URL,
	}
	finalPath := filepath.Join(job.Directory, fileName)
	tempPath := finalPath + TempSuffix

	emit(app.Snapshot{
		State:    app.StateQueued,
		FileName: fileName,
	}.WithPreview(preview))

	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return app.Result{}, fmt.Errorf("failed to create temporary file: %w", err)
	}

	received, total, err := p.stream(ctx, job.URL, out, func(received, total int64) {
		snap := app.Snapshot{
			State:         app.StateDownloading,
			ReceivedBytes: received,
			TotalBytes:    total,
			FileName:      fileName,
		}
		if total > 0 {
			snap.Progress = app.Percent(int(received * 100 / total))
		}
		emit(snap.WithPreview(preview))
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temporary file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return app.Result{}, err
	}

	log.Infof("Transfer finished after %d/%d bytes, finalizing %q", received, total, fileName)
	return p.finalizer.Promote(ctx, job, tempPath, finalPath, preview, emit)
}

// stream performs the GET and copies the body to out, invoking onChunk after
// every written chunk.
func (p *Pipeline) stream(ctx context.Context, rawURL string, out *os.File, onChunk func(received, total int64)) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, app.StatusError(resp.StatusCode)
	}

	total := resp.ContentLength // -1 for chunked transfers without a length
	var received int64
	buf := make([]byte, copyChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return received, total, fmt.Errorf("failed to write to temporary file: %w", werr)
			}
			received += int64(n)
			onChunk(received, total)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return received, total, nil
			}
			return received, total, fmt.Errorf("transfer interrupted: %w", rerr)
		}
	}
}
