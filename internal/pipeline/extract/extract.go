// Package extract drives the external extraction tool for site-hosted video,
// translating its line output into progress snapshots.
package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/albadl/albadl/internal/app"
	"github.com/albadl/albadl/internal/files"
	"github.com/albadl/albadl/internal/finalize"
	"github.com/albadl/albadl/internal/logging"
)

const defaultToolPath = "yt-dlp"

// DefaultMetadataWait bounds how long naming a job may block on the metadata
// fetch. A slower fetch keeps running and upgrades the preview in flight.
const DefaultMetadataWait = 1500 * time.Millisecond

// Pipeline implements the extraction strategy.
type Pipeline struct {
	toolPath     string
	ffmpegPath   string
	fetcher      MetadataFetcher
	store        app.Store
	finalizer    *finalize.Finalizer
	metadataWait time.Duration
}

// New creates the pipeline. Empty toolPath resolves yt-dlp from PATH; a nil
// fetcher defaults to the YouTube-backed one.
func New(toolPath, ffmpegPath string, fetcher MetadataFetcher, store app.Store, fin *finalize.Finalizer) *Pipeline {
	if toolPath == "" {
		toolPath = defaultToolPath
	}
	if fetcher == nil {
		fetcher = NewMetadataFetcher()
	}
	return &Pipeline{
		toolPath:     toolPath,
		ffmpegPath:   ffmpegPath,
		fetcher:      fetcher,
		store:        store,
		finalizer:    fin,
		metadataWait: DefaultMetadataWait,
	}
}

// Run names the output, launches the tool and follows its output until the
// final file exists. Cancellation kills the subprocess through the handle; the
// engine reclassifies the resulting error.
func (p *Pipeline) Run(ctx context.Context, job app.Job, h *app.Handle, emit app.EmitFunc) (app.Result, error) {
	log := logging.FromContextS(ctx)

	metaCh := make(chan *Metadata, 1)
	go func() {
		md, err := p.fetcher.Fetch(ctx, job.URL)
		if err != nil {
			log.Warnf("Metadata fetch failed, falling back to video id: %v", err)
		}
		metaCh <- md
	}()

	var quick *Metadata
	wait := time.NewTimer(p.metadataWait)
	select {
	case quick = <-metaCh:
		wait.Stop()
	case <-wait.C:
	case <-ctx.Done():
		wait.Stop()
		return app.Result{}, ctx.Err()
	}

	stem := FallbackStem(job.URL)
	preview := app.Preview{Title: stem, Source: app.SourceYouTube, URL: job.URL}
	if quick != nil {
		stem = files.SanitizeStem(quick.Title, stem)
		preview.Title = quick.Title
		preview.Thumbnail = quick.BestThumbnail()
	}

	base := files.UniqueBase(job.Directory, stem, string(job.Format))
	fileName := base + job.Format.Extension()
	finalPath := filepath.Join(job.Directory, fileName)
	template := filepath.Join(job.Directory, base+".%(ext)s")

	var pvMu sync.Mutex
	loadPreview := func() app.Preview {
		pvMu.Lock()
		defer pvMu.Unlock()
		return preview
	}

	emit(app.Snapshot{
		State:    app.StateQueued,
		FileName: fileName,
		Format:   job.Format,
	}.WithPreview(preview))

	// A slow metadata fetch upgrades the preview once, mid-download. The
	// file name is already fixed at that point.
	if quick == nil {
		go func() {
			select {
			case md := <-metaCh:
				if md == nil {
					return
				}
				pvMu.Lock()
				preview.Title = md.Title
				preview.Thumbnail = md.BestThumbnail()
				upgraded := preview
				pvMu.Unlock()
				emit(app.Snapshot{
					State:    app.StateMetadata,
					FileName: fileName,
				}.WithPreview(upgraded))
			case <-ctx.Done():
			}
		}()
	}

	emit(app.Snapshot{
		State:    app.StateProcessing,
		Stage:    "initializing",
		Message:  "Preparing download...",
		FileName: fileName,
	}.WithPreview(loadPreview()))

	var subtitleLangs []string
	if p.store != nil {
		subtitleLangs = p.store.SubtitleLanguages()
	}
	args := BuildArgs(job, template, p.ffmpegPath, subtitleLangs)
	log.Infof("Starting %s for %q", p.toolPath, job.URL)

	cmd := exec.CommandContext(ctx, p.toolPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return app.Result{}, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return app.Result{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return app.Result{}, fmt.Errorf("failed to start %s: %w", p.toolPath, err)
	}
	h.AttachProcess(cmd.Process)

	var lineMu sync.Mutex
	lastLine := ""
	handleLine := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if pct, ok := ParseProgress(line); ok {
			emit(app.Snapshot{
				State:    app.StateDownloading,
				Progress: app.Percent(pct),
				FileName: fileName,
			}.WithPreview(loadPreview()))
			return
		}
		if IsExtractAudioLine(line) {
			if job.Format == app.FormatMP3 {
				emit(app.Snapshot{
					State:    app.StateProcessing,
					Stage:    "converting",
					Message:  "Converting to MP3...",
					FileName: fileName,
				}.WithPreview(loadPreview()))
			}
			return
		}
		// Anything else is only a candidate failure message.
		lineMu.Lock()
		lastLine = line
		lineMu.Unlock()
	}

	var wg sync.WaitGroup
	for _, pipe := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			sc := bufio.NewScanner(r)
			sc.Buffer(make([]byte, 64*1024), 1024*1024)
			for sc.Scan() {
				handleLine(sc.Text())
			}
		}(pipe)
	}
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		lineMu.Lock()
		reason := lastLine
		lineMu.Unlock()
		if reason != "" {
			return app.Result{}, fmt.Errorf("extraction failed: %s", reason)
		}
		return app.Result{}, fmt.Errorf("extraction failed: %w", err)
	}

	st, err := os.Stat(finalPath)
	if err != nil {
		return app.Result{}, fmt.Errorf("extraction finished without producing %q", fileName)
	}

	res := app.Result{
		FilePath: finalPath,
		FileName: fileName,
		Size:     st.Size(),
		Preview:  loadPreview(),
	}
	if p.finalizer != nil {
		p.finalizer.RecordHistory(ctx, job, res)
	}
	return res, nil
}
