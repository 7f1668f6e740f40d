// Package finalize promotes a completed temporary artifact to its final
// path, transcoding it first when the requested format asks for audio only,
// and records the download in history.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/albadl/albadl/internal/app"
	"github.com/albadl/albadl/internal/logging"
)

const defaultFFmpegPath = "ffmpeg"

// Finalizer turns temporary artifacts into final files. One instance is
// shared by both pipelines.
type Finalizer struct {
	ffmpegPath string
	store      app.Store
}

// New creates a Finalizer. ffmpegPath may be empty to use the ffmpeg found
// on PATH.
func New(ffmpegPath string, store app.Store) *Finalizer {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpegPath
	}
	return &Finalizer{ffmpegPath: ffmpegPath, store: store}
}

// BuildFFmpegArgs is the fixed transcode command line: strip the video
// stream and encode the audio at a high quality setting.
func BuildFFmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		outputPath,
	}
}

// Promote finishes a direct transfer: transcode or rename the temporary
// artifact onto finalPath, stat the result and record it in history. On any
// failure both the temporary and a partially written final file are removed
// before the error is returned.
func (f *Finalizer) Promote(ctx context.Context, job app.Job, tempPath, finalPath string, preview app.Preview, emit app.EmitFunc) (app.Result, error) {
	log := logging.FromContextS(ctx)

	cleanup := func() {
		_ = os.Remove(tempPath)
		_ = os.Remove(finalPath)
	}

	if job.Format.NeedsTranscode() {
		emit(app.Snapshot{
			State:    app.StateProcessing,
			Stage:    "converting",
			Message:  "Converting to MP3...",
			FileName: filepath.Base(finalPath),
		}.WithPreview(preview))

		if err := f.transcode(ctx, tempPath, finalPath); err != nil {
			cleanup()
			return app.Result{}, err
		}
		if err := os.Remove(tempPath); err != nil {
			log.Warnf("Failed to remove temporary artifact %q: %v", tempPath, err)
		}
	} else {
		if err := os.Rename(tempPath, finalPath); err != nil {
			cleanup()
			return app.Result{}, fmt.Errorf("failed to move artifact into place: %w", err)
		}
	}

	st, err := os.Stat(finalPath)
	if err != nil {
		cleanup()
		return app.Result{}, fmt.Errorf("failed to stat final file: %w", err)
	}

	res := app.Result{
		FilePath: finalPath,
		FileName: filepath.Base(finalPath),
		Size:     st.Size(),
		Preview:  preview,
	}
	f.RecordHistory(ctx, job, res)
	return res, nil
}

// RecordHistory appends the completed download to the settings store.
// Failures are logged, never surfaced: history must not break a finished
// download.
func (f *Finalizer) RecordHistory(ctx context.Context, job app.Job, res app.Result) {
	if f.store == nil {
		return
	}
	entry := app.HistoryEntry{
		ID:          job.ID,
		FilePath:    res.FilePath,
		FileName:    res.FileName,
		Format:      job.Format,
		Title:       res.Preview.Title,
		Thumbnail:   res.Preview.Thumbnail,
		Source:      res.Preview.Source,
		URL:         job.URL,
		CompletedAt: time.Now().UnixMilli(),
	}
	if entry.Title == "" {
		entry.Title = res.FileName
	}
	if err := f.store.AppendHistory(entry); err != nil {
		logging.FromContextS(ctx).Errorf("Failed to record download history: %v", err)
	}
}

func (f *Finalizer) transcode(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, BuildFFmpegArgs(inputPath, outputPath)...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("mp3 conversion failed (exit code %d)", exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run %s: %w", f.ffmpegPath, err)
	}
	return nil
}
