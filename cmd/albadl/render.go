package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/albadl/albadl/internal/app"
)

// renderer turns the snapshot stream into terminal output: one progress bar
// per job, or raw JSON lines for scripting. It is driven from a single
// goroutine.
type renderer struct {
	jsonMode  bool
	out       io.Writer
	pc        *mpb.Progress
	bars      map[string]*mpb.Bar
	progress  map[string]int
	summaries []string
}

func newRenderer(jsonMode bool, out io.Writer) *renderer {
	r := &renderer{
		jsonMode: jsonMode,
		out:      out,
		bars:     make(map[string]*mpb.Bar),
		progress: make(map[string]int),
	}
	if !jsonMode {
		r.pc = mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	}
	return r
}

func (r *renderer) Render(s app.Snapshot) {
	if r.jsonMode {
		if line, err := json.Marshal(s); err == nil {
			fmt.Fprintln(r.out, string(line))
		}
		return
	}

	switch {
	case s.State == app.StateDownloading:
		bar := r.barFor(s)
		if s.Progress != nil {
			if delta := *s.Progress - r.progress[s.ID]; delta > 0 {
				bar.IncrBy(delta)
				r.progress[s.ID] = *s.Progress
			}
		}
	case s.State == app.StateCompleted:
		if bar, ok := r.bars[s.ID]; ok {
			bar.SetTotal(100, true)
		}
		r.summaries = append(r.summaries, fmt.Sprintf("saved %s (%d bytes)", s.FileName, s.TotalBytes))
	case s.State == app.StateCancelled:
		r.dropBar(s.ID)
		r.summaries = append(r.summaries, fmt.Sprintf("cancelled %s", labelFor(s)))
	case s.State == app.StateError:
		r.dropBar(s.ID)
		r.summaries = append(r.summaries, fmt.Sprintf("failed %s: %s", labelFor(s), s.Message))
	}
}

// Close waits for the bars to settle and prints the per-job summaries.
func (r *renderer) Close() {
	if r.pc != nil {
		r.pc.Wait()
	}
	for _, line := range r.summaries {
		fmt.Fprintln(r.out, line)
	}
}

func (r *renderer) barFor(s app.Snapshot) *mpb.Bar {
	if bar, ok := r.bars[s.ID]; ok {
		return bar
	}
	bar := r.pc.AddBar(100,
		mpb.BarWidth(24),
		mpb.PrependDecorators(
			decor.Name(labelFor(s)),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
		),
	)
	r.bars[s.ID] = bar
	return bar
}

func (r *renderer) dropBar(id string) {
	if bar, ok := r.bars[id]; ok {
		bar.Abort(true)
		delete(r.bars, id)
	}
}

func labelFor(s app.Snapshot) string {
	switch {
	case s.Title != "":
		return s.Title
	case s.FileName != "":
		return s.FileName
	default:
		return s.URL
	}
}
