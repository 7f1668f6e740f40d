package extract

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/albadl/albadl/internal/app"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"[download]  10.0% of ~4.00MiB at 1.00MiB/s", 10, true},
		{"[download]  45.3% of 4.00MiB", 45, true},
		{"[download]  45.7% of 4.00MiB", 46, true},
		{"[download]  99.6% of 4.00MiB", 100, true},
		{"[download] 100% of 4.00MiB in 00:03", 100, true},
		{"[download] Destination: /tmp/clip.mp4", 0, false},
		{"[youtube] dQw4w9WgXcQ: Downloading webpage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProgress(%q) = (%d, %v), want (%d, %v)", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsExtractAudioLine(t *testing.T) {
	if !IsExtractAudioLine("[ExtractAudio] Destination: clip.mp3") {
		t.Error("ExtractAudio line not recognized")
	}
	if !IsExtractAudioLine("[extractaudio] converting") {
		t.Error("lowercase variant not recognized")
	}
	if IsExtractAudioLine("[download] 50.0%") {
		t.Error("download line misclassified as extraction")
	}
}

func TestBuildArgs(t *testing.T) {
	tmpl := "/data/media/clip.%(ext)s"

	t.Run("mp4 auto", func(t *testing.T) {
		job := app.Job{URL: "https://youtu.be/x", Format: app.FormatMP4, Quality: app.QualityAuto}
		got := BuildArgs(job, tmpl, "", nil)
		want := []string{
			"--output", tmpl,
			"--no-part",
			"--newline",
			"--no-playlist",
			"--add-header", "referer: https://www.youtube.com",
			"--add-header", "user-agent: Mozilla/5.0",
			"--format", "bv*+ba/b",
			"--merge-output-format", "mp4",
			"https://youtu.be/x",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("BuildArgs() = %v, want %v", got, want)
		}
	})

	t.Run("mp4 capped playlist", func(t *testing.T) {
		job := app.Job{URL: "u", Format: app.FormatMP4, Quality: app.Quality720p, Playlist: true}
		got := BuildArgs(job, tmpl, "/opt/ffmpeg", nil)
		assertContainsSeq(t, got, "--yes-playlist")
		assertContainsSeq(t, got, "--ffmpeg-location", "/opt/ffmpeg")
		assertContainsSeq(t, got, "--format", "bv*[height<=720]+ba/b[height<=720]/b")
	})

	t.Run("mp3 with subtitles", func(t *testing.T) {
		job := app.Job{URL: "u", Format: app.FormatMP3, Quality: app.QualityAuto}
		got := BuildArgs(job, tmpl, "", []string{"sq", "en"})
		assertContainsSeq(t, got, "--extract-audio")
		assertContainsSeq(t, got, "--audio-format", "mp3")
		assertContainsSeq(t, got, "--audio-quality", "0")
		assertContainsSeq(t, got, "--format", "bestaudio/best")
		assertContainsSeq(t, got, "--write-subs")
		assertContainsSeq(t, got, "--sub-langs", "sq,en")
		assertContainsSeq(t, got, "--sub-format", "best")
	})
}

func assertContainsSeq(t *testing.T, args []string, seq ...string) {
	t.Helper()
	for i := 0; i+len(seq) <= len(args); i++ {
		if reflect.DeepEqual(args[i:i+len(seq)], seq) {
			return
		}
	}
	t.Errorf("args %v missing sequence %v", args, seq)
}

func TestBestThumbnail(t *testing.T) {
	md := &Metadata{Thumbnails: []Thumbnail{
		{URL: "small.jpg", Width: 120},
		{URL: "large.jpg", Width: 1280},
		{URL: "medium.jpg", Width: 640},
	}}
	if got := md.BestThumbnail(); got != "large.jpg" {
		t.Errorf("BestThumbnail() = %q, want large.jpg", got)
	}
	empty := &Metadata{}
	if got := empty.BestThumbnail(); got != "" {
		t.Errorf("BestThumbnail() on empty = %q, want empty", got)
	}
}

func TestFallbackStem(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://example.com/nothing/here", "video-download"},
	}
	for _, tt := range tests {
		if got := FallbackStem(tt.link); got != tt.want {
			t.Errorf("FallbackStem(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

type fakeFetcher struct {
	md    *Metadata
	err   error
	delay time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) (*Metadata, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.md, f.err
}

type recorder struct {
	mu    sync.Mutex
	snaps []app.Snapshot
}

func (r *recorder) emit(s app.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []app.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.Snapshot(nil), r.snaps...)
}

// writeTool installs a shell script standing in for the extraction tool.
func writeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts need a shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool: %v", err)
	}
	return path
}

const resolveOutput = `out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
out=$(printf '%s' "$out" | sed 's/%(ext)s/mp4/')
`

func TestRunEmitsProgressAndProducesFile(t *testing.T) {
	tool := writeTool(t, resolveOutput+`
echo "[youtube] extracting"
echo "[download]  10.0% of ~4.00MiB at 1.00MiB/s"
echo "[download] 100% of 4.00MiB in 00:03"
printf 'video-bytes' > "$out"
`)
	dir := t.TempDir()
	fetcher := &fakeFetcher{md: &Metadata{
		Title:      "My Video: Part 1",
		Thumbnails: []Thumbnail{{URL: "thumb.jpg", Width: 640}},
	}}
	p := New(tool, "", fetcher, nil, nil)

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := app.Job{ID: "job-1", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4, Quality: app.QualityAuto}
	res, err := p.Run(ctx, job, app.NewHandle(cancel), rec.emit)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.FileName != "My Video_ Part 1.mp4" {
		t.Errorf("FileName = %q, want sanitized title", res.FileName)
	}
	if res.Preview.Title != "My Video: Part 1" || res.Preview.Thumbnail != "thumb.jpg" {
		t.Errorf("Preview = %+v, want fetched metadata", res.Preview)
	}
	if _, err := os.Stat(res.FilePath); err != nil {
		t.Fatalf("final file missing: %v", err)
	}

	snaps := rec.all()
	if len(snaps) < 3 {
		t.Fatalf("got %d snapshots, want queued + initializing + progress", len(snaps))
	}
	if snaps[0].State != app.StateQueued || snaps[0].FileName != res.FileName {
		t.Errorf("first snapshot = %+v, want queued with file name", snaps[0])
	}
	if snaps[1].State != app.StateProcessing || snaps[1].Stage != "initializing" {
		t.Errorf("second snapshot = %+v, want initializing", snaps[1])
	}
	var progress []int
	for _, s := range snaps[2:] {
		if s.State == app.StateDownloading && s.Progress != nil {
			progress = append(progress, *s.Progress)
		}
	}
	if !reflect.DeepEqual(progress, []int{10, 100}) {
		t.Errorf("progress sequence = %v, want [10 100]", progress)
	}
}

func TestRunUpgradesPreviewWhenMetadataIsLate(t *testing.T) {
	tool := writeTool(t, resolveOutput+`
echo "[download]  50.0% of 4.00MiB"
sleep 1
echo "[download] 100% of 4.00MiB"
printf 'video-bytes' > "$out"
`)
	dir := t.TempDir()
	fetcher := &fakeFetcher{
		md:    &Metadata{Title: "Late Title", Thumbnails: []Thumbnail{{URL: "late.jpg", Width: 320}}},
		delay: 300 * time.Millisecond,
	}
	p := New(tool, "", fetcher, nil, nil)
	p.metadataWait = 20 * time.Millisecond

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := app.Job{ID: "job-1", URL: "https://youtu.be/dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4, Quality: app.QualityAuto}
	res, err := p.Run(ctx, job, app.NewHandle(cancel), rec.emit)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	// Naming happened before the fetch resolved, so the id is the stem.
	if res.FileName != "dQw4w9WgXcQ.mp4" {
		t.Errorf("FileName = %q, want id-based fallback", res.FileName)
	}
	if res.Preview.Title != "Late Title" {
		t.Errorf("Preview.Title = %q, want upgraded title", res.Preview.Title)
	}

	sawUpgrade := false
	for _, s := range rec.all() {
		if s.State == app.StateMetadata {
			if s.Title != "Late Title" || s.Thumbnail != "late.jpg" {
				t.Errorf("metadata snapshot = %+v", s)
			}
			sawUpgrade = true
		}
	}
	if !sawUpgrade {
		t.Error("no metadata snapshot emitted for late fetch")
	}
}

func TestRunSurfacesToolFailure(t *testing.T) {
	tool := writeTool(t, `
echo "ERROR: unable to download video data" >&2
exit 1
`)
	dir := t.TempDir()
	p := New(tool, "", &fakeFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := app.Job{ID: "job-1", URL: "https://youtu.be/dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4}
	_, err := p.Run(ctx, job, app.NewHandle(cancel), func(app.Snapshot) {})
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "unable to download video data") {
		t.Errorf("error %q does not carry the tool's last line", err)
	}
}

func TestRunFailureMessageIgnoresProgressLines(t *testing.T) {
	tool := writeTool(t, `
echo "ERROR: requested format is not available" >&2
sleep 0.1
echo "[download]  45.0% of 4.00MiB"
echo "[ExtractAudio] Destination: clip.mp3"
exit 1
`)
	dir := t.TempDir()
	p := New(tool, "", &fakeFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := app.Job{ID: "job-1", URL: "https://youtu.be/dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4}
	_, err := p.Run(ctx, job, app.NewHandle(cancel), func(app.Snapshot) {})
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "requested format is not available") {
		t.Errorf("error %q does not carry the diagnostic line", err)
	}
	if strings.Contains(err.Error(), "[download]") {
		t.Errorf("error %q carries a progress line instead of the diagnostic", err)
	}
}

func TestRunFailsWhenNoOutputAppears(t *testing.T) {
	tool := writeTool(t, `
echo "[download] 100% of 4.00MiB"
exit 0
`)
	dir := t.TempDir()
	p := New(tool, "", &fakeFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := app.Job{ID: "job-1", URL: "https://youtu.be/dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4}
	_, err := p.Run(ctx, job, app.NewHandle(cancel), func(app.Snapshot) {})
	if err == nil {
		t.Fatal("Run() succeeded despite missing output file")
	}
}

func TestRunCancellationKillsTool(t *testing.T) {
	tool := writeTool(t, `
echo "[download]  10.0% of 4.00MiB"
sleep 30
`)
	dir := t.TempDir()
	p := New(tool, "", &fakeFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := app.NewHandle(cancel)

	progressed := make(chan struct{}, 1)
	emit := func(s app.Snapshot) {
		if s.State == app.StateDownloading {
			select {
			case progressed <- struct{}{}:
			default:
			}
		}
	}
	go func() {
		<-progressed
		h.Cancel()
	}()

	start := time.Now()
	job := app.Job{ID: "job-1", URL: "https://youtu.be/dQw4w9WgXcQ", Directory: dir, Format: app.FormatMP4}
	_, err := p.Run(ctx, job, h, emit)
	if err == nil {
		t.Fatal("Run() succeeded despite cancellation")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancellation took %s, subprocess was not killed", elapsed)
	}
	if !h.Cancelled() {
		t.Error("handle not flagged cancelled")
	}
}
