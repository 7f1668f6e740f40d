package app

import "strings"

// Format is the requested output container of a job.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMP3 Format = "mp3"
)

// ParseFormat normalizes a user supplied format. Anything that is not
// explicitly mp3 falls back to mp4, so a job can never carry an unknown
// format.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatMP3)) {
		return FormatMP3
	}
	return FormatMP4
}

// Extension returns the file extension for the format, with a leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// NeedsTranscode reports whether a directly fetched artifact has to go
// through ffmpeg before it can be promoted to its final path.
func (f Format) NeedsTranscode() bool {
	return f == FormatMP3
}

// Quality is a ceiling on the vertical resolution of an extraction job.
type Quality string

const (
	QualityAuto  Quality = "auto"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
)

// ParseQuality normalizes a user supplied quality hint. Unknown values are
// treated as automatic.
func ParseQuality(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1080", "1080p":
		return Quality1080p
	case "720", "720p":
		return Quality720p
	case "480", "480p":
		return Quality480p
	}
	return QualityAuto
}

// Height returns the resolution ceiling in lines, or 0 for automatic.
func (q Quality) Height() int {
	switch q {
	case Quality1080p:
		return 1080
	case Quality720p:
		return 720
	case Quality480p:
		return 480
	}
	return 0
}

// Source classifies where a job's bytes come from.
type Source string

const (
	SourceYouTube Source = "youtube"
	SourceDirect  Source = "direct"
)

// State is the lifecycle state of a job. Transitions are monotonic: once a
// job reports a terminal state, no further non-terminal state is emitted for
// its id.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateMetadata    State = "metadata"
	StateCompleted   State = "completed"
	StateError       State = "error"
	StateCancelled   State = "cancelled"
)

// IsTerminal reports whether no further state change may follow.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

// Request is what a caller hands to the engine when submitting a download.
type Request struct {
	URL       string
	Directory string
	Format    Format
	Playlist  bool
	Quality   Quality
}

// Job is an admitted request. It is owned by the engine and immutable once
// enqueued.
type Job struct {
	ID        string
	URL       string
	Directory string
	Format    Format
	Playlist  bool
	Quality   Quality
}
