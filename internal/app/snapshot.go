package app

// Preview is the display metadata attached to progress snapshots. For direct
// transfers it is synthesized from the file name; for extraction jobs it may
// be upgraded once when the slow metadata fetch resolves late.
type Preview struct {
	Title     string
	Thumbnail string
	Source    Source
	URL       string
}

// Snapshot is a point-in-time view of a job, emitted to the presentation
// sink. Progress is nil when the total size is unknown.
type Snapshot struct {
	ID            string `json:"id"`
	State         State  `json:"status"`
	ReceivedBytes int64  `json:"receivedBytes,omitempty"`
	TotalBytes    int64  `json:"totalBytes,omitempty"`
	Progress      *int   `json:"progress,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	FilePath      string `json:"filePath,omitempty"`
	Format        Format `json:"format,omitempty"`
	Title         string `json:"title,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Source        Source `json:"source,omitempty"`
	URL           string `json:"url,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Message       string `json:"message,omitempty"`
}

// WithPreview copies the preview fields onto the snapshot and returns it.
func (s Snapshot) WithPreview(p Preview) Snapshot {
	s.Title = p.Title
	s.Thumbnail = p.Thumbnail
	s.Source = p.Source
	if p.URL != "" {
		s.URL = p.URL
	}
	return s
}

// Percent is a convenience for building the optional progress field.
func Percent(n int) *int {
	return &n
}

// EmitFunc receives non-terminal snapshots from a running pipeline. The
// engine decorates every snapshot with the job id before forwarding it.
type EmitFunc func(Snapshot)

// Result is what a pipeline returns on success. The engine turns it into the
// terminal completed snapshot.
type Result struct {
	FilePath string
	FileName string
	Size     int64
	Preview  Preview
}
