package app

// HistoryEntry is one completed download as recorded in the settings store.
// Timestamps are unix milliseconds.
type HistoryEntry struct {
	ID          string `json:"id" mapstructure:"id"`
	FilePath    string `json:"filePath" mapstructure:"filePath"`
	FileName    string `json:"fileName" mapstructure:"fileName"`
	Format      Format `json:"format" mapstructure:"format"`
	Title       string `json:"title" mapstructure:"title"`
	Thumbnail   string `json:"thumbnail,omitempty" mapstructure:"thumbnail"`
	Source      Source `json:"source" mapstructure:"source"`
	URL         string `json:"url,omitempty" mapstructure:"url"`
	CompletedAt int64  `json:"completedAt" mapstructure:"completedAt"`
}

// Store is the persistent settings collaborator. The engine only reads
// preferences from it and appends history records; everything else about
// settings persistence lives outside the core.
type Store interface {
	Get(key string) interface{}
	Update(partial map[string]interface{}) (map[string]interface{}, error)
	DownloadDir() string
	SubtitleLanguages() []string
	AppendHistory(entry HistoryEntry) error
}
