// Package settings is the persistent key-value store behind user preferences
// and download history. It is file backed (JSON via viper) and notifies
// subscribers with a full snapshot after every change, so a presentation
// layer can mirror it without polling.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/albadl/albadl/internal/app"
	"github.com/spf13/viper"
)

// Well-known keys.
const (
	KeyDownloadFolder    = "download_folder"
	KeySubtitleLanguages = "subtitle_languages"
	KeyDownloadHistory   = "download_history"
)

// MaxHistory bounds the download history; older entries are dropped first.
const MaxHistory = 100

var defaultSubtitleLanguages = []string{"sq", "en"}

// Store is a viper-backed implementation of app.Store.
type Store struct {
	mu       sync.Mutex
	v        *viper.Viper
	path     string
	watchers []func(map[string]interface{})
}

var _ app.Store = (*Store)(nil)

// New opens (or creates) the settings file at path. downloadDir is the
// default download folder used until the user configures one.
func New(path, downloadDir string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault(KeyDownloadFolder, downloadDir)
	v.SetDefault(KeySubtitleLanguages, defaultSubtitleLanguages)
	v.SetDefault(KeyDownloadHistory, []interface{}{})

	s := &Store{v: v, path: path}
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file %q: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create settings directory: %w", err)
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns the value stored under key, or nil.
func (s *Store) Get(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.Get(key)
}

// Update applies a partial change, persists it and returns the full settings
// snapshot. Subscribers are notified with the same snapshot.
func (s *Store) Update(partial map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	for k, val := range partial {
		s.v.Set(k, val)
	}
	if err := s.persist(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snap := s.v.AllSettings()
	watchers := s.watchers
	s.mu.Unlock()

	for _, w := range watchers {
		w(snap)
	}
	return snap, nil
}

// DownloadDir returns the configured download folder.
func (s *Store) DownloadDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(KeyDownloadFolder)
}

// SubtitleLanguages returns the preferred subtitle languages for extraction
// jobs, most preferred first.
func (s *Store) SubtitleLanguages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetStringSlice(KeySubtitleLanguages)
}

// History returns the recorded downloads, oldest first.
func (s *Store) History() ([]app.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Store) historyLocked() ([]app.HistoryEntry, error) {
	var entries []app.HistoryEntry
	if err := s.v.UnmarshalKey(KeyDownloadHistory, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode download history: %w", err)
	}
	return entries, nil
}

// AppendHistory records a completed download, trimming the history to
// MaxHistory entries. This is the one write the download core performs.
func (s *Store) AppendHistory(entry app.HistoryEntry) error {
	s.mu.Lock()
	entries, err := s.historyLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	entries = append(entries, entry)
	if len(entries) > MaxHistory {
		entries = entries[len(entries)-MaxHistory:]
	}
	s.v.Set(KeyDownloadHistory, entries)
	if err := s.persist(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.v.AllSettings()
	watchers := s.watchers
	s.mu.Unlock()

	for _, w := range watchers {
		w(snap)
	}
	return nil
}

// OnChange registers a subscriber for full-settings snapshots. Subscribers
// are called synchronously after each successful Update or AppendHistory.
func (s *Store) OnChange(fn func(map[string]interface{})) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Store) persist() error {
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings file %q: %w", s.path, err)
	}
	return nil
}
