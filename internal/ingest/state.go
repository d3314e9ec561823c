package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FeedState tracks the polling status of one source.
type FeedState struct {
	NextRun     string `json:"next_run_iso,omitempty"`
	LastChecked string `json:"last_checked_iso,omitempty"`
	FailCount   int    `json:"fail_count"`
}

// State is the scheduler's persistent state: which item ids were already
// seen and when each feed is due next.
type State struct {
	SeenIDs map[string]struct{}
	LastRun string
	Feeds   map[string]*FeedState
}

type stateFile struct {
	SeenIDs []string              `json:"seen_ids"`
	LastRun string                `json:"last_run_iso,omitempty"`
	Feeds   map[string]*FeedState `json:"feeds"`
}

func newState() *State {
	return &State{
		SeenIDs: make(map[string]struct{}),
		Feeds:   make(map[string]*FeedState),
	}
}

// LoadState reads the scheduler state from path. A missing file starts
// fresh; a corrupt file is an error so a typo'd path does not silently
// re-ingest everything.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newState(), nil
		}
		return nil, fmt.Errorf("reading ingest state %s: %w", path, err)
	}
	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing ingest state %s: %w", path, err)
	}
	state := newState()
	for _, id := range file.SeenIDs {
		state.SeenIDs[id] = struct{}{}
	}
	state.LastRun = file.LastRun
	if file.Feeds != nil {
		state.Feeds = file.Feeds
	}
	return state, nil
}

// Save writes the state to path. Seen ids are sorted so the file diffs
// cleanly between runs.
func (s *State) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	file := stateFile{
		SeenIDs: make([]string, 0, len(s.SeenIDs)),
		LastRun: s.LastRun,
		Feeds:   s.Feeds,
	}
	for id := range s.SeenIDs {
		file.SeenIDs = append(file.SeenIDs, id)
	}
	sort.Strings(file.SeenIDs)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ingest state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing ingest state %s: %w", path, err)
	}
	return nil
}

// feed returns the state entry for a source, creating it on first use.
func (s *State) feed(sourceID string) *FeedState {
	fs, ok := s.Feeds[sourceID]
	if !ok {
		fs = &FeedState{}
		s.Feeds[sourceID] = fs
	}
	return fs
}

// due reports whether the source should run now. A feed with no recorded
// next run is due immediately.
func (fs *FeedState) due(now time.Time) bool {
	if fs.NextRun == "" {
		return true
	}
	next, err := time.Parse(time.RFC3339, fs.NextRun)
	if err != nil {
		return true
	}
	return !now.Before(next)
}
