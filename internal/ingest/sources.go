package ingest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source describes one RSS feed to poll.
type Source struct {
	ID          string        `yaml:"id"`
	URL         string        `yaml:"url"`
	Enabled     *bool         `yaml:"enabled"`  // nil means enabled
	Interval    time.Duration `yaml:"interval"` // 0 falls back to the default
	Limit       int           `yaml:"limit"`
	Lang        string        `yaml:"lang"`
	DocPrefix   string        `yaml:"docPrefix"`
	TitlePrefix string        `yaml:"titlePrefix"`
}

// IsEnabled reports whether the source should be polled.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed list from a YAML file and fills per-source
// defaults: id doubles as doc prefix, title prefix defaults to "[id]", and
// language defaults to English.
func LoadSources(path string, defaultInterval time.Duration, defaultLimit int) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file %s: %w", path, err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sources file %s: %w", path, err)
	}

	for i := range file.Sources {
		src := &file.Sources[i]
		if src.ID == "" || src.URL == "" {
			return nil, fmt.Errorf("sources file %s: source %d missing id or url", path, i)
		}
		if src.Interval <= 0 {
			src.Interval = defaultInterval
		}
		if src.Limit <= 0 {
			src.Limit = defaultLimit
		}
		if src.Lang == "" {
			src.Lang = "en"
		}
		if src.DocPrefix == "" {
			src.DocPrefix = src.ID
		}
		if src.TitlePrefix == "" {
			src.TitlePrefix = "[" + src.ID + "]"
		}
	}
	return file.Sources, nil
}
