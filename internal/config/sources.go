package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/opml"
)

// ExportTitle is the OPML head title written by SaveSources.
const ExportTitle = "rssdash subscriptions"

// SourceFile is the JSON and YAML shape of a source list.
type SourceFile struct {
	Feeds []model.FeedSource `json:"feeds" yaml:"feeds"`
}

type sourceFormat int

const (
	formatJSON sourceFormat = iota
	formatYAML
	formatOPML
)

func formatOf(path string) sourceFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".opml", ".xml":
		return formatOPML
	}
	return formatJSON
}

// LoadSources reads the source list at path. The format follows the file
// extension: .yaml/.yml, .opml/.xml, anything else is JSON. A missing file
// is ENOTFOUND.
func LoadSources(path string) ([]model.FeedSource, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.Errorf(model.ENOTFOUND, "source list %s does not exist", path)
	} else if err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}

	var sources []model.FeedSource
	switch formatOf(path) {
	case formatOPML:
		if sources, err = opml.Parse(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	case formatYAML:
		var f SourceFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, model.Errorf(model.EINVALID, "parse %s: %v", path, err)
		}
		sources = f.Feeds
	default:
		var f SourceFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, model.Errorf(model.EINVALID, "parse %s: %v", path, err)
		}
		sources = f.Feeds
	}
	return normalizeSources(sources), nil
}

// SaveSources writes sources to path in the format its extension selects.
func SaveSources(path string, sources []model.FeedSource) error {
	sources = normalizeSources(sources)

	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case formatOPML:
		data, err = opml.Export(ExportTitle, sources)
	case formatYAML:
		data, err = yaml.Marshal(SourceFile{Feeds: sources})
	default:
		data, err = json.MarshalIndent(SourceFile{Feeds: sources}, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode source list: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write source list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write source list: %w", err)
	}
	return nil
}

// SourcePath is a source list stored in a file.
type SourcePath string

// Load reads the list with LoadSources.
func (p SourcePath) Load() ([]model.FeedSource, error) {
	return LoadSources(string(p))
}

// Save writes the list with SaveSources.
func (p SourcePath) Save(sources []model.FeedSource) error {
	return SaveSources(string(p), sources)
}

// MergeSources appends the sources in added whose URL is not yet in
// existing and reports how many were new.
func MergeSources(existing, added []model.FeedSource) ([]model.FeedSource, int) {
	known := lo.SliceToMap(existing, func(s model.FeedSource) (string, struct{}) { return s.URL, struct{}{} })
	merged := append([]model.FeedSource{}, existing...)
	n := 0
	for _, s := range normalizeSources(added) {
		if _, ok := known[s.URL]; ok {
			continue
		}
		known[s.URL] = struct{}{}
		merged = append(merged, s)
		n++
	}
	return merged, n
}

func normalizeSources(sources []model.FeedSource) []model.FeedSource {
	out := lo.Map(sources, func(s model.FeedSource, _ int) model.FeedSource {
		return model.FeedSource{
			Name:   strings.TrimSpace(s.Name),
			URL:    strings.TrimSpace(s.URL),
			Folder: strings.TrimSpace(s.Folder),
		}
	})
	return lo.UniqBy(out, func(s model.FeedSource) string { return s.URL })
}
