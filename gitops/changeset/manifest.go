package changeset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// manifest is the on-disk change list. JSON documents
// use the same field names.
type manifest struct {
	Changes []manifestEntry `json:"changes" yaml:"changes"`
}

// manifestEntry describes one change. Exactly one of
// Content, File or Delete is expected.
type manifestEntry struct {
	Path     string  `json:"path"     yaml:"path"`
	Content  *string `json:"content"  yaml:"content"`
	Encoding string  `json:"encoding" yaml:"encoding"`
	File     string  `json:"file"     yaml:"file"`
	Mode     string  `json:"mode"     yaml:"mode"`
	Delete   bool    `json:"delete"   yaml:"delete"`
}

// LoadManifest reads a change manifest. Files ending in
// ".json" are decoded as JSON, anything else as YAML.
// "file" entries are resolved relative to the manifest
// directory.
func LoadManifest(path string) (Set, error) {
	const errCtx = "loading change manifest"

	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	set, err := ParseManifest(
		data,
		strings.EqualFold(filepath.Ext(path), ".json"),
		filepath.Dir(path),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return set, nil
}

// ParseManifest decodes manifest bytes. baseDir anchors
// relative "file" entries.
func ParseManifest(
	data []byte,
	isJSON bool,
	baseDir string,
) (Set, error) {
	const errCtx = "parsing change manifest"

	var mf manifest

	if isJSON {
		err := json.Unmarshal(data, &mf)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: decode json: %w", errCtx, err,
			)
		}
	} else {
		err := yaml.Unmarshal(data, &mf)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: decode yaml: %w", errCtx, err,
			)
		}
	}

	set := make(Set, len(mf.Changes))

	for i, ent := range mf.Changes {
		c, err := ent.toChange(baseDir)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: entry %d: %w", errCtx, i, err,
			)
		}

		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf(
				"%s: entry %d: %w", errCtx, i, err,
			)
		}

		set.Add(c)
	}

	return set, nil
}

func (e manifestEntry) toChange(baseDir string) (Change, error) {
	if e.Delete {
		if e.Content != nil || e.File != "" {
			return Change{}, fmt.Errorf(
				"%s: delete entry carries content",
				e.Path,
			)
		}

		return Delete(e.Path), nil
	}

	mode, err := ParseFileMode(e.Mode)
	if err != nil {
		return Change{}, fmt.Errorf("%s: %w", e.Path, err)
	}

	content, err := e.content(baseDir)
	if err != nil {
		return Change{}, fmt.Errorf("%s: %w", e.Path, err)
	}

	return Put(e.Path, content, mode), nil
}

func (e manifestEntry) content(baseDir string) ([]byte, error) {
	switch {
	case e.Content != nil && e.File != "":
		return nil, errors.New(
			"content and file are mutually exclusive",
		)
	case e.File != "":
		fp := e.File
		if !filepath.IsAbs(fp) {
			fp = filepath.Join(baseDir, fp)
		}

		data, err := os.ReadFile(fp) //nolint:gosec // manifest-relative path
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}

		return data, nil
	case e.Content == nil:
		return []byte{}, nil
	}

	switch strings.ToLower(e.Encoding) {
	case "", "utf-8", "utf8":
		return []byte(*e.Content), nil
	case "base64":
		data, err := base64.StdEncoding.DecodeString(
			*e.Content,
		)
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf(
			"unknown encoding %q", e.Encoding,
		)
	}
}
