// Package ingest walks local directories and feeds each supported document
// through an extraction callback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

type FileResult struct {
	Path   string `json:"path"`
	Kind   string `json:"kind,omitempty"`
	Result any    `json:"result,omitempty"`
	Err    string `json:"error,omitempty"`
}

type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Succeeded uint32 `json:"succeeded"`
	Failed    uint32 `json:"failed"`
}

type Options struct {
	IncludeExts []string // defaults to constants.AllowedExtensions
	SkipHidden  bool
	MaxBytes    int64 // 0 = unlimited
}

// Handler extracts one document. Its result is stored in FileResult.Result.
type Handler func(ctx context.Context, path string, doc document.RawDocument) (any, error)

// WalkDirectory walks root, filters by extension, skips hidden entries if
// requested, and calls fn for each file. Per-file failures are recorded and
// the walk continues; cancellation of ctx stops it.
func WalkDirectory(ctx context.Context, root string, opts Options, fn Handler) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	exts := map[string]struct{}{}
	if len(opts.IncludeExts) == 0 {
		for e := range constants.AllowedExtensions {
			exts[e] = struct{}{}
		}
	} else {
		for _, e := range opts.IncludeExts {
			if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
				exts[e] = struct{}{}
			}
		}
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if opts.SkipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			return nil
		}
		stats.Matched++

		doc, err := readFile(path, ext, opts.MaxBytes)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		out, err := fn(ctx, path, doc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			results = append(results, FileResult{Path: path, Kind: string(doc.Kind), Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, Kind: string(doc.Kind), Result: out})
		stats.Succeeded++
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func readFile(path, ext string, maxBytes int64) (document.RawDocument, error) {
	if maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return document.RawDocument{}, err
		}
		if info.Size() > maxBytes {
			return document.RawDocument{}, fmt.Errorf("file exceeds %d bytes", maxBytes)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return document.RawDocument{}, err
	}
	return document.RawDocument{Bytes: data, Kind: constants.KindFromExt(ext)}, nil
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
