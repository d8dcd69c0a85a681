package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestWalkDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.pdf":         "%PDF",
		"b.JPG":         "jpg",
		"notes.txt":     "skip",
		"sub/c.png":     "png",
		"sub/bad.png":   "boom",
		".hidden/d.png": "hidden",
		"sub/.e.pdf":    "hidden",
	})

	var seen []string
	results, stats, err := WalkDirectory(context.Background(), root, Options{SkipHidden: true},
		func(_ context.Context, path string, doc document.RawDocument) (any, error) {
			rel, _ := filepath.Rel(root, path)
			seen = append(seen, rel)
			if string(doc.Bytes) == "boom" {
				return nil, errors.New("decode failed")
			}
			return string(doc.Kind), nil
		})
	require.NoError(t, err)

	sort.Strings(seen)
	assert.Equal(t, []string{"a.pdf", "b.JPG", "sub/bad.png", "sub/c.png"}, seen)
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Failed)
	require.Len(t, results, 4)

	for _, r := range results {
		switch filepath.Base(r.Path) {
		case "a.pdf":
			assert.Equal(t, string(constants.PDF), r.Result)
		case "bad.png":
			assert.Equal(t, "decode failed", r.Err)
		}
	}
}

func TestWalkDirectory_IncludeExtsAndMaxBytes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.pdf":   "%PDF",
		"big.pdf": "0123456789",
		"b.png":   "png",
	})

	var calls int
	results, stats, err := WalkDirectory(context.Background(), root, Options{IncludeExts: []string{".PDF"}, MaxBytes: 5},
		func(context.Context, string, document.RawDocument) (any, error) {
			calls++
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Len(t, results, 2)
}

func TestWalkDirectory_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.pdf": "x", "b.pdf": "y"})

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := WalkDirectory(ctx, root, Options{}, func(context.Context, string, document.RawDocument) (any, error) {
		cancel()
		return nil, context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkDirectory_EmptyRoot(t *testing.T) {
	_, _, err := WalkDirectory(context.Background(), " ", Options{}, nil)
	assert.Error(t, err)
}
