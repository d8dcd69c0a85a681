package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultModelID, cfg.Donut.ModelID)
	assert.Equal(t, "detection", cfg.OCR.ReadingOrder)
	assert.Equal(t, 60*time.Second, cfg.Donut.FieldTimeout)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("DONUT_FIELD_TIMEOUT", "5s")
	t.Setenv("QUEUE_WORKERS", "7")
	t.Setenv("OCR_READING_ORDER", "Geometric")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Server.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Donut.FieldTimeout)
	assert.Equal(t, 7, cfg.Queue.Workers)
	assert.Equal(t, "geometric", cfg.OCR.ReadingOrder)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warrantyvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_size: 3\nocr_lang: deu\n"), 0o600))
	t.Setenv("WARRANTYVAULT_CONFIG", path)
	t.Setenv("OCR_LANG", "fra")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.Size)
	assert.Equal(t, "fra", cfg.OCR.Lang)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("WARRANTYVAULT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.OCR.ReadingOrder = "spiral"
	cfg.Queue.Workers = 0
	cfg.OCR.LowConfidence = 1.5

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR_READING_ORDER")
	assert.Contains(t, err.Error(), "QUEUE_WORKERS")
	assert.Contains(t, err.Error(), "OCR_LOW_CONFIDENCE")
}

func TestValidateUpload(t *testing.T) {
	assert.ErrorIs(t, ValidateUpload(nil, 10), ErrInvalidInput)
	assert.ErrorIs(t, ValidateUpload(make([]byte, 11), 10), ErrInvalidInput)
	assert.NoError(t, ValidateUpload([]byte("abc"), 10))
}
