package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultModelID is the Donut checkpoint fine-tuned for document question answering.
const DefaultModelID = "naver-clova-ix/donut-base-finetuned-docvqa"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Donut    DonutConfig
	Queue    QueueConfig
	Cache    CacheConfig
	Log      LogConfig
}

// DatabaseConfig holds ledger configuration. An empty DSN disables the ledger.
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr      string
	GRPCAddr      string
	MaxUploadMB   int
	ShutdownGrace time.Duration
}

// OCRConfig holds rasterizer and text recognition configuration
type OCRConfig struct {
	Backend       string // "tesseract" | "gosseract"
	Tesseract     string
	Pdftoppm      string
	Lang          string
	TessdataDir   string
	PSM           int
	OEM           int
	ReadingOrder  string // "detection" | "geometric"
	LowConfidence float64
}

// DonutConfig holds structured field model configuration
type DonutConfig struct {
	ModelID      string
	HFToken      string
	CacheDir     string
	LocalDir     string // read artifacts from here instead of the hub
	SidecarURL   string
	Device       string // "auto" | "cpu" | "cuda"
	FieldTimeout time.Duration
	LoadTimeout  time.Duration
	Preload      bool
}

// QueueConfig bounds concurrent inference work
type QueueConfig struct {
	Workers     int
	Size        int
	WaitTimeout time.Duration
}

// CacheConfig controls the content-hash result cache
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string
	Format string // "text" | "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_url", "")
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("db_min_conns", 1)
	v.SetDefault("db_max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db_max_conn_idle_time", 5*time.Minute)
	v.SetDefault("db_dial_timeout", 3*time.Second)
	v.SetDefault("db_statement_timeout", time.Duration(0))

	v.SetDefault("port", "8000")
	v.SetDefault("http_addr", "")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("max_upload_mb", 25)
	v.SetDefault("shutdown_grace", 15*time.Second)

	v.SetDefault("ocr_backend", "tesseract")
	v.SetDefault("tesseract_bin", "tesseract")
	v.SetDefault("pdftoppm_bin", "pdftoppm")
	v.SetDefault("ocr_lang", "eng")
	v.SetDefault("tessdata_prefix", "")
	v.SetDefault("ocr_psm", 0)
	v.SetDefault("ocr_oem", 0)
	v.SetDefault("ocr_reading_order", "detection")
	v.SetDefault("ocr_low_confidence", 0.6)

	v.SetDefault("donut_model", DefaultModelID)
	v.SetDefault("hf_token", "")
	v.SetDefault("donut_cache_dir", "")
	v.SetDefault("donut_model_dir", "")
	v.SetDefault("donut_sidecar_url", "http://127.0.0.1:8500")
	v.SetDefault("donut_device", "auto")
	v.SetDefault("donut_field_timeout", 60*time.Second)
	v.SetDefault("donut_load_timeout", 10*time.Minute)
	v.SetDefault("donut_preload", false)

	v.SetDefault("queue_workers", 2)
	v.SetDefault("queue_size", 64)
	v.SetDefault("queue_wait_timeout", 30*time.Second)

	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl", 5*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// LoadConfig loads configuration from environment variables and, when
// WARRANTYVAULT_CONFIG names a file, from that file. Environment wins.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := v.GetString("warrantyvault_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("read config file %q", path), err)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	httpAddr := v.GetString("http_addr")
	if httpAddr == "" {
		httpAddr = ":" + strings.TrimPrefix(v.GetString("port"), ":")
	}
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("db_driver")),
			DSN:              v.GetString("db_url"),
			MaxConns:         v.GetInt32("db_max_conns"),
			MinConns:         v.GetInt32("db_min_conns"),
			MaxConnLifetime:  v.GetDuration("db_max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("db_max_conn_idle_time"),
			DialTimeout:      v.GetDuration("db_dial_timeout"),
			StatementTimeout: v.GetDuration("db_statement_timeout"),
		},
		Server: ServerConfig{
			HTTPAddr:      httpAddr,
			GRPCAddr:      v.GetString("grpc_addr"),
			MaxUploadMB:   v.GetInt("max_upload_mb"),
			ShutdownGrace: v.GetDuration("shutdown_grace"),
		},
		OCR: OCRConfig{
			Backend:       strings.ToLower(v.GetString("ocr_backend")),
			Tesseract:     v.GetString("tesseract_bin"),
			Pdftoppm:      v.GetString("pdftoppm_bin"),
			Lang:          v.GetString("ocr_lang"),
			TessdataDir:   v.GetString("tessdata_prefix"),
			PSM:           v.GetInt("ocr_psm"),
			OEM:           v.GetInt("ocr_oem"),
			ReadingOrder:  strings.ToLower(v.GetString("ocr_reading_order")),
			LowConfidence: v.GetFloat64("ocr_low_confidence"),
		},
		Donut: DonutConfig{
			ModelID:      v.GetString("donut_model"),
			HFToken:      v.GetString("hf_token"),
			CacheDir:     v.GetString("donut_cache_dir"),
			LocalDir:     v.GetString("donut_model_dir"),
			SidecarURL:   v.GetString("donut_sidecar_url"),
			Device:       strings.ToLower(v.GetString("donut_device")),
			FieldTimeout: v.GetDuration("donut_field_timeout"),
			LoadTimeout:  v.GetDuration("donut_load_timeout"),
			Preload:      v.GetBool("donut_preload"),
		},
		Queue: QueueConfig{
			Workers:     v.GetInt("queue_workers"),
			Size:        v.GetInt("queue_size"),
			WaitTimeout: v.GetDuration("queue_wait_timeout"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache_enabled"),
			TTL:     v.GetDuration("cache_ttl"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
	}
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("MAX_UPLOAD_MB", c.Server.MaxUploadMB, Positive).
		Field("OCR_BACKEND", c.OCR.Backend, OneOf("tesseract", "gosseract")).
		Field("OCR_READING_ORDER", c.OCR.ReadingOrder, OneOf("detection", "geometric")).
		Field("DONUT_MODEL", c.Donut.ModelID, Required).
		Field("DONUT_SIDECAR_URL", c.Donut.SidecarURL, Required).
		Field("DONUT_DEVICE", c.Donut.Device, OneOf("auto", "cpu", "cuda")).
		Field("DONUT_FIELD_TIMEOUT", c.Donut.FieldTimeout, Positive).
		Field("QUEUE_WORKERS", c.Queue.Workers, Positive).
		Field("QUEUE_SIZE", c.Queue.Size, Positive).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	if c.Database.DSN != "" {
		v.Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite"))
	}
	if c.OCR.LowConfidence < 0 || c.OCR.LowConfidence > 1 {
		v.Field("OCR_LOW_CONFIDENCE", c.OCR.LowConfidence, func(name string, val interface{}) *ValidationError {
			return &ValidationError{Field: name, Value: val, Message: "must be within [0, 1]"}
		})
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
