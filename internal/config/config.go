package config

import (
	_ "embed"
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

type Config struct {
	Store       StoreConfig
	Ledger      LedgerConfig
	Database    DatabaseConfig
	Embedding   EmbeddingConfig
	Match       MatchConfig
	Snapshot    SnapshotConfig
	Log         LogConfig
	Web         WebConfig
	Calibration CalibrationConfig
}

type StoreConfig struct {
	Backend string // file or postgres, defaults to file
	Dir     string // identity directory for the file backend, defaults to ./db
}

type LedgerConfig struct {
	TextPath string // defaults to ./log.txt
	CSVPath  string // defaults to ./log.csv
	Mirror   bool   // also append events to PostgreSQL (requires DATABASE_URL)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to dlib_face_recognition_resnet_model_v1
	Dim   int    // defaults to 128
}

type MatchConfig struct {
	Threshold float64 // 0 means use the calibration for Embedding.Model
	IndexMin  int     // identity count at which HNSW narrowing is used, 0 disables
}

type SnapshotConfig struct {
	MaxSize int // longest edge in pixels of the stored reference image
}

type LogConfig struct {
	Mode string // dev or prod
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins, empty allows none
}

type CalibrationConfig struct {
	Default float64                     `yaml:"default"`
	Models  map[string]ModelCalibration `yaml:"models"`
}

type ModelCalibration struct {
	Threshold float64 `yaml:"threshold"`
	Dim       int     `yaml:"dim"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is envInt that also accepts 0.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString returns the env var or defaultVal when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envBool parses a boolean env var, falling back to defaultVal.
func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func Load() *Config {
	var calibration CalibrationConfig
	if err := yaml.Unmarshal(defaultsYAML, &calibration); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Store: StoreConfig{
			Backend: envString("STORE_BACKEND", StoreBackendFile),
			Dir:     envString("STORE_DIR", "./db"),
		},
		Ledger: LedgerConfig{
			TextPath: envString("LEDGER_TEXT_PATH", "./log.txt"),
			CSVPath:  envString("LEDGER_CSV_PATH", "./log.csv"),
			Mirror:   envBool("LEDGER_MIRROR", false),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: envString("EMBEDDING_MODEL", "dlib_face_recognition_resnet_model_v1"),
			Dim:   envInt("EMBEDDING_DIM", 128),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", 0),
			IndexMin:  envNonNegativeInt("MATCH_INDEX_MIN", 1000),
		},
		Snapshot: SnapshotConfig{
			MaxSize: envInt("SNAPSHOT_MAX_SIZE", 640),
		},
		Log: LogConfig{
			Mode: envString("LOG_MODE", "dev"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Calibration: calibration,
	}
}

// MatchThreshold returns the acceptance threshold: the explicit override if
// set, else the calibration for the configured model, else the default.
func (c *Config) MatchThreshold() float64 {
	if c.Match.Threshold > 0 {
		return c.Match.Threshold
	}
	if m, ok := c.Calibration.Models[c.Embedding.Model]; ok && m.Threshold > 0 {
		return m.Threshold
	}
	return c.Calibration.Default
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreBackendFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("STORE_DIR must not be empty"))
		}
	case StoreBackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store backend"))
		}
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be \"file\" or \"postgres\""))
	}

	if c.Ledger.TextPath == "" || c.Ledger.CSVPath == "" {
		errs = append(errs, errors.New("LEDGER_TEXT_PATH and LEDGER_CSV_PATH must not be empty"))
	}
	if c.Ledger.TextPath != "" && c.Ledger.TextPath == c.Ledger.CSVPath {
		errs = append(errs, errors.New("LEDGER_TEXT_PATH and LEDGER_CSV_PATH must differ"))
	}
	if c.Ledger.Mirror && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when LEDGER_MIRROR is enabled"))
	}

	if m, ok := c.Calibration.Models[c.Embedding.Model]; ok && m.Dim > 0 && m.Dim != c.Embedding.Dim {
		errs = append(errs, errors.New("EMBEDDING_DIM does not match the calibrated dimension of EMBEDDING_MODEL"))
	}

	return errors.Join(errs...)
}
