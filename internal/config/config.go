package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/backyonatan-alt/casecount/internal/model"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPort            = "8080"
	DefaultDriver          = "sqlite"
	DefaultDSN             = "casecount.db"
	DefaultSourceURL       = "https://www.worldometers.info/coronavirus/"
	DefaultUserAgent       = "Mozilla/5.0 (compatible; casecount/1.0)"
	DefaultSourceTimeout   = 30 * time.Second
	DefaultMinColumns      = 8
	DefaultRefreshInterval = time.Hour
	DefaultRenderTimeout   = 10 * time.Second
	DefaultArtifactDir     = "artifacts"
)

type Config struct {
	Server  ServerConfig      `yaml:"server"`
	Store   StoreConfig       `yaml:"store"`
	Source  SourceConfig      `yaml:"source"`
	Refresh RefreshConfig     `yaml:"refresh"`
	Render  RenderConfig      `yaml:"render"`
	Log     LogConfig         `yaml:"log"`
	Aliases map[string]string `yaml:"aliases"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	// Driver is one of: sqlite | postgres.
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

type SourceConfig struct {
	URL        string        `yaml:"url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MinColumns int           `yaml:"min_columns"`
	Columns    Columns       `yaml:"columns"`
	// Sentinels are name-cell values marking summary rows.
	Sentinels []string `yaml:"sentinels"`
}

// Columns maps record fields to zero-based cell indexes in a table row.
type Columns struct {
	Name           int `yaml:"name"`
	TotalCases     int `yaml:"total_cases"`
	NewCases       int `yaml:"new_cases"`
	TotalDeaths    int `yaml:"total_deaths"`
	NewDeaths      int `yaml:"new_deaths"`
	TotalRecovered int `yaml:"total_recovered"`
}

// DefaultColumns is the layout of the worldometers country table.
var DefaultColumns = Columns{
	Name:           1,
	TotalCases:     2,
	NewCases:       3,
	TotalDeaths:    4,
	NewDeaths:      5,
	TotalRecovered: 6,
}

func (c Columns) indexes() []int {
	return []int{c.Name, c.TotalCases, c.NewCases, c.TotalDeaths, c.NewDeaths, c.TotalRecovered}
}

func (c Columns) max() int {
	m := c.Name
	for _, v := range c.indexes() {
		if v > m {
			m = v
		}
	}
	return m
}

func (c Columns) min() int {
	m := c.Name
	for _, v := range c.indexes() {
		if v < m {
			m = v
		}
	}
	return m
}

func (c Columns) isZero() bool { return c == Columns{} }

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type RenderConfig struct {
	// Endpoint is the external renderer URL. Empty disables artifacts.
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	ArtifactDir string        `yaml:"artifact_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path (optional: an empty path or a missing
// file yields defaults), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Join(model.ErrConfig, zerr.With(zerr.Wrap(err, "parse config"), "path", path))
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, zerr.With(zerr.Wrap(err, "read config"), "path", path)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if c.Store.Driver == "" && strings.HasPrefix(v, "postgres") {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("SOURCE_URL"); v != "" {
		c.Source.URL = v
	}
	if v := os.Getenv("RENDER_ENDPOINT"); v != "" {
		c.Render.Endpoint = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultDriver
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = DefaultDSN
	}
	if c.Source.URL == "" {
		c.Source.URL = DefaultSourceURL
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = DefaultUserAgent
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.Source.MinColumns == 0 {
		c.Source.MinColumns = DefaultMinColumns
	}
	if c.Source.Columns.isZero() {
		c.Source.Columns = DefaultColumns
	}
	if c.Source.Sentinels == nil {
		c.Source.Sentinels = []string{"Total:"}
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Render.Timeout == 0 {
		c.Render.Timeout = DefaultRenderTimeout
	}
	if c.Render.ArtifactDir == "" {
		c.Render.ArtifactDir = DefaultArtifactDir
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	invalid := func(field, reason string) error {
		return errors.Join(model.ErrConfig, zerr.With(zerr.New(reason), "field", field))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return invalid("store.driver", fmt.Sprintf("unsupported driver %q (supported: sqlite, postgres)", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		return invalid("store.dsn", "DATABASE_URL or store.dsn is required")
	}
	if c.Refresh.Interval < time.Second {
		return invalid("refresh.interval", "must be at least 1s")
	}
	if c.Render.Timeout < 0 {
		return invalid("render.timeout", "must not be negative")
	}
	if c.Source.Columns.min() < 0 {
		return invalid("source.columns", "column indexes must not be negative")
	}
	if c.Source.MinColumns <= c.Source.Columns.max() {
		return invalid("source.min_columns", "must be greater than every configured column index")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	for alias, target := range c.Aliases {
		if model.NormalizeKey(alias) == "" || model.NormalizeKey(target) == "" {
			return invalid("aliases", "alias and target must be non-empty")
		}
	}
	return nil
}
