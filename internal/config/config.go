// Package config loads and validates application configuration.
package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/crypto"
)

// SecretKeyEnv names the environment variable holding the passphrase used
// to decrypt enc:v1: credential values.
const SecretKeyEnv = "SHELFSTREAM_SECRET_KEY"

// Config holds all application configuration. It is read once at startup;
// adapters are constructed from it and never reconfigured in place.
type Config struct {
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Search    SearchConfig    `mapstructure:"search"`
	Download  DownloadConfig  `mapstructure:"download"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	History   HistoryConfig   `mapstructure:"history"`

	// Proxy is an optional outbound HTTP(S) proxy URL applied to every
	// adapter's HTTP client.
	Proxy string `mapstructure:"proxy"`

	// SecretSalt is the base64 salt for credential key derivation.
	SecretSalt string `mapstructure:"secret_salt"`
}

// PlatformsConfig holds per-platform enable flags and connection settings.
type PlatformsConfig struct {
	CalibreWeb   CalibreWebConfig   `mapstructure:"calibre_web"`
	ZLibrary     ZLibraryConfig     `mapstructure:"zlibrary"`
	ArchiveOrg   ArchiveOrgConfig   `mapstructure:"archive_org"`
	Liber3       Liber3Config       `mapstructure:"liber3"`
	AnnasArchive AnnasArchiveConfig `mapstructure:"annas_archive"`
}

// CalibreWebConfig configures a self-hosted Calibre-Web catalog.
type CalibreWebConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ZLibraryConfig configures the authenticated Z-Library mirror.
type ZLibraryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	BaseURL  string `mapstructure:"base_url"`
}

// ArchiveOrgConfig configures the archive.org adapter.
type ArchiveOrgConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// Liber3Config configures the Liber3 IPFS-backed adapter.
type Liber3Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	GatewayURL string `mapstructure:"gateway_url"`
}

// AnnasArchiveConfig configures the Anna's Archive adapter (link-only).
type AnnasArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig holds search orchestration settings.
type SearchConfig struct {
	// MaxResults caps the merged result list.
	MaxResults int `mapstructure:"max_results"`
	// TimeoutSeconds bounds each adapter's search call.
	TimeoutSeconds int `mapstructure:"timeout"`
}

// DownloadConfig holds download orchestration settings.
type DownloadConfig struct {
	// TimeoutSeconds bounds a whole download attempt.
	TimeoutSeconds int `mapstructure:"timeout"`
	// MaxRetries bounds transient-failure retries.
	MaxRetries int `mapstructure:"max_retries"`
	// SavePath is the default directory for downloaded files.
	SavePath string `mapstructure:"save_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// HistoryConfig holds the local history database settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Default returns a Config with default values. Only the anonymous public
// platforms are enabled out of the box.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from an optional JSON file and the environment.
// Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.shelfstream")
	}

	v.SetEnvPrefix("SHELFSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", books.ErrInvalidConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", books.ErrInvalidConfig, err)
	}

	if err := cfg.decryptCredentials(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration exhaustively. Construction fails here
// rather than on first use.
func (c *Config) Validate() error {
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("%w: search.max_results must be positive", books.ErrInvalidConfig)
	}
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: search.timeout must be positive", books.ErrInvalidConfig)
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: download.timeout must be positive", books.ErrInvalidConfig)
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("%w: download.max_retries must not be negative", books.ErrInvalidConfig)
	}

	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: proxy must be a valid URL", books.ErrInvalidConfig)
		}
	}

	if c.Platforms.CalibreWeb.Enabled && c.Platforms.CalibreWeb.URL == "" {
		return fmt.Errorf("%w: calibre_web is enabled but no url is set", books.ErrNotConfigured)
	}
	if c.Platforms.ZLibrary.Enabled {
		if c.Platforms.ZLibrary.Email == "" || c.Platforms.ZLibrary.Password == "" {
			return fmt.Errorf("%w: zlibrary is enabled but email/password are missing", books.ErrNotConfigured)
		}
	}

	return nil
}

// EnabledPlatforms lists the platforms switched on in this configuration.
func (c *Config) EnabledPlatforms() []books.Platform {
	var enabled []books.Platform
	if c.Platforms.CalibreWeb.Enabled {
		enabled = append(enabled, books.PlatformCalibreWeb)
	}
	if c.Platforms.ZLibrary.Enabled {
		enabled = append(enabled, books.PlatformZLibrary)
	}
	if c.Platforms.ArchiveOrg.Enabled {
		enabled = append(enabled, books.PlatformArchiveOrg)
	}
	if c.Platforms.Liber3.Enabled {
		enabled = append(enabled, books.PlatformLiber3)
	}
	if c.Platforms.AnnasArchive.Enabled {
		enabled = append(enabled, books.PlatformAnnasArchive)
	}
	return enabled
}

// HasCredentials reports whether credentials are configured for a
// platform. Platforms without an auth requirement always report true;
// Calibre-Web's optional basic auth falls in that bucket because the
// adapter never demands it up front.
func (c *Config) HasCredentials(platform books.Platform) bool {
	switch platform {
	case books.PlatformZLibrary:
		return c.Platforms.ZLibrary.Email != "" && c.Platforms.ZLibrary.Password != ""
	default:
		return true
	}
}

// decryptCredentials resolves enc:v1: values using the passphrase from the
// environment. Plaintext credentials pass through untouched.
func (c *Config) decryptCredentials() error {
	fields := []*string{
		&c.Platforms.ZLibrary.Password,
		&c.Platforms.CalibreWeb.Password,
	}

	anyEncrypted := false
	for _, field := range fields {
		if crypto.IsEncrypted(*field) {
			anyEncrypted = true
		}
	}
	if !anyEncrypted {
		return nil
	}

	passphrase := os.Getenv(SecretKeyEnv)
	if passphrase == "" {
		return fmt.Errorf("%w: encrypted credentials present but %s is not set", books.ErrInvalidConfig, SecretKeyEnv)
	}

	salt, err := base64.StdEncoding.DecodeString(c.SecretSalt)
	if err != nil || len(salt) == 0 {
		return fmt.Errorf("%w: secret_salt must be valid base64 when credentials are encrypted", books.ErrInvalidConfig)
	}

	store := crypto.NewCredentialStore(passphrase, salt)
	for _, field := range fields {
		plaintext, err := store.Decrypt(*field)
		if err != nil {
			return fmt.Errorf("%w: credential decryption failed: %v", books.ErrInvalidConfig, err)
		}
		*field = plaintext
	}
	return nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("platforms.calibre_web.enabled", false)
	v.SetDefault("platforms.calibre_web.url", "")
	v.SetDefault("platforms.calibre_web.username", "")
	v.SetDefault("platforms.calibre_web.password", "")

	v.SetDefault("platforms.zlibrary.enabled", false)
	v.SetDefault("platforms.zlibrary.email", "")
	v.SetDefault("platforms.zlibrary.password", "")
	v.SetDefault("platforms.zlibrary.base_url", "https://z-library.sk")

	v.SetDefault("platforms.archive_org.enabled", true)
	v.SetDefault("platforms.archive_org.base_url", "https://archive.org")

	v.SetDefault("platforms.liber3.enabled", true)
	v.SetDefault("platforms.liber3.base_url", "https://lgate.glitternode.ru")
	v.SetDefault("platforms.liber3.gateway_url", "https://gateway-ipfs.st")

	v.SetDefault("platforms.annas_archive.enabled", false)
	v.SetDefault("platforms.annas_archive.base_url", "https://annas-archive.org")

	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.timeout", 30)

	v.SetDefault("download.timeout", 120)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.save_path", "./downloads")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "./data/shelfstream.db")

	v.SetDefault("proxy", "")
	v.SetDefault("secret_salt", "")
}
