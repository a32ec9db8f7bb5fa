package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "ATO"
	configName     = "config"
	appDirName     = "ato"
	defaultAPIURL  = "https://api.github.com"
	defaultRepo    = "ato-datastore"
	defaultProxy   = "http://localhost:8787"
	defaultLoopAdr = "127.0.0.1:8765"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Client is the ato client configuration.
type Client struct {
	APIURL   string `mapstructure:"api_url"`
	ProxyURL string `mapstructure:"proxy_url"`
	RepoName string `mapstructure:"repo_name"`
	// CAFile is an extra PEM bundle trusted for the proxy and API, e.g. a dev certificate.
	CAFile string `mapstructure:"ca_file"`

	StateBackend string `mapstructure:"state_backend"`
	StatePath    string `mapstructure:"state_path"`

	LoopbackAddr      string        `mapstructure:"loopback_addr"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout"`
	PopupPollInterval time.Duration `mapstructure:"popup_poll_interval"`
	AutosaveDebounce  time.Duration `mapstructure:"autosave_debounce"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`

	LogLevel string `mapstructure:"log_level"`
	// LogFile receives logs; empty means stderr.
	LogFile string `mapstructure:"log_file"`
}

// Dir returns the per-user ato directory, e.g. ~/.config/ato.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// LoadClient reads the client configuration from v. Values come from, in
// increasing precedence: defaults, the config file (path, or config.yaml
// in the ato directory), and ATO_* environment variables. A missing
// config file is not an error.
func LoadClient(v *viper.Viper, path string) (*Client, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v.SetDefault("api_url", defaultAPIURL)
	v.SetDefault("proxy_url", defaultProxy)
	v.SetDefault("repo_name", defaultRepo)
	v.SetDefault("ca_file", "")
	v.SetDefault("state_backend", BackendFile)
	v.SetDefault("state_path", "")
	v.SetDefault("loopback_addr", defaultLoopAdr)
	v.SetDefault("login_timeout", 120*time.Second)
	v.SetDefault("popup_poll_interval", 500*time.Millisecond)
	v.SetDefault("autosave_debounce", 3*time.Second)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if c.StatePath == "" {
		name := "state.json"
		if c.StateBackend == BackendSQLite {
			name = "state.db"
		}
		c.StatePath = filepath.Join(dir, name)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Client) validate() error {
	switch c.StateBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown state_backend %q (want %q or %q)", c.StateBackend, BackendFile, BackendSQLite)
	}
	if c.ProxyURL == "" {
		return errors.New("proxy_url is required")
	}
	if c.AutosaveDebounce <= 0 || c.LoginTimeout <= 0 || c.PopupPollInterval <= 0 {
		return errors.New("autosave_debounce, login_timeout and popup_poll_interval must be positive")
	}
	return nil
}
