// Package config provides configuration for the OAuth proxy (command-line
// flags, a JSON config file and environment variables) and for the ato
// client (viper).
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ProxyOptions holds the configuration values for the OAuth proxy.
type ProxyOptions struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr"`

	// ClientID and ClientSecret identify the GitHub OAuth application.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// AllowedOrigin is the only origin the callback page posts tokens to.
	AllowedOrigin string `json:"allowed_origin"`

	// RedirectURL is the public callback URL; empty uses the one registered upstream.
	RedirectURL string `json:"redirect_url"`

	// AuthURL and TokenURL override the upstream OAuth endpoints.
	AuthURL  string `json:"auth_url"`
	TokenURL string `json:"token_url"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	LogLevel string `json:"log_level"`

	// Config is the path to the JSON config file.
	Config string `json:"-"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (o *ProxyOptions) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

// proxyEnv maps environment variables onto option fields.
var proxyEnv = []struct {
	name string
	dst  func(*ProxyOptions) *string
}{
	{"SERVER_ADDRESS", func(o *ProxyOptions) *string { return &o.Addr }},
	{"GITHUB_CLIENT_ID", func(o *ProxyOptions) *string { return &o.ClientID }},
	{"GITHUB_CLIENT_SECRET", func(o *ProxyOptions) *string { return &o.ClientSecret }},
	{"SPA_ORIGIN", func(o *ProxyOptions) *string { return &o.AllowedOrigin }},
	{"REDIRECT_URL", func(o *ProxyOptions) *string { return &o.RedirectURL }},
	{"OAUTH_AUTH_URL", func(o *ProxyOptions) *string { return &o.AuthURL }},
	{"OAUTH_TOKEN_URL", func(o *ProxyOptions) *string { return &o.TokenURL }},
	{"TLS_CERT", func(o *ProxyOptions) *string { return &o.TLSCert }},
	{"TLS_KEY", func(o *ProxyOptions) *string { return &o.TLSKey }},
	{"LOG_LEVEL", func(o *ProxyOptions) *string { return &o.LogLevel }},
}

// ParseProxy parses args and the environment into ProxyOptions. Sources
// apply in order: flags, the JSON config file, environment variables. A
// .env file in the working directory is loaded into the environment
// first when present.
func ParseProxy(args []string) (*ProxyOptions, error) {
	_ = godotenv.Load()

	o := &ProxyOptions{}
	fs := flag.NewFlagSet("oauth-proxy", flag.ContinueOnError)
	fs.StringVar(&o.Addr, "a", "localhost:8787", "run on ip:port server")
	fs.StringVar(&o.AllowedOrigin, "origin", "http://127.0.0.1:8765", "origin allowed to receive tokens")
	fs.StringVar(&o.RedirectURL, "redirect", "", "public callback URL")
	fs.StringVar(&o.TLSCert, "cert", "", "TLS certificate file")
	fs.StringVar(&o.TLSKey, "key", "", "TLS private key file")
	fs.StringVar(&o.LogLevel, "l", "info", "log level")
	fs.StringVar(&o.Config, "config", "config.json", "path to config file")
	fs.StringVar(&o.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			data, err := os.ReadFile(o.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, o); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	for _, e := range proxyEnv {
		if v := os.Getenv(e.name); v != "" {
			*e.dst(o) = v
		}
	}

	if o.ClientID == "" || o.ClientSecret == "" {
		return nil, errors.New("GitHub client id and secret are required")
	}
	if o.AllowedOrigin == "" {
		return nil, errors.New("allowed origin is required")
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		return nil, errors.New("tls cert and key must be set together")
	}
	return o, nil
}
