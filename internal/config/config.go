// Package config loads the CLI's YAML config file and resolves cluster URLs.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvPath overrides DefaultPath.
const EnvPath = "PINGBURST_CONFIG"

type Config struct {
	JSONRPCURL   string `yaml:"json_rpc_url"`
	WebsocketURL string `yaml:"websocket_url"`
	KeypairPath  string `yaml:"keypair_path"`
	Commitment   string `yaml:"commitment"`
	LeaderAddr   string `yaml:"leader_addr"`
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pingburst"
	}
	return filepath.Join(home, ".config", "pingburst")
}

// DefaultPath is $PINGBURST_CONFIG or ~/.config/pingburst/config.yml.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return filepath.Join(configDir(), "config.yml")
}

func Default() Config {
	return Config{
		JSONRPCURL:  NormalizeURL("m"),
		KeypairPath: filepath.Join(configDir(), "id.json"),
		Commitment:  "confirmed",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	var f Config
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.merge(f)
	return c, nil
}

func (c *Config) merge(o Config) {
	if o.JSONRPCURL != "" {
		c.JSONRPCURL = NormalizeURL(o.JSONRPCURL)
	}
	if o.WebsocketURL != "" {
		c.WebsocketURL = o.WebsocketURL
	}
	if o.KeypairPath != "" {
		c.KeypairPath = o.KeypairPath
	}
	if o.Commitment != "" {
		c.Commitment = o.Commitment
	}
	if o.LeaderAddr != "" {
		c.LeaderAddr = o.LeaderAddr
	}
}

// Save writes c as YAML, creating the directory if needed.
func Save(path string, c Config) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ResolvedWebsocketURL is the configured websocket URL, or one derived from
// the RPC URL.
func (c Config) ResolvedWebsocketURL() (string, error) {
	if c.WebsocketURL != "" {
		return c.WebsocketURL, nil
	}
	return WebsocketURL(c.JSONRPCURL)
}

var monikers = map[string]string{
	"m":            "https://api.mainnet-beta.solana.com",
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
	"t":            "https://api.testnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"d":            "https://api.devnet.solana.com",
	"devnet":       "https://api.devnet.solana.com",
	"l":            "http://localhost:8899",
	"localhost":    "http://localhost:8899",
}

// NormalizeURL expands a cluster moniker; anything else is returned as is.
func NormalizeURL(s string) string {
	if u, ok := monikers[s]; ok {
		return u
	}
	return s
}

// WebsocketURL derives the push endpoint from an RPC URL: http becomes ws,
// https becomes wss, and an explicit port is incremented by one.
func WebsocketURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("parse rpc url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("rpc url %q: unsupported scheme %q", rpcURL, u.Scheme)
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("rpc url %q: bad port: %w", rpcURL, err)
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(n+1))
	}
	return u.String(), nil
}
