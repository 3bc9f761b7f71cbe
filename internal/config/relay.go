package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/teleterm/internal/wire"
)

// OauthProviderConfig is one entry under oauth.<provider> in relay.yaml.
type OauthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	RedirectURL  string   `yaml:"redirect_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// TLSConfig points at the PKCS#12 identity the relay terminates TLS with.
// Left zero-valued, the relay serves plaintext (for deployments that
// terminate TLS upstream, or local testing).
type TLSConfig struct {
	IdentityFile string `yaml:"identity_file,omitempty"`
	Password     string `yaml:"password,omitempty"`
}

// RelayConfig is the full on-disk configuration surface for teleterm-relay,
// loaded from relay.yaml.
type RelayConfig struct {
	ListenAddress string `yaml:"listen_address,omitempty"`

	ReadTimeoutSecs   int `yaml:"read_timeout_secs,omitempty"`
	OutboundQueueSize int `yaml:"outbound_queue_size,omitempty"`

	RateLimitEvents     int `yaml:"rate_limit_events,omitempty"`
	RateLimitWindowSecs int `yaml:"rate_limit_window_secs,omitempty"`

	TLS TLSConfig `yaml:"tls,omitempty"`

	AllowedLoginMethods []string                       `yaml:"allowed_login_methods,omitempty"`
	Oauth               map[string]OauthProviderConfig `yaml:"oauth,omitempty"`

	// UID and GID, if set, are switched to after the listener has bound its
	// socket (and, if configured, the TLS identity file has been read) so
	// the relay doesn't keep running with whatever privilege the bind
	// required.
	UID *int `yaml:"uid,omitempty"`
	GID *int `yaml:"gid,omitempty"`

	DataDir string `yaml:"data_dir,omitempty"`

	MaxFrameLen uint32 `yaml:"max_frame_len,omitempty"`
	MinFrameLen uint32 `yaml:"min_frame_len,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`
}

// DefaultRelayConfig mirrors the orchestrator and wire package defaults so a
// missing relay.yaml still produces a sane, internally consistent config.
func DefaultRelayConfig() *RelayConfig {
	lim := wire.DefaultLimits()
	return &RelayConfig{
		ListenAddress:       "127.0.0.1:4144",
		ReadTimeoutSecs:     120,
		OutboundQueueSize:   256,
		RateLimitEvents:     300,
		RateLimitWindowSecs: 60,
		AllowedLoginMethods: []string{"plain", "recurse_center"},
		DataDir:             "",
		MaxFrameLen:         lim.MaxFrameLen,
		MinFrameLen:         lim.MinFrameLen,
		LogLevel:            "info",
	}
}

// FrameLimits projects the config's frame-size bounds into a wire.Limits.
func (c *RelayConfig) FrameLimits() wire.Limits {
	lim := wire.DefaultLimits()
	if c.MaxFrameLen > 0 {
		lim.MaxFrameLen = c.MaxFrameLen
	}
	if c.MinFrameLen > 0 {
		lim.MinFrameLen = c.MinFrameLen
	}
	return lim
}

// AllowsLogin reports whether method ("plain", or an oauth provider name
// such as "recurse_center") is permitted by allowed_login_methods.
func (c *RelayConfig) AllowsLogin(method string) bool {
	for _, m := range c.AllowedLoginMethods {
		if m == method {
			return true
		}
	}
	return false
}

// AllowsOauth reports whether any oauth provider login is permitted by
// allowed_login_methods (anything other than "plain" counts as oauth).
func (c *RelayConfig) AllowsOauth() bool {
	for _, m := range c.AllowedLoginMethods {
		if m != "plain" {
			return true
		}
	}
	return false
}

// LoadRelayConfig reads relay.yaml from dir, layering it over
// DefaultRelayConfig. A missing file is not an error.
func LoadRelayConfig(dir string) (*RelayConfig, error) {
	cfg := DefaultRelayConfig()
	path := filepath.Join(dir, "relay.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveRelayConfig writes relay.yaml to dir, creating dir if needed.
func SaveRelayConfig(dir string, cfg *RelayConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "relay.yaml"), data, 0644)
}
