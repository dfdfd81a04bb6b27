package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout mirrors the conventional 3.05s connect timeout.
	DefaultConnectTimeout = 3050 * time.Millisecond
	// DefaultRequestTimeout bounds a whole exchange including the read.
	DefaultRequestTimeout = 4 * time.Second
	// DefaultTokenExpiration is the lifetime requested during a login exchange.
	DefaultTokenExpiration = 60 * time.Minute
	// DefaultTokenMargin is the minimum remaining lifetime a cached token must
	// retain at the moment it is returned.
	DefaultTokenMargin = 10 * time.Minute
)

// TimeoutConfig is the connect/read timeout pair for outgoing calls. A zero
// value falls back to the default, a negative value disables the bound.
type TimeoutConfig struct {
	Connect time.Duration `koanf:"connect" mapstructure:"connect"`
	Request time.Duration `koanf:"request" mapstructure:"request"`
}

// WebAdaptorConfig names the reverse proxy directories fronting each service.
// A non-empty value selects the adaptor topology for that service. The event
// service never goes through an adaptor.
type WebAdaptorConfig struct {
	Portal string `koanf:"portal" mapstructure:"portal"`
	Server string `koanf:"server" mapstructure:"server"`
}

func (w WebAdaptorConfig) IsZero() bool {
	return strings.TrimSpace(w.Portal) == "" && strings.TrimSpace(w.Server) == ""
}

type Config struct {
	// Server is the root URL excluding any directories, e.g. https://example.com.
	Server   string `koanf:"server" mapstructure:"server"`
	Username string `koanf:"username" mapstructure:"username"`
	Password string `koanf:"password" mapstructure:"password"`
	// PublicHost is the host the servers advertise publicly, used as the Host
	// header when fetching server info over a direct connection.
	PublicHost  string           `koanf:"public_host" mapstructure:"public_host"`
	WebAdaptors WebAdaptorConfig `koanf:"web_adaptors" mapstructure:"web_adaptors"`
	// SkipSSLVerify disables certificate verification and with it the refusal
	// to send credentials over plain http.
	SkipSSLVerify   bool          `koanf:"skip_ssl_verify" mapstructure:"skip_ssl_verify"`
	Timeout         TimeoutConfig `koanf:"timeout" mapstructure:"timeout"`
	TokenExpiration time.Duration `koanf:"token_expiration" mapstructure:"token_expiration"`
}

func DefaultConfig() Config {
	return Config{
		Timeout: TimeoutConfig{
			Connect: DefaultConnectTimeout,
			Request: DefaultRequestTimeout,
		},
		TokenExpiration: DefaultTokenExpiration,
	}
}

func (c Config) Validate() error {
	server := strings.TrimSpace(c.Server)
	if server == "" {
		return fmt.Errorf("core: server is required")
	}
	parsed, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("core: server url is invalid: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: server url %q must include a scheme and host", server)
	}
	if c.Username == "" && c.Password != "" {
		return fmt.Errorf("core: password supplied without a username")
	}
	if c.Username != "" && c.Password == "" {
		return fmt.Errorf("core: username supplied without a password")
	}
	return nil
}

// Credential returns the configured credential, zero when anonymous.
func (c Config) Credential() Credential {
	return Credential{Username: c.Username, Password: c.Password}
}

// VerifySSL reports whether certificate verification is in effect.
func (c Config) VerifySSL() bool {
	return !c.SkipSSLVerify
}
