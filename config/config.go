package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"supplynet/crypto"
)

type Config struct {
	ListenAddress        string        `toml:"ListenAddress"`
	DataDir              string        `toml:"DataDir"`
	GenesisFile          string        `toml:"GenesisFile"`
	RegistryKeystorePath string        `toml:"RegistryKeystorePath"`
	ReadHeaderTimeout    int           `toml:"ReadHeaderTimeout"`
	ReadTimeout          int           `toml:"ReadTimeout"`
	WriteTimeout         int           `toml:"WriteTimeout"`
	IdleTimeout          int           `toml:"IdleTimeout"`
	ShutdownTimeout      int           `toml:"ShutdownTimeout"`
	AllowedOrigins       []string      `toml:"AllowedOrigins"`
	Auth                 Auth          `toml:"auth"`
	RateLimit            RateLimit     `toml:"rate_limit"`
	Observability        Observability `toml:"observability"`
	Pauses               Pauses        `toml:"pauses"`
}

// PassphraseFunc supplies the registry keystore passphrase.
type PassphraseFunc func() (string, error)

type loadOptions struct {
	passphrase PassphraseFunc
}

// Option customises Load.
type Option func(*loadOptions)

// WithPassphrase sets the passphrase source used when Load has to create the
// registry keystore.
func WithPassphrase(fn PassphraseFunc) Option {
	return func(o *loadOptions) { o.passphrase = fn }
}

func (o *loadOptions) resolvePassphrase() (string, error) {
	if o.passphrase == nil {
		return "", nil
	}
	return o.passphrase()
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration and a freshly generated registry key.
func Load(path string, opts ...Option) (*Config, error) {
	options := &loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh installation.
func Default() *Config {
	return &Config{
		ListenAddress:     ":8080",
		DataDir:           "./supplynet-data",
		ReadHeaderTimeout: 5,
		ReadTimeout:       15,
		WriteTimeout:      15,
		IdleTimeout:       60,
		ShutdownTimeout:   10,
		AllowedOrigins:    []string{},
		Auth: Auth{
			Enabled:             true,
			HMACSecretEnv:       "SUPPLYNET_JWT_SECRET",
			Issuer:              "supplynet",
			AllowAnonymousReads: true,
			ClockSkewSeconds:    30,
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Observability: Observability{
			ServiceName:      "supplynetd",
			Environment:      "local",
			LogLevel:         "info",
			LogMaxSizeMB:     100,
			LogMaxBackups:    5,
			LogMaxAgeDays:    28,
			MetricsEnabled:   true,
			TraceSampleRatio: 0.1,
		},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Observability.ServiceName) == "" {
		c.Observability.ServiceName = "supplynetd"
	}
	if strings.TrimSpace(c.Observability.LogLevel) == "" {
		c.Observability.LogLevel = "info"
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{}
	}
}

// RegistryKey decrypts the registry operator key.
func (c *Config) RegistryKey(passphrase PassphraseFunc) (*crypto.PrivateKey, error) {
	pass := ""
	if passphrase != nil {
		var err error
		if pass, err = passphrase(); err != nil {
			return nil, err
		}
	}
	key, err := crypto.LoadFromKeystore(c.RegistryKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load registry keystore %s: %w", c.RegistryKeystorePath, err)
	}
	return key, nil
}

// JWTSecret resolves the HS256 signing secret.
func (a Auth) JWTSecret() (string, error) {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if value, ok := os.LookupEnv(env); ok && strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	if strings.TrimSpace(a.HMACSecret) != "" {
		return a.HMACSecret, nil
	}
	return "", fmt.Errorf("auth: no HMAC secret configured")
}

func ensureKeystore(configPath string, cfg *Config, options *loadOptions) error {
	keystorePath := cfg.RegistryKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		if err := generateKeystore(keystorePath, options); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.RegistryKeystorePath != keystorePath {
		cfg.RegistryKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func generateKeystore(path string, options *loadOptions) error {
	pass, err := options.resolvePassphrase()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return crypto.SaveToKeystore(path, key, pass)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options *loadOptions) (*Config, error) {
	keystorePath := defaultKeystorePath(path)
	if err := generateKeystore(keystorePath, options); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.RegistryKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "registry.keystore")
}
