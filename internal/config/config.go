// Package config loads server settings: defaults, then an optional TOML file,
// then environment overrides for secrets, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml"

	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
	"github.com/and161185/goph-landing/internal/limiter"
)

// ConfFileEnvVar names the config file when -config is not given.
const ConfFileEnvVar = "LANDING_CONFIG"

// Secret overrides read from the environment.
const (
	EnvEncryptionKey = "LANDING_ENCRYPTION_KEY"
	EnvJWTKey        = "LANDING_JWT_KEY"
	EnvDSN           = "LANDING_DSN"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	BaseURL  string

	// TLS for the admin gRPC listener; both empty means plaintext.
	TLSCert string
	TLSKey  string

	// DSN is optional: without it the limiter is in-memory and analytics are only logged.
	DSN    string
	DBWait time.Duration

	EncryptionKey string
	KeyDerivation string

	AdminSecretHash string // hex Argon2id
	AdminSecretSalt string // hex
	JWTKey          string
	TokenTTL        time.Duration

	Limiter limiter.Settings

	Dev bool
}

// fileConfig mirrors the TOML layout. Durations are strings ("15m").
type fileConfig struct {
	HTTPAddr string `toml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr"`
	BaseURL  string `toml:"base_url"`
	Dev      bool   `toml:"dev"`

	Database struct {
		DSN  string `toml:"dsn"`
		Wait string `toml:"wait"`
	} `toml:"database"`

	Payload struct {
		EncryptionKey string `toml:"encryption_key"`
		KeyDerivation string `toml:"key_derivation"`
	} `toml:"payload"`

	Admin struct {
		SecretHash string `toml:"secret_hash"`
		SecretSalt string `toml:"secret_salt"`
		JWTKey     string `toml:"jwt_key"`
		TokenTTL   string `toml:"token_ttl"`
		TLSCert    string `toml:"tls_cert"`
		TLSKey     string `toml:"tls_key"`
	} `toml:"admin"`

	Limiter struct {
		Window   string `toml:"window"`
		MaxFails int    `toml:"max_fails"`
		BlockFor string `toml:"block_for"`
	} `toml:"limiter"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":9090",
		BaseURL:       "http://localhost:8080",
		DBWait:        30 * time.Second,
		EncryptionKey: payloadcodec.DefaultEncryptionKey,
		KeyDerivation: payloadcodec.KeyDerivationPad,
		TokenTTL:      15 * time.Minute,
		Limiter:       limiter.DefaultSettings(),
	}
}

// Load resolves configuration for the given command-line arguments.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	path, err := configPath(args, getenv)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		defer f.Close()
		if err := cfg.applyTOML(f); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)

	fs := cfg.flagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// configPath scans args for -config ahead of the full flag parse.
func configPath(args []string, getenv func(string) string) (string, error) {
	for i, a := range args {
		if a == "--" {
			break
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "config" {
			continue
		}
		if hasVal {
			return val, nil
		}
		if i+1 < len(args) {
			return args[i+1], nil
		}
		return "", errors.New("flag needs an argument: -config")
	}
	return getenv(ConfFileEnvVar), nil
}

func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("landing-server", flag.ContinueOnError)
	fs.String("config", "", "TOML config file (or $"+ConfFileEnvVar+")")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "landing HTTP listen address")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "admin gRPC listen address (empty disables)")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "public origin used in minted links")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "admin gRPC TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "admin gRPC TLS private key (PEM)")
	fs.StringVar(&c.DSN, "dsn", c.DSN, "PostgreSQL DSN (empty: in-memory limiter, log-only analytics)")
	fs.DurationVar(&c.DBWait, "db-wait", c.DBWait, "how long to wait for the database at startup")
	fs.StringVar(&c.EncryptionKey, "encryption-key", c.EncryptionKey, "payload encryption key")
	fs.StringVar(&c.KeyDerivation, "key-derivation", c.KeyDerivation, "payload key derivation: pad or hkdf")
	fs.StringVar(&c.AdminSecretHash, "admin-secret-hash", c.AdminSecretHash, "hex Argon2id hash of the admin secret")
	fs.StringVar(&c.AdminSecretSalt, "admin-secret-salt", c.AdminSecretSalt, "hex salt of the admin secret")
	fs.StringVar(&c.JWTKey, "jwt-key", c.JWTKey, "HS256 signing key for admin tokens")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "admin token TTL")
	fs.DurationVar(&c.Limiter.Window, "limit-window", c.Limiter.Window, "failure counting window")
	fs.IntVar(&c.Limiter.MaxFails, "limit-max-fails", c.Limiter.MaxFails, "failures before a block")
	fs.DurationVar(&c.Limiter.BlockFor, "limit-block", c.Limiter.BlockFor, "block duration")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "development logging and gRPC reflection")
	return fs
}

func (c *Config) applyTOML(r io.Reader) error {
	var fc fileConfig
	if err := toml.NewDecoder(r).Decode(&fc); err != nil {
		return err
	}
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v, name string) error {
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
		return nil
	}

	setStr(&c.HTTPAddr, fc.HTTPAddr)
	setStr(&c.GRPCAddr, fc.GRPCAddr)
	setStr(&c.BaseURL, fc.BaseURL)
	c.Dev = c.Dev || fc.Dev
	setStr(&c.DSN, fc.Database.DSN)
	setStr(&c.EncryptionKey, fc.Payload.EncryptionKey)
	setStr(&c.KeyDerivation, fc.Payload.KeyDerivation)
	setStr(&c.AdminSecretHash, fc.Admin.SecretHash)
	setStr(&c.AdminSecretSalt, fc.Admin.SecretSalt)
	setStr(&c.JWTKey, fc.Admin.JWTKey)
	setStr(&c.TLSCert, fc.Admin.TLSCert)
	setStr(&c.TLSKey, fc.Admin.TLSKey)
	if fc.Limiter.MaxFails > 0 {
		c.Limiter.MaxFails = fc.Limiter.MaxFails
	}
	return errors.Join(
		setDur(&c.DBWait, fc.Database.Wait, "database.wait"),
		setDur(&c.TokenTTL, fc.Admin.TokenTTL, "admin.token_ttl"),
		setDur(&c.Limiter.Window, fc.Limiter.Window, "limiter.window"),
		setDur(&c.Limiter.BlockFor, fc.Limiter.BlockFor, "limiter.block_for"),
	)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvEncryptionKey); v != "" {
		c.EncryptionKey = v
	}
	if v := getenv(EnvJWTKey); v != "" {
		c.JWTKey = v
	}
	if v := getenv(EnvDSN); v != "" {
		c.DSN = v
	}
}

// AdminEnabled reports whether admin login is configured.
func (c Config) AdminEnabled() bool { return c.AdminSecretHash != "" }

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http-addr is required")
	}
	switch c.KeyDerivation {
	case payloadcodec.KeyDerivationPad, payloadcodec.KeyDerivationHKDF:
	default:
		return fmt.Errorf("key-derivation: unknown mode %q", c.KeyDerivation)
	}
	if c.AdminEnabled() {
		if c.AdminSecretSalt == "" {
			return errors.New("admin-secret-salt is required with admin-secret-hash")
		}
		if c.JWTKey == "" {
			return errors.New("jwt-key is required when admin login is enabled")
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token-ttl must be positive")
	}
	return nil
}

// Warnings lists insecure but accepted settings.
func (c Config) Warnings() []string {
	var w []string
	if c.EncryptionKey == payloadcodec.DefaultEncryptionKey {
		w = append(w, "using the built-in fallback encryption key")
	}
	if len(c.EncryptionKey) < payloadcodec.MinKeyLength {
		w = append(w, fmt.Sprintf("encryption key shorter than %d characters; decrypts will fail", payloadcodec.MinKeyLength))
	}
	if c.AdminEnabled() && len(c.JWTKey) < 32 {
		w = append(w, "jwt-key shorter than 32 bytes")
	}
	if c.AdminEnabled() && c.GRPCAddr != "" && c.TLSCert == "" {
		w = append(w, "admin gRPC listener without TLS")
	}
	return w
}

// CodecConfig maps settings onto the payload codec.
func (c Config) CodecConfig() payloadcodec.Config {
	pc := payloadcodec.DefaultConfig()
	pc.EncryptionKey = c.EncryptionKey
	pc.KeyDerivation = c.KeyDerivation
	return pc
}
