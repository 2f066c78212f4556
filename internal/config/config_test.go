package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "landing.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sampleTOML = `
http_addr = ":8181"
base_url = "https://land.example"

[database]
dsn = "postgres://file/db"
wait = "5s"

[payload]
encryption_key = "file-key-0123456789abcdef"
key_derivation = "hkdf"

[admin]
secret_hash = "aa"
secret_salt = "bb"
jwt_key = "file-jwt-key"
token_ttl = "1h"

[limiter]
window = "1m"
max_fails = 3
block_for = "2m"
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, noEnv)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.False(t, cfg.AdminEnabled())
	require.Contains(t, cfg.Warnings(), "using the built-in fallback encryption key")
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	path := writeFile(t, sampleTOML)
	env := map[string]string{EnvDSN: "postgres://env/db"}

	cfg, err := Load([]string{"-config", path, "-http-addr", ":9999", "-limit-max-fails=7"}, func(k string) string { return env[k] })
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.HTTPAddr, "flag beats file")
	require.Equal(t, ":9090", cfg.GRPCAddr, "default kept when nothing overrides")
	require.Equal(t, "https://land.example", cfg.BaseURL)
	require.Equal(t, "postgres://env/db", cfg.DSN, "env beats file")
	require.Equal(t, 5*time.Second, cfg.DBWait)
	require.Equal(t, payloadcodec.KeyDerivationHKDF, cfg.KeyDerivation)
	require.Equal(t, time.Hour, cfg.TokenTTL)
	require.Equal(t, time.Minute, cfg.Limiter.Window)
	require.Equal(t, 7, cfg.Limiter.MaxFails)
	require.Equal(t, 2*time.Minute, cfg.Limiter.BlockFor)
	require.True(t, cfg.AdminEnabled())

	pc := cfg.CodecConfig()
	require.Equal(t, "file-key-0123456789abcdef", pc.EncryptionKey)
	require.Equal(t, payloadcodec.KeyDerivationHKDF, pc.KeyDerivation)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeFile(t, `http_addr = ":7070"`)
	cfg, err := Load([]string{"-dsn", "postgres://flag/db"}, func(k string) string {
		if k == ConfFileEnvVar {
			return path
		}
		return ""
	})
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr)
	require.Equal(t, "postgres://flag/db", cfg.DSN)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")}, noEnv)
	require.Error(t, err)

	_, err = Load([]string{"-config=" + writeFile(t, "[limiter]\nwindow = \"soon\"\n")}, noEnv)
	require.ErrorContains(t, err, "limiter.window")

	_, err = Load([]string{"-config", writeFile(t, "not = [valid")}, noEnv)
	require.Error(t, err)

	_, err = Load([]string{"-no-such-flag"}, noEnv)
	require.Error(t, err)

	_, err = Load([]string{"-config"}, noEnv)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"derivation":   func(c *Config) { c.KeyDerivation = "scrypt" },
		"admin salt":   func(c *Config) { c.AdminSecretHash = "aa" },
		"admin jwt":    func(c *Config) { c.AdminSecretHash, c.AdminSecretSalt = "aa", "bb" },
		"ttl":          func(c *Config) { c.TokenTTL = 0 },
		"missing http": func(c *Config) { c.HTTPAddr = "" },
		"tls half":     func(c *Config) { c.TLSCert = "cert.pem" },
	}
	for name, mut := range cases {
		c := Default()
		mut(&c)
		require.Error(t, c.Validate(), name)
	}
}

func TestWarnings_ShortKeys(t *testing.T) {
	c := Default()
	c.EncryptionKey = "short"
	c.AdminSecretHash, c.AdminSecretSalt, c.JWTKey = "aa", "bb", "tiny"
	w := c.Warnings()
	require.Len(t, w, 3)
	require.Contains(t, w, "admin gRPC listener without TLS")

	c.TLSCert, c.TLSKey = "cert.pem", "key.pem"
	require.Len(t, c.Warnings(), 2)
}
