package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	toml "github.com/pelletier/go-toml"
	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/and161185/goph-landing/internal/crypto"
	"github.com/and161185/goph-landing/internal/model"
)

const testKey = "cli-test-key-0123456789abcdef"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEncryptDecrypt_Flags(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "encrypt", "--key", testKey,
		"--click-url", "https://shop.test/p/1", "--auto-click", "--auto-click-delay", "1500")
	require.NoError(t, err)
	payload := strings.TrimSpace(out)
	require.NotEmpty(t, payload)

	out, err = execute(t, "", "decrypt", "--key", testKey, payload)
	require.NoError(t, err)

	var set model.InstructionSet
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	require.Equal(t, "https://shop.test/p/1", set.Click())
	require.True(t, set.AutoClick)
	require.NotNil(t, set.AutoClickDelay)
	require.Equal(t, 1500.0, *set.AutoClickDelay)
	require.Nil(t, set.ImageURL)
}

func TestEncrypt_FileAndLink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "set.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"deeplink_url":"shop://p/1","deeplink_priority":"yes"}`), 0o600))

	out, err := execute(t, "", "encrypt", "--key", testKey, "-f", path, "--base-url", "https://land.test/")
	require.NoError(t, err)
	link := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(link, "https://land.test/?payload="), link)

	out, err = execute(t, "", "decrypt", "--key", testKey, link)
	require.NoError(t, err)
	var set model.InstructionSet
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	require.Equal(t, "shop://p/1", set.Deeplink())
	require.True(t, set.DeeplinkPriority)
}

func TestEncrypt_Errors(t *testing.T) {
	t.Setenv("LANDING_ENCRYPTION_KEY", "")

	_, err := execute(t, "", "encrypt", "--click-url", "https://x.test")
	require.ErrorContains(t, err, "no key")

	_, err = execute(t, "", "encrypt", "--key", testKey, "--click-url", "not a url")
	require.Error(t, err)

	_, err = execute(t, "", "encrypt", "--key", testKey, "--key-derivation", "scrypt")
	require.Error(t, err)
}

func TestEncrypt_KeyFromEnv(t *testing.T) {
	t.Setenv("LANDING_ENCRYPTION_KEY", testKey)

	out, err := execute(t, "", "encrypt", "--click-url", "https://x.test")
	require.NoError(t, err)
	_, err = execute(t, "", "decrypt", strings.TrimSpace(out))
	require.NoError(t, err)
}

func TestDecrypt_WrongKeyIsSanitized(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "encrypt", "--key", testKey, "--click-url", "https://x.test")
	require.NoError(t, err)

	_, err = execute(t, "", "decrypt", "--key", "another-key-0123456789", strings.TrimSpace(out))
	require.EqualError(t, err, "Failed to process encrypted payload")
}

func TestPayloadArg(t *testing.T) {
	t.Parallel()

	p, err := payloadArg("abc_-")
	require.NoError(t, err)
	require.Equal(t, "abc_-", p)

	p, err = payloadArg("https://land.test/?payload=xyz&utm=1")
	require.NoError(t, err)
	require.Equal(t, "xyz", p)

	_, err = payloadArg("https://land.test/?other=1")
	require.Error(t, err)
}

func TestHashSecret_Verifies(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "open sesame\n", "hash-secret")
	require.NoError(t, err)

	tree, err := toml.Load(out)
	require.NoError(t, err)
	hash, salt, err := pkgcrypto.DecodeSecretHash(
		tree.Get("admin.secret_hash").(string),
		tree.Get("admin.secret_salt").(string),
	)
	require.NoError(t, err)
	require.True(t, pkgcrypto.VerifySecret([]byte("open sesame"), salt, hash))

	_, err = execute(t, "", "hash-secret")
	require.Error(t, err)
}
