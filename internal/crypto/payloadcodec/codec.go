// Package payloadcodec encrypts and decrypts landing instruction sets carried in URL payloads.
package payloadcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

// Params
const (
	AlgorithmAESGCM = "AES-GCM"

	DefaultKeyLengthBits  = 256
	DefaultIVLengthBytes  = 12
	DefaultTagLengthBytes = 16

	// MinKeyLength is a local sanity check on the configured key string, not a strength guarantee.
	MinKeyLength = 16

	// DefaultEncryptionKey is used only when nothing is configured. Never use it in production.
	DefaultEncryptionKey = "default-landing-key-change-me-0000"

	KeyDerivationPad  = "pad"
	KeyDerivationHKDF = "hkdf"

	hkdfInfo = "goph-landing payload v1"
	padChar  = '0'
)

// Config holds codec parameters fixed at construction; only the key may change later.
type Config struct {
	Algorithm      string
	KeyLengthBits  int
	IVLengthBytes  int
	TagLengthBytes int
	EncryptionKey  string
	KeyDerivation  string
}

// DefaultConfig returns AES-256-GCM with a 12-byte IV, 16-byte tag and the fallback key.
func DefaultConfig() Config {
	return Config{
		Algorithm:      AlgorithmAESGCM,
		KeyLengthBits:  DefaultKeyLengthBits,
		IVLengthBytes:  DefaultIVLengthBytes,
		TagLengthBytes: DefaultTagLengthBytes,
		EncryptionKey:  DefaultEncryptionKey,
		KeyDerivation:  KeyDerivationPad,
	}
}

// Codec converts between instruction sets and URL-safe encrypted strings.
type Codec struct {
	mu  sync.RWMutex
	cfg Config
	log *zap.Logger

	newBlock func(key []byte) (cipher.Block, error)
}

// New constructs a Codec. Zero-valued fields of cfg fall back to DefaultConfig.
func New(cfg Config, log *zap.Logger) (*Codec, error) {
	def := DefaultConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.KeyLengthBits == 0 {
		cfg.KeyLengthBits = def.KeyLengthBits
	}
	if cfg.IVLengthBytes == 0 {
		cfg.IVLengthBytes = def.IVLengthBytes
	}
	if cfg.TagLengthBytes == 0 {
		cfg.TagLengthBytes = def.TagLengthBytes
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = def.EncryptionKey
	}
	if cfg.KeyDerivation == "" {
		cfg.KeyDerivation = def.KeyDerivation
	}

	if !strings.EqualFold(cfg.Algorithm, AlgorithmAESGCM) {
		return nil, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}
	switch cfg.KeyLengthBits {
	case 128, 192, 256:
	default:
		return nil, fmt.Errorf("unsupported key length %d bits", cfg.KeyLengthBits)
	}
	if cfg.IVLengthBytes != DefaultIVLengthBytes && cfg.TagLengthBytes != DefaultTagLengthBytes {
		return nil, errors.New("non-default IV and tag lengths cannot be combined")
	}
	if cfg.TagLengthBytes < 12 || cfg.TagLengthBytes > 16 {
		return nil, fmt.Errorf("unsupported tag length %d", cfg.TagLengthBytes)
	}
	if cfg.IVLengthBytes <= 0 {
		return nil, fmt.Errorf("unsupported iv length %d", cfg.IVLengthBytes)
	}
	switch cfg.KeyDerivation {
	case KeyDerivationPad, KeyDerivationHKDF:
	default:
		return nil, fmt.Errorf("unsupported key derivation %q", cfg.KeyDerivation)
	}

	if log == nil {
		log = zap.NewNop()
	}
	if cfg.EncryptionKey == DefaultEncryptionKey {
		log.Warn("payload codec uses the built-in fallback key")
	}
	return &Codec{cfg: cfg, log: log, newBlock: aes.NewCipher}, nil
}

// SetEncryptionKey replaces the configured key at runtime.
func (c *Codec) SetEncryptionKey(key string) {
	c.mu.Lock()
	c.cfg.EncryptionKey = key
	c.mu.Unlock()
}

// Config returns a copy of the active configuration.
func (c *Codec) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Decrypt opens an encrypted payload and validates the resulting instruction set.
// A crypto or decode failure is retried once with the alternate normalization;
// if that fails too, the first error is returned, sanitized.
func (c *Codec) Decrypt(payload string) (model.InstructionSet, error) {
	if payload == "" {
		return model.InstructionSet{}, fmt.Errorf("%w: empty payload", errs.ErrInvalidInput)
	}
	cfg := c.Config()
	if err := checkKey(cfg.EncryptionKey); err != nil {
		return model.InstructionSet{}, err
	}

	plain, err := c.open(cfg, normalizePayload(payload))
	if err != nil && retryable(err) {
		c.log.Debug("payload open failed, retrying with alternate normalization")
		if p, rerr := c.open(cfg, normalizePayloadAlt(payload)); rerr == nil {
			plain, err = p, nil
		}
	}
	if err != nil {
		return model.InstructionSet{}, errs.Sanitize(err)
	}

	var raw any
	if err := json.Unmarshal(plain, &raw); err != nil {
		return model.InstructionSet{}, fmt.Errorf("%w: %v", errs.ErrInvalidJSON, err)
	}
	return ValidateInstructionSet(raw)
}

// Encrypt validates raw, then returns base64url(IV || AES-GCM(json)) without padding.
// raw may be a decoded JSON object, a model.InstructionSet or anything that marshals to a JSON object.
func (c *Codec) Encrypt(raw any) (string, error) {
	set, err := ValidateInstructionSet(raw)
	if err != nil {
		return "", err
	}
	cfg := c.Config()
	if err := checkKey(cfg.EncryptionKey); err != nil {
		return "", err
	}
	plain, err := json.Marshal(set)
	if err != nil {
		return "", err
	}
	aead, err := c.newAEAD(cfg)
	if err != nil {
		return "", err
	}
	iv, err := Rand(cfg.IVLengthBytes)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(iv)+len(plain)+aead.Overhead())
	out = append(out, iv...)
	out = append(out, aead.Seal(nil, iv, plain, nil)...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func checkKey(key string) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("%w: must be at least %d characters", errs.ErrInvalidKey, MinKeyLength)
	}
	return nil
}

// open decodes a normalized payload and runs AEAD open over IV || ciphertext+tag.
func (c *Codec) open(cfg Config, normalized string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", errs.ErrMalformedEnvelope, err)
	}
	if minLen := cfg.IVLengthBytes + cfg.TagLengthBytes + 1; len(data) < minLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", errs.ErrMalformedEnvelope, len(data), minLen)
	}
	aead, err := c.newAEAD(cfg)
	if err != nil {
		return nil, err
	}
	iv := data[:cfg.IVLengthBytes]
	ct := data[cfg.IVLengthBytes:]
	plain, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCryptoFailure, err)
	}
	return plain, nil
}

func retryable(err error) bool {
	var corrupt base64.CorruptInputError
	return errors.Is(err, errs.ErrCryptoFailure) || errors.As(err, &corrupt)
}

func (c *Codec) newAEAD(cfg Config) (cipher.AEAD, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.IVLengthBytes != DefaultIVLengthBytes:
		return cipher.NewGCMWithNonceSize(block, cfg.IVLengthBytes)
	case cfg.TagLengthBytes != DefaultTagLengthBytes:
		return cipher.NewGCMWithTagSize(block, cfg.TagLengthBytes)
	default:
		return cipher.NewGCM(block)
	}
}

// deriveKey turns the configured key string into raw AES key bytes.
//
// The "pad" mode right-pads with '0' and truncates. It is NOT a KDF and gives a weak key for
// short secrets; it is kept because every link in circulation was produced this way.
// "hkdf" replaces it once links can be reissued.
func deriveKey(cfg Config) ([]byte, error) {
	n := cfg.KeyLengthBits / 8
	if cfg.KeyDerivation == KeyDerivationHKDF {
		key := make([]byte, n)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.EncryptionKey), nil, []byte(hkdfInfo)), key); err != nil {
			return nil, err
		}
		return key, nil
	}
	key := []byte(cfg.EncryptionKey)
	for len(key) < n {
		key = append(key, padChar)
	}
	return key[:n], nil
}
