package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/config"
	pkgcrypto "github.com/and161185/goph-landing/internal/crypto"
	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
)

// ------- instruction set input -------

// instructionFlags collect an instruction set from flags or a JSON file.
type instructionFlags struct {
	file     string
	image    string
	click    string
	deeplink string
	auto     bool
	priority bool
	delay    float64
}

func (f *instructionFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "file", "f", "", "instruction set JSON ('-'=stdin); overrides the field flags")
	fs.StringVar(&f.image, "image-url", "", "image_url")
	fs.StringVar(&f.click, "click-url", "", "click_url")
	fs.StringVar(&f.deeplink, "deeplink-url", "", "deeplink_url")
	fs.BoolVar(&f.auto, "auto-click", false, "auto_click")
	fs.BoolVar(&f.priority, "deeplink-priority", false, "deeplink_priority")
	fs.Float64Var(&f.delay, "auto-click-delay", -1, "auto_click_delay in ms (negative: unset)")
}

// raw returns the set as decoded JSON, the shape ValidateInstructionSet expects.
func (f *instructionFlags) raw() (any, error) {
	if f.file != "" {
		b, err := readAll(f.file)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("instruction set: %w", err)
		}
		return v, nil
	}
	m := map[string]any{
		"auto_click":        f.auto,
		"deeplink_priority": f.priority,
	}
	for k, v := range map[string]string{"image_url": f.image, "click_url": f.click, "deeplink_url": f.deeplink} {
		if v != "" {
			m[k] = v
		}
	}
	if f.delay >= 0 {
		m["auto_click_delay"] = f.delay
	}
	return m, nil
}

// ------- local codec -------

type keyFlags struct {
	key string
	kdf string
}

func (k *keyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&k.key, "key", "", "encryption key (default $"+config.EnvEncryptionKey+")")
	cmd.Flags().StringVar(&k.kdf, "key-derivation", payloadcodec.KeyDerivationPad, "pad or hkdf")
}

func (k *keyFlags) codec(log *zap.Logger) (*payloadcodec.Codec, error) {
	cfg := payloadcodec.DefaultConfig()
	cfg.KeyDerivation = k.kdf
	switch {
	case k.key != "":
		cfg.EncryptionKey = k.key
	case os.Getenv(config.EnvEncryptionKey) != "":
		cfg.EncryptionKey = os.Getenv(config.EnvEncryptionKey)
	default:
		return nil, errors.New("no key: pass --key or set $" + config.EnvEncryptionKey)
	}
	return payloadcodec.New(cfg, log)
}

// payloadArg accepts a bare payload or a landing URL carrying one.
func payloadArg(arg string) (string, error) {
	if strings.Contains(arg, "://") || strings.Contains(arg, "?") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", err
		}
		p, ok := payloadcodec.ExtractPayload(u)
		if !ok {
			return "", fmt.Errorf("no %s parameter in %s", payloadcodec.PayloadParam, arg)
		}
		return p, nil
	}
	return arg, nil
}

func newEncryptCmd(g *globalOpts) *cobra.Command {
	var (
		in      instructionFlags
		keys    keyFlags
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an instruction set locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := keys.codec(g.logger())
			if err != nil {
				return err
			}
			raw, err := in.raw()
			if err != nil {
				return err
			}
			payload, err := codec.Encrypt(raw)
			if err != nil {
				return err
			}
			if baseURL != "" {
				q := url.Values{payloadcodec.PayloadParam: {payload}}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(baseURL, "/")+"/?"+q.Encode())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
	in.bind(cmd)
	keys.bind(cmd)
	cmd.Flags().StringVar(&baseURL, "base-url", "", "print a landing link on this origin instead of the bare payload")
	return cmd
}

func newDecryptCmd(g *globalOpts) *cobra.Command {
	var keys keyFlags
	cmd := &cobra.Command{
		Use:   "decrypt <payload|url>",
		Short: "Decrypt and validate a payload locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := keys.codec(g.logger())
			if err != nil {
				return err
			}
			p, err := payloadArg(args[0])
			if err != nil {
				return err
			}
			set, err := codec.Decrypt(p)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), set)
			return nil
		},
	}
	keys.bind(cmd)
	return cmd
}

// ------- admin secret -------

func newHashSecretCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash an admin secret for the server config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("empty secret")
			}
			hash, salt, err := pkgcrypto.NewSecretHash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[admin]\nsecret_hash = %q\nsecret_salt = %q\n", hash, salt)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "secret (default: first line of stdin)")
	return cmd
}
