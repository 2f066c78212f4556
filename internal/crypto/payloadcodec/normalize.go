package payloadcodec

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/and161185/goph-landing/internal/errs"
)

// PayloadParam is the URL query parameter carrying the envelope.
const PayloadParam = "payload"

// MinPayloadLength is the shortest payload accepted before any decoding.
const MinPayloadLength = 16

// Spaces are allowed: query decoding turns '+' into ' ' and normalization turns it back.
var payloadAlphabet = regexp.MustCompile(`^[A-Za-z0-9+/=_\- ]+$`)

var urlSafeToStd = strings.NewReplacer("-", "+", "_", "/")

// ExtractPayload returns the raw payload query value, if any.
func ExtractPayload(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	v := u.Query().Get(PayloadParam)
	return v, v != ""
}

// CheckPayloadSyntax rejects values that cannot be an envelope without decoding them.
func CheckPayloadSyntax(p string) error {
	if len(p) < MinPayloadLength {
		return fmt.Errorf("%w: payload shorter than %d characters", errs.ErrInvalidInput, MinPayloadLength)
	}
	if !payloadAlphabet.MatchString(p) {
		return fmt.Errorf("%w: payload contains characters outside the base64 alphabet", errs.ErrInvalidInput)
	}
	return nil
}

// normalizePayload: spaces to '+', URL-safe to standard alphabet, then pad.
func normalizePayload(s string) string {
	s = strings.ReplaceAll(s, " ", "+")
	s = urlSafeToStd.Replace(s)
	return padBase64(s)
}

// normalizePayloadAlt tolerates stray whitespace and wrong padding:
// trim, drop existing '=', spaces to '+', pad, and only then convert the URL-safe alphabet.
func normalizePayloadAlt(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "=")
	s = strings.ReplaceAll(s, " ", "+")
	s = padBase64(s)
	return urlSafeToStd.Replace(s)
}

func padBase64(s string) string {
	if r := len(s) % 4; r != 0 {
		s += strings.Repeat("=", 4-r)
	}
	return s
}
