package payloadcodec

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

// ValidateInstructionSet checks a raw instruction object and returns the normalized InstructionSet.
// Rules:
// - raw must be a non-null JSON object
// - image_url, click_url: optional; if present, strings parsing as absolute URLs
// - deeplink_url: optional; if present, a string (scheme links are not URL-checked)
// - auto_click, deeplink_priority: truthiness, never rejected
// - auto_click_delay: optional; numeric coercion, must be finite, >= 0 and <= model.MaxAutoClickDelay
//
// JSON null counts as absent for every field.
//
// click_url is optional here although older payload docs call it required: image-only
// instruction sets are accepted, and routing treats a missing click_url as "nothing to open".
func ValidateInstructionSet(raw any) (model.InstructionSet, error) {
	obj, err := toObject(raw)
	if err != nil {
		return model.InstructionSet{}, err
	}

	var out model.InstructionSet

	if out.ImageURL, err = urlField(obj, "image_url"); err != nil {
		return model.InstructionSet{}, err
	}
	if out.ClickURL, err = urlField(obj, "click_url"); err != nil {
		return model.InstructionSet{}, err
	}
	if v, ok := present(obj, "deeplink_url"); ok {
		s, isStr := v.(string)
		if !isStr {
			return model.InstructionSet{}, fmt.Errorf("%w: deeplink_url must be a string", errs.ErrValidation)
		}
		out.DeeplinkURL = &s
	}

	out.AutoClick = truthy(obj["auto_click"])
	out.DeeplinkPriority = truthy(obj["deeplink_priority"])

	if v, ok := present(obj, "auto_click_delay"); ok {
		d := toNumber(v)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return model.InstructionSet{}, fmt.Errorf("%w: auto_click_delay must be a non-negative number", errs.ErrValidation)
		}
		if d > model.MaxAutoClickDelay {
			return model.InstructionSet{}, fmt.Errorf("%w: auto_click_delay exceeds %d ms", errs.ErrValidation, model.MaxAutoClickDelay)
		}
		out.AutoClickDelay = &d
	}
	return out, nil
}

func toObject(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: instruction set must be an object", errs.ErrValidation)
	case map[string]any:
		if v == nil {
			return nil, fmt.Errorf("%w: instruction set must be an object", errs.ErrValidation)
		}
		return v, nil
	case *model.InstructionSet:
		if v == nil {
			return nil, fmt.Errorf("%w: instruction set must be an object", errs.ErrValidation)
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: instruction set must be an object", errs.ErrValidation)
	}
	return obj, nil
}

func present(obj map[string]any, key string) (any, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func urlField(obj map[string]any, key string) (*string, error) {
	v, ok := present(obj, key)
	if !ok {
		return nil, nil
	}
	s, isStr := v.(string)
	if !isStr || !isAbsoluteURL(s) {
		return nil, fmt.Errorf("%w: %s must be a valid URL", errs.ErrValidation, key)
	}
	return &s, nil
}

// isAbsoluteURL approximates WHATWG URL parsing: a scheme is required, and
// hierarchical web schemes also need a host.
func isAbsoluteURL(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss", "ftp":
		return u.Host != ""
	}
	return true
}

// truthy follows JavaScript truthiness for JSON values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// toNumber follows JavaScript Number() coercion for JSON values.
func toNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case []any:
		if len(x) == 0 {
			return 0
		}
		if len(x) == 1 {
			switch x[0].(type) {
			case float64, string:
				return toNumber(x[0])
			}
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}
