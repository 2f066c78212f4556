// Package convert maps domain values to and from protobuf well-known types.
package convert

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	model "github.com/and161185/goph-landing/internal/model"
)

// --- helpers ---

func ts(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

func strOrNull(p *string) *structpb.Value {
	if p == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(*p)
}

// --- InstructionSet ---

// ToProtoInstructionSet renders all six fields; absent ones are null.
func ToProtoInstructionSet(s model.InstructionSet) *structpb.Struct {
	delay := structpb.NewNullValue()
	if s.AutoClickDelay != nil {
		delay = structpb.NewNumberValue(*s.AutoClickDelay)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"image_url":         strOrNull(s.ImageURL),
		"click_url":         strOrNull(s.ClickURL),
		"deeplink_url":      strOrNull(s.DeeplinkURL),
		"auto_click":        structpb.NewBoolValue(s.AutoClick),
		"deeplink_priority": structpb.NewBoolValue(s.DeeplinkPriority),
		"auto_click_delay":  delay,
	}}
}

// FromProtoRaw returns the struct as a plain JSON-like map for validation.
// Coercion and checks are left to payloadcodec.ValidateInstructionSet.
func FromProtoRaw(in *structpb.Struct) (map[string]any, error) {
	if in == nil {
		return nil, fmt.Errorf("nil instruction set")
	}
	return in.AsMap(), nil
}

// --- Events ---

// ToProtoEvent renders an analytics row.
func ToProtoEvent(e model.Event) *structpb.Struct {
	f := map[string]*structpb.Value{
		"id":                structpb.NewStringValue(e.ID.String()),
		"kind":              structpb.NewStringValue(string(e.Kind)),
		"action_type":       structpb.NewStringValue(e.ActionType),
		"target_url":        structpb.NewStringValue(e.TargetURL),
		"is_deeplink":       structpb.NewBoolValue(e.IsDeeplink),
		"has_deeplink":      structpb.NewBoolValue(e.HasDeeplink),
		"has_click_url":     structpb.NewBoolValue(e.HasClickURL),
		"deeplink_priority": structpb.NewBoolValue(e.DeeplinkPriority),
		"label":             structpb.NewStringValue(e.Label),
		"message":           structpb.NewStringValue(e.Message),
	}
	if t := ts(e.CreatedAt); t != nil {
		f["created_at"] = structpb.NewStringValue(t.AsTime().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: f}
}

// ToProtoEvents renders a list of events.
func ToProtoEvents(evs []model.Event) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(evs))}
	for _, e := range evs {
		out.Values = append(out.Values, structpb.NewStructValue(ToProtoEvent(e)))
	}
	return out
}

// ToProtoCounts renders counts keyed "kind/action_type".
func ToProtoCounts(cs []model.EventCount) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(cs))}
	for _, c := range cs {
		key := string(c.Kind)
		if c.ActionType != "" {
			key += "/" + c.ActionType
		}
		out.Fields[key] = structpb.NewNumberValue(float64(c.Count))
	}
	return out
}

// FromProtoEventQuery reads {"since": "1h", "limit": 50}. Missing fields keep defaults.
func FromProtoEventQuery(in *structpb.Struct, defSince time.Duration, defLimit int) (time.Duration, int, error) {
	since, limit := defSince, defLimit
	if in == nil {
		return since, limit, nil
	}
	if v, ok := in.GetFields()["since"]; ok {
		d, err := time.ParseDuration(v.GetStringValue())
		if err != nil {
			return 0, 0, fmt.Errorf("invalid since: %w", err)
		}
		if d <= 0 {
			return 0, 0, fmt.Errorf("invalid since: must be positive")
		}
		since = d
	}
	if v, ok := in.GetFields()["limit"]; ok {
		n := v.GetNumberValue()
		if n < 1 || n != float64(int(n)) {
			return 0, 0, fmt.Errorf("invalid limit: %v", n)
		}
		limit = int(n)
	}
	return since, limit, nil
}
