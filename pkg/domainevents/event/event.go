package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

// Event is an immutable record that something of interest happened.
// It carries a name, a JSON payload, and a creation timestamp in
// milliseconds since the Unix epoch.
//
// The payload is held as canonical JSON bytes that are never handed out,
// so nothing a caller does to a value obtained from Payload can change
// the event.
type Event struct {
	name      string
	payload   []byte
	createdAt int64
}

// nullPayload is the stored form of an absent payload. It is never
// returned directly.
var nullPayload = []byte("null")

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	createdAt int64
	now       func() time.Time
}

// WithCreatedAt sets the creation timestamp in milliseconds.
// Zero means "now".
func WithCreatedAt(ms int64) Option {
	return func(cfg *eventConfig) {
		cfg.createdAt = ms
	}
}

// WithClock overrides the wall clock used to stamp new events.
func WithClock(now func() time.Time) Option {
	return func(cfg *eventConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// New creates an event named name carrying payload.
//
// A falsy payload (nil, false, numeric zero, or the empty string) is stored
// as the null payload. Any other payload is copied through its JSON
// encoding, so later changes to the original value are not observed.
// Names and payload strings must be valid UTF-8, and payload numbers must
// fit a float64.
func New(name string, payload any, opts ...Option) (*Event, error) {
	if name == "" || !utf8.ValidString(name) {
		return nil, ErrInvalidName
	}

	cfg := &eventConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	data, err := canonicalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	createdAt := cfg.createdAt
	if createdAt == 0 {
		createdAt = cfg.now().UnixMilli()
	}

	return &Event{
		name:      name,
		payload:   data,
		createdAt: createdAt,
	}, nil
}

// MustNew is like New but panics on error. Intended for constants and tests.
func MustNew(name string, payload any, opts ...Option) *Event {
	evt, err := New(name, payload, opts...)
	if err != nil {
		panic(err)
	}
	return evt
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.name
}

// Payload returns a fresh copy of the payload decoded as a generic JSON
// value: map[string]any, []any, float64, string, bool, or nil.
func (e *Event) Payload() any {
	var v any
	// canonicalPayload only stores UTF-8 JSON whose numbers fit a float64.
	_ = json.Unmarshal(e.payload, &v)
	return v
}

// PayloadInto decodes the payload into v, which must be a pointer.
func (e *Event) PayloadInto(v any) error {
	if err := json.Unmarshal(e.payload, v); err != nil {
		return fmt.Errorf("decode payload of %s: %w", e.name, err)
	}
	return nil
}

// PayloadBytes returns a copy of the canonical JSON encoding of the payload.
func (e *Event) PayloadBytes() []byte {
	if len(e.payload) == 0 {
		return []byte("null")
	}
	return bytes.Clone(e.payload)
}

// CreatedAt returns the creation timestamp in milliseconds since the Unix epoch.
func (e *Event) CreatedAt() int64 {
	return e.createdAt
}

// Time returns CreatedAt as a time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.createdAt)
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	return fmt.Sprintf("%s@%d", e.name, e.createdAt)
}

// valid reports whether e was built by New or Deserialize.
func (e *Event) valid() bool {
	return e != nil && e.name != "" && len(e.payload) > 0
}

// wireEvent is the serialized form. Field order is the encoding order.
type wireEvent struct {
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"createdAt"`
}

// Serialize encodes the event as JSON text with exactly the fields
// name, payload, and createdAt. The output is deterministic.
func (e *Event) Serialize() (string, error) {
	data, err := e.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalJSON implements json.Marshaler using the Serialize format.
func (e *Event) MarshalJSON() ([]byte, error) {
	if !e.valid() {
		return nil, ErrInvalidEvent
	}
	return json.Marshal(wireEvent{
		Name:      e.Name(),
		Payload:   e.PayloadBytes(),
		CreatedAt: e.CreatedAt(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. It only fills a zero Event;
// constructed events are immutable.
func (e *Event) UnmarshalJSON(data []byte) error {
	if e.valid() {
		return fmt.Errorf("%w: cannot overwrite a constructed event", ErrInvalidArgument)
	}
	parsed, err := decode(data)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

// Deserialize parses text produced by Serialize into a new event.
// The original creation timestamp is preserved.
func Deserialize(text string) (*Event, error) {
	return decode([]byte(text))
}

// wireInput mirrors wireEvent with enough indirection to tell missing
// fields from zero values.
type wireInput struct {
	Name      json.RawMessage `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt *int64          `json:"createdAt"`
}

func decode(data []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var in wireInput
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after event", ErrParse)
	}
	if in.CreatedAt == nil {
		return nil, fmt.Errorf("%w: missing createdAt", ErrParse)
	}

	name, err := decodeName(in.Name)
	if err != nil {
		return nil, err
	}

	payload, err := canonicalPayload(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrParse, err)
	}

	return &Event{
		name:      name,
		payload:   payload,
		createdAt: *in.CreatedAt,
	}, nil
}

func decodeName(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || !utf8.Valid(raw) {
		return "", ErrInvalidName
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// canonicalPayload encodes v as compact JSON with sorted object keys.
// Numbers keep their literal digits.
func canonicalPayload(v any) ([]byte, error) {
	if v == nil {
		return nullPayload, nil
	}
	if raw, ok := v.(json.RawMessage); ok && len(raw) == 0 {
		return nullPayload, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// encoding/json silently replaces invalid UTF-8 in Go strings, so those
	// are checked on the value; marshaler output is checked on the bytes.
	if !utf8.Valid(raw) || !validStrings(reflect.ValueOf(v)) {
		return nil, errors.New("payload contains invalid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if err := checkNumbers(tree); err != nil {
		return nil, err
	}
	if isFalsy(tree) {
		return nullPayload, nil
	}
	return json.Marshal(tree)
}

// checkNumbers rejects numbers that do not decode to a finite float64.
func checkNumbers(v any) error {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) {
			return fmt.Errorf("number %s out of range", val)
		}
	case map[string]any:
		for _, item := range val {
			if err := checkNumbers(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := checkNumbers(item); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[interface{ MarshalText() ([]byte, error) }]()
)

// validStrings reports whether every string json.Marshal would encode
// from v is valid UTF-8. Values with their own marshaler are skipped.
// v must already have marshaled successfully, which rules out cycles.
func validStrings(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
		return true
	}

	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return true
		}
		return validStrings(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return true // encoded as base64
		}
		for i := 0; i < v.Len(); i++ {
			if !validStrings(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validStrings(iter.Key()) || !validStrings(iter.Value()) {
				return false
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if (!field.IsExported() && !field.Anonymous) || field.Tag.Get("json") == "-" {
				continue
			}
			if !validStrings(v.Field(i)) {
				return false
			}
		}
	}
	return true
}

func isFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	}
	return false
}
