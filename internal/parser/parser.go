// Package parser pulls a JSON object out of free-form model output.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedOutput is returned when model text holds no parseable JSON object
var ErrMalformedOutput = errors.New("malformed model output")

// Extract returns the widest {...} span in text: from the first '{' to the
// last '}'. Bracket balance is not checked here, json decoding does that.
func Extract(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in output", ErrMalformedOutput)
	}
	return text[start : end+1], nil
}

// Decode extracts the JSON object from text and unmarshals it into v
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// Int is an integer that also accepts numeric strings ("10", "10.0") and
// floats, since models do not reliably keep numbers unquoted. A missing or
// null value decodes to zero and leaves Set false.
type Int struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = Int{}
		return nil
	}
	s := string(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if n, err := strconv.Atoi(s); err == nil {
		*i = Int{Value: n, Set: true}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(f) {
		// Unparseable values count as absent so callers apply their defaults
		*i = Int{}
		return nil
	}
	// Out of range values saturate so callers' clamps still see the sign
	switch {
	case f >= math.MaxInt32:
		*i = Int{Value: math.MaxInt32, Set: true}
	case f <= math.MinInt32:
		*i = Int{Value: math.MinInt32, Set: true}
	default:
		*i = Int{Value: int(f), Set: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (i Int) MarshalJSON() ([]byte, error) {
	if !i.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(i.Value)), nil
}

// Bool is a boolean that also accepts "true"/"false" strings
type Bool struct {
	Value bool
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Bool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*b = Bool{}
		return nil
	}
	*b = Bool{Value: v, Set: true}
	return nil
}
