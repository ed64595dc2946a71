package bundle

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mitchellh/mapstructure"
)

// maxExpiresIn is the longest lifetime in seconds that fits a time.Duration.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// Decode turns a loosely typed payload into a TokenBundle.
// The payload is either a login/refresh response body or a persisted record.
//
// Derived fields are filled when absent: tokenType defaults to Bearer,
// issuedAt to now and expiresAt to issuedAt + expiresIn.
// Decode does not perform the temporal check.
func Decode(raw map[string]any, now time.Time) (*TokenBundle, error) {
	if err := checkStructure(raw); err != nil {
		return nil, err
	}
	if err := checkLifetime(raw["expiresIn"]); err != nil {
		return nil, err
	}

	var b TokenBundle
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &b,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if b.TokenType == "" {
		b.TokenType = DefaultTokenType
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = now.Round(0)
	}
	if b.ExpiresAt.IsZero() {
		if b.ExpiresIn <= 0 || b.ExpiresIn > maxExpiresIn {
			return nil, fmt.Errorf("%w: expiresIn out of range, got %d", ErrMalformed, b.ExpiresIn)
		}
		b.ExpiresAt = b.IssuedAt.Add(time.Duration(b.ExpiresIn) * time.Second)
	}
	b.Authorities = dedupe(b.Authorities)

	if err := b.Check(); err != nil {
		return nil, err
	}
	return &b, nil
}

// checkLifetime rejects lifetimes the integer decoder would truncate or wrap.
func checkLifetime(v any) error {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return nil
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("%w: expiresIn %v is not a whole number of seconds", ErrMalformed, f)
	}
	if f > float64(maxExpiresIn) {
		return fmt.Errorf("%w: expiresIn %v out of range", ErrMalformed, f)
	}
	return nil
}

// authorities are a set, order of first occurrence is kept
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}
