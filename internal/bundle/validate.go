package bundle

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed is returned for payloads that do not have the shape of a bundle.
	ErrMalformed = errors.New("malformed token bundle")

	// ErrExpired is returned for bundles that expire within the buffer.
	ErrExpired = errors.New("token bundle expired")
)

// StructurallyValid reports whether raw has the shape of a token bundle:
// non-empty accessToken and username, and authorities given as a list of strings.
// Anything else is invalid, there is no partial trust.
func StructurallyValid(raw map[string]any) bool {
	return checkStructure(raw) == nil
}

func checkStructure(raw map[string]any) error {
	if raw == nil {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	for _, key := range []string{"accessToken", "username"} {
		s, ok := raw[key].(string)
		if !ok || s == "" {
			return fmt.Errorf("%w: missing %s", ErrMalformed, key)
		}
	}
	switch authorities := raw["authorities"].(type) {
	case []string:
	case []any:
		for i, a := range authorities {
			if _, ok := a.(string); !ok {
				return fmt.Errorf("%w: authorities[%d] is %T, not a string", ErrMalformed, i, a)
			}
		}
	case nil:
		return fmt.Errorf("%w: missing authorities", ErrMalformed)
	default:
		return fmt.Errorf("%w: authorities is %T, not a list", ErrMalformed, authorities)
	}
	return nil
}

// TemporallyValid reports whether b is still usable for at least buffer after now,
// i.e. expiresAt > now + buffer.
func TemporallyValid(b *TokenBundle, buffer time.Duration, now time.Time) bool {
	return b != nil && b.ExpiresAt.After(now.Add(buffer))
}

// Check validates the typed fields of a bundle.
func (b *TokenBundle) Check() error {
	switch {
	case b == nil:
		return fmt.Errorf("%w: no bundle", ErrMalformed)
	case b.AccessToken == "":
		return fmt.Errorf("%w: missing accessToken", ErrMalformed)
	case b.Username == "":
		return fmt.Errorf("%w: missing username", ErrMalformed)
	case b.Authorities == nil:
		return fmt.Errorf("%w: missing authorities", ErrMalformed)
	case !b.ExpiresAt.After(b.IssuedAt):
		return fmt.Errorf("%w: expiresAt %s is not after issuedAt %s",
			ErrMalformed, b.ExpiresAt.Format(time.RFC3339), b.IssuedAt.Format(time.RFC3339))
	}
	return nil
}

// Validate runs both the structural and the temporal check.
// It returns nil only for a bundle that may be considered current.
func Validate(b *TokenBundle, buffer time.Duration, now time.Time) error {
	if err := b.Check(); err != nil {
		return err
	}
	if !TemporallyValid(b, buffer, now) {
		return fmt.Errorf("%w: expires at %s (buffer %s)", ErrExpired, b.ExpiresAt.Format(time.RFC3339), buffer)
	}
	return nil
}

// Current reports whether the bundle passes both checks.
func Current(b *TokenBundle, buffer time.Duration, now time.Time) bool {
	return Validate(b, buffer, now) == nil
}
