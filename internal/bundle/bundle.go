package bundle

import (
	"slices"
	"time"
)

const (
	// DefaultTokenType is used when a payload does not name a token type.
	DefaultTokenType = "Bearer"

	// DefaultBuffer is the safety margin subtracted from the expiry.
	// A bundle expiring within the buffer is no longer considered usable.
	DefaultBuffer = 5 * time.Minute
)

// TokenBundle is the complete credential record of a session.
// It is replaced wholesale on refresh and never patched field by field.
type TokenBundle struct {
	// AccessToken is the opaque bearer credential sent to the backend.
	AccessToken string `json:"accessToken" mapstructure:"accessToken"`

	// RefreshToken is optional. Without it the session cannot be refreshed.
	RefreshToken string `json:"refreshToken,omitempty" mapstructure:"refreshToken"`

	// TokenType is the Authorization scheme, "Bearer" unless the backend says otherwise.
	TokenType string `json:"tokenType" mapstructure:"tokenType"`

	Username string `json:"username" mapstructure:"username"`

	// Authorities holds the role names granted to Username. It is never nil.
	Authorities []string `json:"authorities" mapstructure:"authorities"`

	// ExpiresIn is the lifetime in seconds as reported by the backend.
	ExpiresIn int64 `json:"expiresIn" mapstructure:"expiresIn"`

	// ExpiresAt is IssuedAt + ExpiresIn.
	ExpiresAt time.Time `json:"expiresAt" mapstructure:"expiresAt"`

	// IssuedAt is the local time the bundle was created.
	IssuedAt time.Time `json:"issuedAt" mapstructure:"issuedAt"`
}

// User is the identity part of a bundle handed to consumers.
type User struct {
	Username    string   `json:"username" yaml:"username"`
	Authorities []string `json:"authorities" yaml:"authorities"`
}

// User returns the identity carried by the bundle.
func (b *TokenBundle) User() User {
	return User{
		Username:    b.Username,
		Authorities: slices.Clone(b.Authorities),
	}
}

// HasAuthority reports whether the bundle grants the given role.
func (b *TokenBundle) HasAuthority(role string) bool {
	return slices.Contains(b.Authorities, role)
}

// AuthorizationHeader returns the value for the Authorization header.
func (b *TokenBundle) AuthorizationHeader() string {
	typ := b.TokenType
	if typ == "" {
		typ = DefaultTokenType
	}
	return typ + " " + b.AccessToken
}

// Clone returns a deep copy.
func (b *TokenBundle) Clone() *TokenBundle {
	if b == nil {
		return nil
	}
	cpy := *b
	cpy.Authorities = slices.Clone(b.Authorities)
	if cpy.Authorities == nil {
		cpy.Authorities = make([]string, 0)
	}
	return &cpy
}

// Equal reports whether both bundles carry the same field values.
func (b *TokenBundle) Equal(other *TokenBundle) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.AccessToken == other.AccessToken &&
		b.RefreshToken == other.RefreshToken &&
		b.TokenType == other.TokenType &&
		b.Username == other.Username &&
		slices.Equal(b.Authorities, other.Authorities) &&
		b.ExpiresIn == other.ExpiresIn &&
		b.ExpiresAt.Equal(other.ExpiresAt) &&
		b.IssuedAt.Equal(other.IssuedAt)
}

// ExpiresWithin returns how long the bundle remains usable when the buffer is respected.
// The result is negative once the bundle is no longer usable.
func (b *TokenBundle) ExpiresWithin(buffer time.Duration, now time.Time) time.Duration {
	return b.ExpiresAt.Sub(now.Add(buffer))
}
