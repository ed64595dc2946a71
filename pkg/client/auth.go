package client

import (
	"context"
	"errors"
	"net/http"
)

// SignupRequest is the registration form.
type SignupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	InviteCode      string `json:"inviteCode"`
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges username and password for a bundle.
// On success the raw body is returned, validating it is up to the caller.
// No retries are attempted.
func (c *Client) Login(ctx context.Context, username, password string) (map[string]any, error) {
	var raw map[string]any
	err := c.post(ctx, c.url().
		setPath(LoginRoute).
		build(), "", loginPayload{Username: username, Password: password}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Signup registers a new account. A KindConflict error means the username
// or email is already registered. Local rules are checked first.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if err := ValidateSignup(req); err != nil {
		return err
	}
	return c.post(ctx, c.url().
		setPath(SignupRoute).
		build(), "", req, nil)
}

// Logout asks the server to invalidate the access token.
// The caller treats the outcome as best effort.
func (c *Client) Logout(ctx context.Context, authorization string) error {
	return c.post(ctx, c.url().
		setPath(LogoutRoute).
		build(), authorization, nil, nil)
}

// Status checks that the server still honors the access token.
// A rejected token yields an error for which IsUnauthorized is true.
func (c *Client) Status(ctx context.Context, authorization string) error {
	return c.get(ctx, c.url().
		setPath(StatusRoute).
		build(), authorization, nil)
}

// Refresh exchanges a refresh token for a new bundle, returned raw like Login.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (map[string]any, error) {
	if refreshToken == "" {
		return nil, &Error{Kind: KindSessionExpired, Message: "no refresh token"}
	}
	var raw map[string]any
	err := c.post(ctx, c.url().
		setPath(RefreshRoute).
		build(), "", refreshPayload{RefreshToken: refreshToken}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Availability is the verdict of a uniqueness check.
type Availability string

const (
	Available Availability = "available"
	Taken     Availability = "taken"
)

// CheckUsername reports whether name is still free.
// Names failing the local rules return a *ValidationError without any request.
// A 409 means taken, any other failure is returned as error without a verdict.
func (c *Client) CheckUsername(ctx context.Context, name string) (Availability, error) {
	if err := ValidateUsername(name); err != nil {
		return "", err
	}
	return c.check(ctx, c.url().
		setPath(CheckUsernameRoute).
		addQueryParam("username", name).
		build())
}

// CheckEmail is like CheckUsername for email addresses.
func (c *Client) CheckEmail(ctx context.Context, email string) (Availability, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	return c.check(ctx, c.url().
		setPath(CheckEmailRoute).
		addQueryParam("email", email).
		build())
}

func (c *Client) check(ctx context.Context, url string) (Availability, error) {
	err := c.get(ctx, url, "", nil)
	if err == nil {
		return Available, nil
	}
	var e *Error
	if errors.As(err, &e) && e.StatusCode == http.StatusConflict {
		return Taken, nil
	}
	return "", err
}
