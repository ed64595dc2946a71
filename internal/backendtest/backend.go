// Package backendtest is an in-process fake of the backend REST contract
// consumed by the session subsystem. It is meant for tests only.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"
)

const (
	LoginRoute         = "/login"
	SignupRoute        = "/signup"
	LogoutRoute        = "/logout"
	StatusRoute        = "/status"
	RefreshRoute       = "/refresh"
	CheckUsernameRoute = "/check-username"
	CheckEmailRoute    = "/check-email"
)

// DefaultExpiresIn is the lifetime of issued access tokens.
const DefaultExpiresIn int64 = 3600

type account struct {
	username     string
	email        string
	passwordHash []byte
	authorities  []string
}

// Backend is a fake backend with an in-memory user database.
// Responses can be overridden per route to simulate failures.
type Backend struct {
	signingKey []byte

	mu            sync.Mutex
	accounts      map[string]*account
	refreshTokens map[string]string // refresh token -> username
	revoked       map[string]struct{}
	expiresIn     int64
	forced        map[string]int
	bodies        map[string]any
	hooks         map[string]func(r *http.Request)
	calls         map[string]int
}

func New() *Backend {
	return &Backend{
		signingKey:    []byte(xid.New().String() + xid.New().String()),
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		revoked:       make(map[string]struct{}),
		expiresIn:     DefaultExpiresIn,
		forced:        make(map[string]int),
		bodies:        make(map[string]any),
		hooks:         make(map[string]func(r *http.Request)),
		calls:         make(map[string]int),
	}
}

// Start serves the backend on a local port until the test ends.
func (b *Backend) Start(t testing.TB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// AddUser registers an account.
func (b *Backend) AddUser(username, email, password string, authorities ...string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("hashing password: %v", err))
	}
	if authorities == nil {
		authorities = []string{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[username] = &account{
		username:     username,
		email:        email,
		passwordHash: hash,
		authorities:  authorities,
	}
}

// SetExpiresIn changes the lifetime (in seconds) of tokens issued from now on.
func (b *Backend) SetExpiresIn(seconds int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiresIn = seconds
}

// ForceStatus makes route answer with status and an error body. 0 restores normal handling.
func (b *Backend) ForceStatus(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.forced, route)
		return
	}
	b.forced[route] = status
}

// SetBody makes route answer 200 with body, which is sent verbatim if it is a string.
func (b *Backend) SetBody(route string, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[route] = body
}

// SetHook runs fn before route is handled, e.g. to block a request.
func (b *Backend) SetHook(route string, fn func(r *http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[route] = fn
}

// Calls returns how many requests reached route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Revoke invalidates an access token as if another device logged it out.
func (b *Backend) Revoke(accessToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[accessToken] = struct{}{}
}

func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+LoginRoute, b.intercept(LoginRoute, b.handleLogin))
	mux.HandleFunc("POST "+SignupRoute, b.intercept(SignupRoute, b.handleSignup))
	mux.HandleFunc("POST "+LogoutRoute, b.intercept(LogoutRoute, b.handleLogout))
	mux.HandleFunc("GET "+StatusRoute, b.intercept(StatusRoute, b.handleStatus))
	mux.HandleFunc("POST "+RefreshRoute, b.intercept(RefreshRoute, b.handleRefresh))
	mux.HandleFunc("GET "+CheckUsernameRoute, b.intercept(CheckUsernameRoute, b.handleCheckUsername))
	mux.HandleFunc("GET "+CheckEmailRoute, b.intercept(CheckEmailRoute, b.handleCheckEmail))

	return recoverMiddleware(
		correlationIDMiddleware(
			loggingMiddleware(
				mux)))
}

// intercept counts calls and applies hooks and overrides before the real handler.
func (b *Backend) intercept(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		hook := b.hooks[route]
		status, forced := b.forced[route]
		body, hasBody := b.bodies[route]
		b.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if forced {
			writeError(w, r, http.StatusText(status), status)
			return
		}
		if hasBody {
			if s, ok := body.(string); ok {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(s))
				return
			}
			writeJSON(w, r, body, http.StatusOK)
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid json", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[req.Username]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		writeError(w, r, "invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, err := b.issue(acc)
	if err != nil {
		writeError(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, resp, http.StatusOK)
}

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	InviteCode      string `json:"inviteCode"`
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, r, "passwords do not match", http.StatusBadRequest)
		return
	}
	if b.usernameTaken(req.Username) || b.emailTaken(req.Email) {
		writeError(w, r, "username or email already registered", http.StatusConflict)
		return
	}
	b.AddUser(req.Username, req.Email, req.Password, "ROLE_USER")
	writeJSON(w, r, map[string]any{"success": true}, http.StatusCreated)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := b.authorize(r)
	if !ok {
		writeError(w, r, "invalid session token", http.StatusUnauthorized)
		return
	}
	b.Revoke(token)
	writeJSON(w, r, map[string]any{"success": true}, http.StatusOK)
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(r); !ok {
		writeError(w, r, "invalid session token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, r, map[string]any{"status": "ok"}, http.StatusOK)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid json", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	username, ok := b.refreshTokens[req.RefreshToken]
	delete(b.refreshTokens, req.RefreshToken) // rotated on every use
	acc := b.accounts[username]
	b.mu.Unlock()

	if !ok || acc == nil {
		writeError(w, r, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	resp, err := b.issue(acc)
	if err != nil {
		writeError(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, resp, http.StatusOK)
}

func (b *Backend) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	if b.usernameTaken(r.URL.Query().Get("username")) {
		writeError(w, r, "username already taken", http.StatusConflict)
		return
	}
	writeJSON(w, r, map[string]any{"available": true}, http.StatusOK)
}

func (b *Backend) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	if b.emailTaken(r.URL.Query().Get("email")) {
		writeError(w, r, "email already registered", http.StatusConflict)
		return
	}
	writeJSON(w, r, map[string]any{"available": true}, http.StatusOK)
}

func (b *Backend) usernameTaken(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if strings.EqualFold(acc.username, name) {
			return true
		}
	}
	return false
}

func (b *Backend) emailTaken(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.email != "" && strings.EqualFold(acc.email, email) {
			return true
		}
	}
	return false
}

// issue mints a signed access token and a fresh refresh token for acc.
func (b *Backend) issue(acc *account) (map[string]any, error) {
	b.mu.Lock()
	expiresIn := b.expiresIn
	b.mu.Unlock()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   acc.username,
		"roles": acc.authorities,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Duration(expiresIn) * time.Second).Unix(),
		"jti":   xid.New().String(),
	})
	signed, err := token.SignedString(b.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	refresh := xid.New().String()
	b.mu.Lock()
	b.refreshTokens[refresh] = acc.username
	b.mu.Unlock()

	return map[string]any{
		"accessToken":  signed,
		"refreshToken": refresh,
		"tokenType":    "Bearer",
		"username":     acc.username,
		"authorities":  acc.authorities,
		"expiresIn":    expiresIn,
	}, nil
}

// authorize returns the bearer token of r if it is signed by us, unexpired and not revoked.
func (b *Backend) authorize(r *http.Request) (string, bool) {
	tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenStr == "" {
		return "", false
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return b.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	b.mu.Lock()
	_, revoked := b.revoked[tokenStr]
	b.mu.Unlock()
	return tokenStr, !revoked
}
