package session_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/taskdeck/internal/backendtest"
	"github.com/darmiel/taskdeck/internal/bundle"
	"github.com/darmiel/taskdeck/internal/credstore"
	"github.com/darmiel/taskdeck/internal/events"
	"github.com/darmiel/taskdeck/internal/session"
	"github.com/darmiel/taskdeck/pkg/client"
)

const waitFor = 2 * time.Second

type fixture struct {
	backend *backendtest.Backend
	server  interface{ Close() }
	store   *credstore.MemoryStore
	manager *session.Manager
	sub     *events.Subscription
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()

	backend := backendtest.New()
	backend.AddUser("admin", "admin@example.com", "admin123", "ROLE_ADMIN")
	srv := backend.Start(t)

	store := credstore.NewMemoryStore()
	m := session.New(client.New(srv.URL), store, opts...)
	t.Cleanup(m.Close)

	sub := m.Subscribe()
	t.Cleanup(sub.Unsubscribe)

	return &fixture{
		backend: backend,
		server:  srv,
		store:   store,
		manager: m,
		sub:     sub,
	}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.manager.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedIn, e.Kind)
}

func (f *fixture) nextEvent(t *testing.T) events.Event {
	t.Helper()
	select {
	case e := <-f.sub.Events():
		return e
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func (f *fixture) noEvent(t *testing.T) {
	t.Helper()
	select {
	case e := <-f.sub.Events():
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fixture) stored(t *testing.T) *bundle.TokenBundle {
	t.Helper()
	b, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return b
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.manager.IsLoggedIn())
	require.Equal(t, session.PhaseAnonymous, f.manager.Phase())

	user, err := f.manager.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.Equal(t, "admin", user.Username)
	require.Equal(t, []string{"ROLE_ADMIN"}, user.Authorities)

	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedIn, e.Kind)
	require.Equal(t, "admin", e.Username)
	require.Equal(t, []string{"ROLE_ADMIN"}, e.Authorities)
	f.noEvent(t)

	require.True(t, f.manager.IsLoggedIn())
	require.Equal(t, session.PhaseAuthenticated, f.manager.Phase())
	current, ok := f.manager.CurrentUser()
	require.True(t, ok)
	require.Equal(t, user, current)

	require.True(t, f.stored(t).Equal(f.manager.Bundle()))
	require.True(t, f.manager.MonitorStatus().Armed)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(b *backendtest.Backend)
		password string
		kind     client.Kind
	}{
		{
			name:     "wrong password",
			password: "wrong",
			kind:     client.KindInvalidCredentials,
		},
		{
			name:  "endpoint missing",
			setup: func(b *backendtest.Backend) { b.ForceStatus(backendtest.LoginRoute, http.StatusNotFound) },
			kind:  client.KindEndpointNotFound,
		},
		{
			name:  "server error",
			setup: func(b *backendtest.Backend) { b.ForceStatus(backendtest.LoginRoute, http.StatusInternalServerError) },
			kind:  client.KindUnknown,
		},
		{
			name:  "not json",
			setup: func(b *backendtest.Backend) { b.SetBody(backendtest.LoginRoute, "<html>") },
			kind:  client.KindMalformedResponse,
		},
		{
			name: "missing username",
			setup: func(b *backendtest.Backend) {
				b.SetBody(backendtest.LoginRoute, map[string]any{
					"accessToken": "tok",
					"authorities": []string{},
					"expiresIn":   3600,
				})
			},
			kind: client.KindMalformedResponse,
		},
		{
			name:  "expires within buffer",
			setup: func(b *backendtest.Backend) { b.SetExpiresIn(60) },
			kind:  client.KindSessionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.backend)
			}
			password := tt.password
			if password == "" {
				password = "admin123"
			}

			_, err := f.manager.Login(context.Background(), "admin", password)
			require.Error(t, err)
			require.Equal(t, tt.kind, client.KindOf(err))

			require.False(t, f.manager.IsLoggedIn())
			require.Nil(t, f.stored(t))
			require.False(t, f.manager.MonitorStatus().Armed)
			f.noEvent(t)
		})
	}
}

func TestLogin_Unreachable(t *testing.T) {
	m := session.New(client.New("http://127.0.0.1:1"), credstore.NewMemoryStore())

	_, err := m.Login(context.Background(), "admin", "admin123")
	require.ErrorIs(t, err, client.ErrUnreachable)
	require.False(t, m.IsLoggedIn())
}

type failingStore struct {
	*credstore.MemoryStore
	err error
}

func (s *failingStore) Persist(context.Context, *bundle.TokenBundle) error {
	return s.err
}

func TestLogin_PersistFailure(t *testing.T) {
	backend := backendtest.New()
	backend.AddUser("admin", "", "admin123", "ROLE_ADMIN")
	srv := backend.Start(t)

	errDisk := errors.New("disk full")
	m := session.New(client.New(srv.URL), &failingStore{MemoryStore: credstore.NewMemoryStore(), err: errDisk})
	sub := m.Subscribe()
	defer sub.Unsubscribe()

	_, err := m.Login(context.Background(), "admin", "admin123")
	require.ErrorIs(t, err, errDisk)
	require.False(t, m.IsLoggedIn())
	require.Nil(t, m.Bundle())

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{name: "server accepts"},
		{
			name:  "server fails",
			setup: func(f *fixture) { f.backend.ForceStatus(backendtest.LogoutRoute, http.StatusInternalServerError) },
		},
		{
			name:  "server unreachable",
			setup: func(f *fixture) { f.server.Close() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.login(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			f.manager.Logout(context.Background())

			require.False(t, f.manager.IsLoggedIn())
			require.Nil(t, f.manager.Bundle())
			require.Nil(t, f.stored(t))
			require.False(t, f.manager.MonitorStatus().Armed)
			require.Equal(t, session.PhaseAnonymous, f.manager.Phase())

			e := f.nextEvent(t)
			require.Equal(t, events.KindLoggedOut, e.Kind)
			require.Equal(t, events.ReasonLogout, e.Reason)
			f.noEvent(t)
		})
	}
}

func TestLogout_Anonymous(t *testing.T) {
	f := newFixture(t)

	f.manager.Logout(context.Background())

	require.Zero(t, f.backend.Calls(backendtest.LogoutRoute))
	f.noEvent(t)
}

func TestLogout_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	release := make(chan struct{})
	f.backend.SetHook(backendtest.LogoutRoute, func(*http.Request) { <-release })

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.manager.Logout(context.Background())
		}()
	}

	require.Eventually(t, func() bool {
		return f.backend.Calls(backendtest.LogoutRoute) == 1
	}, waitFor, 5*time.Millisecond)
	require.Equal(t, session.PhaseLoggingOut, f.manager.Phase())

	close(release)
	wg.Wait()

	require.Equal(t, 1, f.backend.Calls(backendtest.LogoutRoute))
	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedOut, e.Kind)
	f.noEvent(t)
}

func TestLogin_WaitsForRunningLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	release := make(chan struct{})
	f.backend.SetHook(backendtest.LogoutRoute, func(*http.Request) { <-release })

	logoutDone := make(chan struct{})
	go func() {
		defer close(logoutDone)
		f.manager.Logout(context.Background())
	}()
	require.Eventually(t, func() bool {
		return f.backend.Calls(backendtest.LogoutRoute) == 1
	}, waitFor, 5*time.Millisecond)

	loginDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Login(context.Background(), "admin", "admin123")
		loginDone <- err
	}()

	select {
	case err := <-loginDone:
		t.Fatalf("login committed during logout: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	<-logoutDone
	require.NoError(t, <-loginDone)

	require.Equal(t, events.KindLoggedOut, f.nextEvent(t).Kind)
	require.Equal(t, events.KindLoggedIn, f.nextEvent(t).Kind)
	require.True(t, f.manager.IsLoggedIn())
	require.NotNil(t, f.stored(t))
}

func TestReconcile_WaitsForRunningLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	release := make(chan struct{})
	f.backend.SetHook(backendtest.LogoutRoute, func(*http.Request) { <-release })

	logoutDone := make(chan struct{})
	go func() {
		defer close(logoutDone)
		f.manager.Logout(ctx)
	}()
	require.Eventually(t, func() bool {
		return f.backend.Calls(backendtest.LogoutRoute) == 1
	}, waitFor, 5*time.Millisecond)

	now := time.Now().Round(0)
	bob := &bundle.TokenBundle{
		AccessToken: "other",
		TokenType:   bundle.DefaultTokenType,
		Username:    "bob",
		Authorities: []string{"ROLE_USER"},
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, f.store.Persist(ctx, bob))

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		f.manager.Reconcile(ctx, bob)
	}()

	select {
	case <-reconcileDone:
		t.Fatal("reconcile committed during logout")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	<-logoutDone
	<-reconcileDone

	// the cascade cleared the store, so there is nothing left to adopt
	require.Equal(t, events.KindLoggedOut, f.nextEvent(t).Kind)
	f.noEvent(t)
	require.False(t, f.manager.IsLoggedIn())
	require.Nil(t, f.manager.Bundle())
	require.Nil(t, f.stored(t))
}

func TestMonitor_EndsExpiredSession(t *testing.T) {
	c := &clock{now: time.Now()}
	f := newFixture(t, session.WithClock(c.Now), session.WithMonitorInterval(10*time.Millisecond))
	f.login(t)

	c.Advance(56 * time.Minute)

	// queries stay side-effect free, the monitor does the cleanup
	require.False(t, f.manager.IsLoggedIn())

	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedOut, e.Kind)
	require.Equal(t, events.ReasonExpired, e.Reason)

	require.Nil(t, f.stored(t))
	require.Nil(t, f.manager.Bundle())
	require.Zero(t, f.backend.Calls(backendtest.LogoutRoute))
	require.Eventually(t, func() bool {
		return !f.manager.MonitorStatus().Armed
	}, waitFor, 5*time.Millisecond)
}

func TestValidate(t *testing.T) {
	c := &clock{now: time.Now()}
	f := newFixture(t, session.WithClock(c.Now))

	require.ErrorIs(t, f.manager.Validate(context.Background()), session.ErrNotLoggedIn)

	f.login(t)
	require.NoError(t, f.manager.Validate(context.Background()))

	c.Advance(time.Hour)
	err := f.manager.Validate(context.Background())
	require.ErrorIs(t, err, client.ErrSessionExpired)
	require.Equal(t, events.ReasonExpired, f.nextEvent(t).Reason)
}

func TestStart(t *testing.T) {
	now := time.Now().Round(0)
	valid := &bundle.TokenBundle{
		AccessToken:  "tok",
		RefreshToken: "ref",
		TokenType:    bundle.DefaultTokenType,
		Username:     "admin",
		Authorities:  []string{"ROLE_ADMIN"},
		ExpiresIn:    3600,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
	expired := valid.Clone()
	expired.IssuedAt = now.Add(-2 * time.Hour)
	expired.ExpiresAt = now.Add(-time.Hour)

	tests := []struct {
		name     string
		plant    func(t *testing.T, s *credstore.MemoryStore)
		loggedIn bool
	}{
		{
			name:     "valid",
			plant:    func(t *testing.T, s *credstore.MemoryStore) { require.NoError(t, s.Persist(context.Background(), valid)) },
			loggedIn: true,
		},
		{
			name:  "expired",
			plant: func(t *testing.T, s *credstore.MemoryStore) { require.NoError(t, s.Persist(context.Background(), expired)) },
		},
		{
			name:  "malformed",
			plant: func(_ *testing.T, s *credstore.MemoryStore) { s.SetRecord([]byte(`{"accessToken":""}`)) },
		},
		{
			name:  "empty",
			plant: func(*testing.T, *credstore.MemoryStore) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.plant(t, f.store)

			require.NoError(t, f.manager.Start(context.Background()))
			require.Equal(t, tt.loggedIn, f.manager.IsLoggedIn())
			require.Equal(t, tt.loggedIn, f.manager.MonitorStatus().Armed)
			if !tt.loggedIn {
				require.Nil(t, f.store.Record())
			}
			f.noEvent(t)
		})
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := f.manager.Bundle()

	require.True(t, f.manager.Refresh(context.Background()))

	after := f.manager.Bundle()
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.True(t, f.stored(t).Equal(after))
	require.Equal(t, 1, f.backend.Calls(backendtest.RefreshRoute))
	f.noEvent(t)
}

func TestRefresh_Failure(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.ForceStatus(backendtest.RefreshRoute, http.StatusUnauthorized)

	require.False(t, f.manager.Refresh(context.Background()))

	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedOut, e.Kind)
	require.Equal(t, events.ReasonRefreshFailed, e.Reason)
	require.False(t, f.manager.IsLoggedIn())
	require.Nil(t, f.stored(t))
	require.Zero(t, f.backend.Calls(backendtest.LogoutRoute))
}

func TestRefresh_WithoutRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.backend.SetBody(backendtest.LoginRoute, map[string]any{
		"accessToken": "tok",
		"username":    "admin",
		"authorities": []string{"ROLE_ADMIN"},
		"expiresIn":   3600,
	})
	f.login(t)

	require.False(t, f.manager.Refresh(context.Background()))
	require.Zero(t, f.backend.Calls(backendtest.RefreshRoute))
	require.Equal(t, events.ReasonRefreshFailed, f.nextEvent(t).Reason)
}

func TestRefresh_Anonymous(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.manager.Refresh(context.Background()))
	require.Zero(t, f.backend.Calls(backendtest.RefreshRoute))
	f.noEvent(t)
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CheckStatus(context.Background())
	require.ErrorIs(t, err, session.ErrNotLoggedIn)

	f.login(t)
	ok, err := f.manager.CheckStatus(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// transport trouble does not end the session
	f.backend.ForceStatus(backendtest.StatusRoute, http.StatusInternalServerError)
	ok, err = f.manager.CheckStatus(context.Background())
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, f.manager.IsLoggedIn())
	f.backend.ForceStatus(backendtest.StatusRoute, 0)

	f.backend.Revoke(f.manager.Bundle().AccessToken)
	ok, err = f.manager.CheckStatus(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedOut, e.Kind)
	require.Equal(t, events.ReasonRejected, e.Reason)
	require.False(t, f.manager.IsLoggedIn())
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.manager.Reconcile(ctx, f.manager.Bundle())
	f.noEvent(t)

	f.manager.Reconcile(ctx, nil)
	e := f.nextEvent(t)
	require.Equal(t, events.KindLoggedOut, e.Kind)
	require.Equal(t, events.ReasonExternal, e.Reason)
	require.False(t, f.manager.IsLoggedIn())

	now := time.Now().Round(0)
	bob := &bundle.TokenBundle{
		AccessToken: "other",
		TokenType:   bundle.DefaultTokenType,
		Username:    "bob",
		Authorities: []string{"ROLE_USER"},
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, f.store.Persist(ctx, bob))
	f.manager.Reconcile(ctx, bob)
	e = f.nextEvent(t)
	require.Equal(t, events.KindLoggedIn, e.Kind)
	require.Equal(t, "bob", e.Username)

	user, ok := f.manager.CurrentUser()
	require.True(t, ok)
	require.Equal(t, "bob", user.Username)
	require.True(t, f.manager.MonitorStatus().Armed)

	f.manager.Reconcile(ctx, nil)
	require.Equal(t, events.KindLoggedOut, f.nextEvent(t).Kind)

	// nothing to end
	f.manager.Reconcile(ctx, nil)
	f.noEvent(t)
}

func TestPhase(t *testing.T) {
	f := newFixture(t)

	release := make(chan struct{})
	f.backend.SetHook(backendtest.LoginRoute, func(*http.Request) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.manager.Login(context.Background(), "admin", "admin123")
	}()

	require.Eventually(t, func() bool {
		return f.manager.Phase() == session.PhaseAuthenticating
	}, waitFor, 5*time.Millisecond)

	close(release)
	<-done
	require.Equal(t, session.PhaseAuthenticated, f.manager.Phase())
}

func TestSignupAndAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	availability, err := f.manager.CheckUsername(ctx, "newuser")
	require.NoError(t, err)
	require.Equal(t, client.Available, availability)

	err = f.manager.Signup(ctx, client.SignupRequest{
		Username:        "newuser",
		Email:           "new@example.com",
		Password:        "password1",
		ConfirmPassword: "password1",
	})
	require.NoError(t, err)
	require.False(t, f.manager.IsLoggedIn())

	availability, err = f.manager.CheckUsername(ctx, "newuser")
	require.NoError(t, err)
	require.Equal(t, client.Taken, availability)

	availability, err = f.manager.CheckEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, client.Taken, availability)

	_, err = f.manager.Login(ctx, "newuser", "password1")
	require.NoError(t, err)
	require.Equal(t, events.KindLoggedIn, f.nextEvent(t).Kind)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitorLogFields(t *testing.T) {
	var out syncBuffer
	logger := zerolog.New(&out).With().Str("component", "session").Logger()
	f := newFixture(t, session.WithLogger(logger))
	f.login(t)

	var armed string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "monitor armed") {
			armed = line
		}
	}
	require.NotEmpty(t, armed)
	require.Equal(t, 1, strings.Count(armed, `"component":`))
	require.Contains(t, armed, `"subcomponent":"monitor"`)
}
