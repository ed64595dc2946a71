// Package session manages the lifecycle of the credential bundle: it issues,
// persists and invalidates it, answers whether the session is usable, and
// notifies subscribers about login and logout transitions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/darmiel/taskdeck/internal/bundle"
	"github.com/darmiel/taskdeck/internal/credstore"
	"github.com/darmiel/taskdeck/internal/events"
	"github.com/darmiel/taskdeck/internal/monitor"
	"github.com/darmiel/taskdeck/pkg/client"
)

// ErrNotLoggedIn is returned by operations that need a session when there is none.
var ErrNotLoggedIn = errors.New("not logged in")

// Gateway is the network boundary used by the Manager.
// *client.Client implements it.
type Gateway interface {
	Login(ctx context.Context, username, password string) (map[string]any, error)
	Signup(ctx context.Context, req client.SignupRequest) error
	Logout(ctx context.Context, authorization string) error
	Status(ctx context.Context, authorization string) error
	Refresh(ctx context.Context, refreshToken string) (map[string]any, error)
	CheckUsername(ctx context.Context, name string) (client.Availability, error)
	CheckEmail(ctx context.Context, email string) (client.Availability, error)
}

var _ Gateway = (*client.Client)(nil)

var _ monitor.Target = (*Manager)(nil)

// Manager ties gateway, store, state, broadcaster and monitor together.
//
// Every transition writes the store first, then the state, then publishes the
// event, all while holding mu. A cleanup cascade (explicit logout, failed
// refresh, rejected token, detected expiry) runs at most once at a time; new
// bundles are only committed after a running cascade has completed.
type Manager struct {
	gateway Gateway
	store   credstore.Store
	state   *State
	events  *events.Broadcaster
	monitor *monitor.Monitor

	buffer          time.Duration
	monitorInterval time.Duration
	now             func() time.Time
	logger          zerolog.Logger

	mu             sync.Mutex
	loggingOut     chan struct{} // closed when the running cascade has completed
	authenticating int

	ends      singleflight.Group
	refreshes singleflight.Group
}

func New(gateway Gateway, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		gateway:         gateway,
		store:           store,
		state:           NewState(),
		buffer:          bundle.DefaultBuffer,
		monitorInterval: monitor.DefaultInterval,
		now:             time.Now,
		logger:          log.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = events.NewBroadcaster()
	}
	m.monitor = monitor.New(m, m.monitorInterval, monitor.WithLogger(m.logger.With().Str("subcomponent", "monitor").Logger()))
	return m
}

// Start seeds the state from the store. A stored bundle that fails validation
// is removed. No event is published for a restored session.
func (m *Manager) Start(ctx context.Context) error {
	b, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading stored session: %w", err)
	}
	if b == nil {
		// drops an unreadable record, if any
		if err := m.store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing stored session: %w", err)
		}
		m.logger.Debug().Msg("no stored session")
		return nil
	}

	if err := bundle.Validate(b, m.buffer, m.now()); err != nil {
		m.logger.Info().Err(err).Str("username", b.Username).Msg("discarding stored session")
		if err := m.store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing stored session: %w", err)
		}
		return nil
	}

	m.mu.Lock()
	m.state.Set(b)
	m.monitor.Arm()
	m.mu.Unlock()

	m.logger.Info().
		Str("username", b.Username).
		Time("expires_at", b.ExpiresAt).
		Msg("session.restored")
	return nil
}

// Close stops the monitor. The stored session is kept.
func (m *Manager) Close() {
	m.monitor.Disarm()
}

// Login authenticates against the backend and commits the returned bundle.
// Failures are classified as *client.Error (or *client.ValidationError) and
// leave the session untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (bundle.User, error) {
	m.mu.Lock()
	m.authenticating++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.authenticating--
		m.mu.Unlock()
	}()

	l := m.logger.With().Str("username", username).Logger()

	raw, err := m.gateway.Login(ctx, username, password)
	if err != nil {
		l.Info().Err(err).Str("kind", string(client.KindOf(err))).Msg("login failed")
		return bundle.User{}, err
	}

	b, err := m.accept(raw)
	if err != nil {
		l.Warn().Err(err).Msg("login returned an unusable bundle")
		return bundle.User{}, err
	}

	if err := m.lockIdle(ctx); err != nil {
		return bundle.User{}, err
	}
	defer m.mu.Unlock()

	if err := m.store.Persist(ctx, b); err != nil {
		l.Error().Err(err).Msg("could not persist session")
		return bundle.User{}, fmt.Errorf("persisting session: %w", err)
	}
	m.state.Set(b)
	m.monitor.Arm()
	m.events.Publish(events.LoggedIn(b.Username, b.Authorities, m.now()))

	l.Info().
		Strs("authorities", b.Authorities).
		Str("token", b.Fingerprint()).
		Msg("session.logged_in")
	return b.User(), nil
}

// Signup registers a new account. It never changes the session.
func (m *Manager) Signup(ctx context.Context, req client.SignupRequest) error {
	if err := m.gateway.Signup(ctx, req); err != nil {
		m.logger.Info().Err(err).Str("username", req.Username).Msg("signup failed")
		return err
	}
	m.logger.Info().Str("username", req.Username).Msg("signup succeeded")
	return nil
}

// Logout ends the session on this device. The server is notified on a best
// effort basis, its answer does not matter: afterwards IsLoggedIn is false.
// Concurrent calls share a single cascade and a single server request.
func (m *Manager) Logout(ctx context.Context) {
	m.endSession(ctx, events.ReasonLogout, true)
}

// Refresh exchanges the refresh token for a new bundle. Any failure ends the
// session. It reports whether a usable session exists afterwards.
func (m *Manager) Refresh(ctx context.Context) bool {
	v, _, _ := m.refreshes.Do("refresh", func() (any, error) {
		return m.refresh(ctx), nil
	})
	return v.(bool)
}

func (m *Manager) refresh(ctx context.Context) bool {
	snapshot := m.state.Current()
	if snapshot == nil {
		return false
	}
	l := m.logger.With().Str("username", snapshot.Username).Logger()

	fail := func(err error) bool {
		l.Warn().Err(err).Msg("refresh failed, ending session")
		m.endSession(ctx, events.ReasonRefreshFailed, false)
		return false
	}

	raw, err := m.gateway.Refresh(ctx, snapshot.RefreshToken)
	if err != nil {
		return fail(err)
	}
	b, err := m.accept(raw)
	if err != nil {
		return fail(err)
	}

	if err := m.lockIdle(ctx); err != nil {
		return m.IsLoggedIn()
	}

	// the session was replaced or ended while we were waiting for the server
	if !m.state.Current().Equal(snapshot) {
		m.mu.Unlock()
		l.Debug().Msg("session changed during refresh, discarding result")
		return m.IsLoggedIn()
	}

	if err := m.store.Persist(ctx, b); err != nil {
		m.mu.Unlock()
		return fail(fmt.Errorf("persisting refreshed session: %w", err))
	}
	m.state.Set(b)
	m.monitor.Arm()
	if b.Username != snapshot.Username {
		m.events.Publish(events.LoggedIn(b.Username, b.Authorities, m.now()))
	}
	m.mu.Unlock()

	l.Info().Time("expires_at", b.ExpiresAt).Msg("session.refreshed")
	return true
}

// CheckStatus asks the server whether it still honors the access token.
// A rejected token ends the session and reports false without error.
// Other failures are returned and leave the session as it is.
func (m *Manager) CheckStatus(ctx context.Context) (bool, error) {
	b := m.state.Current()
	if b == nil {
		return false, ErrNotLoggedIn
	}

	err := m.gateway.Status(ctx, b.AuthorizationHeader())
	switch {
	case err == nil:
		return true, nil
	case client.IsUnauthorized(err):
		m.logger.Info().Str("username", b.Username).Msg("server rejected the session")
		m.endSession(ctx, events.ReasonRejected, false)
		return false, nil
	default:
		return false, err
	}
}

// Validate re-runs the validator on the current bundle and ends the session
// without contacting the server if it is no longer usable.
func (m *Manager) Validate(ctx context.Context) error {
	b := m.state.Current()
	if b == nil {
		return ErrNotLoggedIn
	}
	if err := bundle.Validate(b, m.buffer, m.now()); err != nil {
		m.endSession(ctx, events.ReasonExpired, false)
		return &client.Error{Kind: client.KindSessionExpired, Err: err}
	}
	return nil
}

// Reconcile adopts a bundle another process wrote to the shared store.
// nil (or an unusable bundle) ends the local session. Only what the store
// holds once no cascade is running is adopted, b merely triggers the reload.
func (m *Manager) Reconcile(ctx context.Context, b *bundle.TokenBundle) {
	if b == nil || bundle.Validate(b, m.buffer, m.now()) != nil {
		if m.state.Current() != nil {
			m.logger.Info().Msg("stored session removed by another process")
			m.endSession(ctx, events.ReasonExternal, false)
		}
		return
	}

	if err := m.lockIdle(ctx); err != nil {
		return
	}
	defer m.mu.Unlock()

	b, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not reload stored session")
		return
	}
	if b == nil || bundle.Validate(b, m.buffer, m.now()) != nil {
		m.logger.Debug().Msg("stored session is gone, nothing to adopt")
		return
	}

	prev := m.state.Current()
	if prev.Equal(b) {
		return
	}
	m.state.Set(b)
	m.monitor.Arm()
	if prev == nil || prev.Username != b.Username {
		m.events.Publish(events.LoggedIn(b.Username, b.Authorities, m.now()))
	}
	m.logger.Info().Str("username", b.Username).Msg("adopted session from another process")
}

// IsLoggedIn reports whether a current bundle exists that passes both the
// structural and the temporal check. It has no side effects.
func (m *Manager) IsLoggedIn() bool {
	return bundle.Current(m.state.Current(), m.buffer, m.now())
}

// CurrentUser returns the identity of the session, false if anonymous.
func (m *Manager) CurrentUser() (bundle.User, bool) {
	b := m.state.Current()
	if !bundle.Current(b, m.buffer, m.now()) {
		return bundle.User{}, false
	}
	return b.User(), true
}

// Bundle returns a copy of the current bundle, nil if there is none.
func (m *Manager) Bundle() *bundle.TokenBundle {
	return m.state.Current()
}

// Phase returns the current state of the subsystem.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	loggingOut := m.loggingOut != nil
	authenticating := m.authenticating > 0
	m.mu.Unlock()

	switch {
	case loggingOut:
		return PhaseLoggingOut
	case m.IsLoggedIn():
		return PhaseAuthenticated
	case authenticating:
		return PhaseAuthenticating
	default:
		return PhaseAnonymous
	}
}

// CheckUsername checks locally and then with the server whether name is free.
func (m *Manager) CheckUsername(ctx context.Context, name string) (client.Availability, error) {
	return m.gateway.CheckUsername(ctx, name)
}

// CheckEmail checks locally and then with the server whether email is free.
func (m *Manager) CheckEmail(ctx context.Context, email string) (client.Availability, error) {
	return m.gateway.CheckEmail(ctx, email)
}

// Subscribe registers a consumer of login/logout events.
func (m *Manager) Subscribe() *events.Subscription {
	return m.events.Subscribe()
}

// SubscribeFunc calls fn for every login/logout event until unsubscribe is called.
func (m *Manager) SubscribeFunc(fn func(events.Event)) (unsubscribe func()) {
	return m.events.SubscribeFunc(fn)
}

// Buffer returns the safety margin applied by the temporal check.
func (m *Manager) Buffer() time.Duration {
	return m.buffer
}

// MonitorStatus returns a snapshot of the expiry monitor.
func (m *Manager) MonitorStatus() monitor.Status {
	return m.monitor.Status()
}

// accept validates a raw response body and turns it into a bundle.
func (m *Manager) accept(raw map[string]any) (*bundle.TokenBundle, error) {
	now := m.now()
	b, err := bundle.Decode(raw, now)
	if err != nil {
		return nil, &client.Error{Kind: client.KindMalformedResponse, Err: err}
	}
	if !bundle.TemporallyValid(b, m.buffer, now) {
		return nil, &client.Error{
			Kind:    client.KindSessionExpired,
			Message: fmt.Sprintf("issued bundle expires within %s", m.buffer),
		}
	}
	return b, nil
}

// lockIdle acquires mu once no cleanup cascade is running.
// On success the caller must unlock mu.
func (m *Manager) lockIdle(ctx context.Context) error {
	for {
		m.mu.Lock()
		done := m.loggingOut
		if done == nil {
			return nil
		}
		m.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// endSession runs the cleanup cascade: optional best-effort server call, then
// clear store, clear state, publish LoggedOut. It acts on whatever bundle is
// current when it runs. Concurrent callers join the running cascade.
func (m *Manager) endSession(ctx context.Context, reason events.Reason, notifyServer bool) {
	// local cleanup must not be aborted by a cancelled caller
	cleanupCtx := context.WithoutCancel(ctx)

	_, _, _ = m.ends.Do("end", func() (any, error) {
		m.mu.Lock()
		done := make(chan struct{})
		m.loggingOut = done
		m.monitor.Disarm()
		current := m.state.Current()
		m.mu.Unlock()

		l := m.logger.With().Str("reason", string(reason)).Logger()
		if current != nil {
			l = l.With().Str("username", current.Username).Logger()
		}

		if notifyServer && current != nil {
			if err := m.gateway.Logout(ctx, current.AuthorizationHeader()); err != nil {
				l.Warn().Err(err).Msg("server-side logout failed, continuing locally")
			}
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if err := m.store.Clear(cleanupCtx); err != nil {
			l.Error().Err(err).Msg("could not clear stored session")
		}
		prev := m.state.Clear()
		m.loggingOut = nil
		close(done)

		if prev != nil {
			m.events.Publish(events.LoggedOut(reason, m.now()))
			l.Info().Msg("session.logged_out")
		}
		return nil, nil
	})
}
