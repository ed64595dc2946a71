package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/darmiel/taskdeck/internal/config"
	"github.com/darmiel/taskdeck/internal/credstore"
	"github.com/darmiel/taskdeck/internal/session"
	"github.com/darmiel/taskdeck/pkg/client"
)

// Factory builds the components a command needs from the resolved configuration.
// Everything is created lazily and at most once per invocation.
type Factory struct {
	v *viper.Viper

	cfg     *config.Client
	store   credstore.Store
	manager *session.Manager
	closers []func() error
}

func NewFactory(v *viper.Viper) *Factory {
	return &Factory{v: v}
}

func (f *Factory) Config() (*config.Client, error) {
	if f.cfg != nil {
		return f.cfg, nil
	}
	cfg, err := config.FromViper(f.v)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	f.cfg = cfg
	return cfg, nil
}

// Store opens the configured credential store.
func (f *Factory) Store(ctx context.Context) (credstore.Store, error) {
	if f.store != nil {
		return f.store, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Type {
	case config.StoreSQLite:
		s, err := credstore.OpenSQLiteStore(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, s.Close)
		f.store = s
	default:
		f.store = credstore.NewFileStore(cfg.Store.Path)
	}
	log.Debug().
		Str("type", string(cfg.Store.Type)).
		Str("path", cfg.Store.Path).
		Msg("opened credential store")
	return f.store, nil
}

// GetClient returns a client for the configured server.
func (f *Factory) GetClient() (*client.Client, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireAddr(); err != nil {
		return nil, err
	}
	return client.New(cfg.Addr, client.WithHTTPClient(&http.Client{
		Timeout: cfg.HTTP.Timeout,
	})), nil
}

// Manager returns a started session manager talking to the configured server.
func (f *Factory) Manager(ctx context.Context) (*session.Manager, error) {
	cli, err := f.GetClient()
	if err != nil {
		return nil, err
	}
	return f.buildManager(ctx, cli)
}

// LocalManager returns a started session manager for commands that only
// inspect the stored session. It works without a server address.
func (f *Factory) LocalManager(ctx context.Context) (*session.Manager, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	return f.buildManager(ctx, client.New(cfg.Addr))
}

func (f *Factory) buildManager(ctx context.Context, gateway session.Gateway) (*session.Manager, error) {
	if f.manager != nil {
		return f.manager, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	store, err := f.Store(ctx)
	if err != nil {
		return nil, err
	}

	m := session.New(gateway, store,
		session.WithBuffer(cfg.Session.Buffer),
		session.WithMonitorInterval(cfg.Session.MonitorInterval),
	)
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	f.closers = append(f.closers, func() error {
		m.Close()
		return nil
	})
	f.manager = m
	return m, nil
}

// Watch reconciles m with changes other processes make to the credential file.
// It is a no-op for stores that cannot be watched.
func (f *Factory) Watch(ctx context.Context, m *session.Manager) error {
	store, err := f.Store(ctx)
	if err != nil {
		return err
	}
	fs, ok := store.(*credstore.FileStore)
	if !ok {
		log.Debug().Msg("credential store cannot be watched, skipping cross-process sync")
		return nil
	}

	w, err := credstore.NewWatcher(fs, credstore.DefaultDebounce, m.Reconcile)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Close()
		return err
	}
	f.closers = append(f.closers, w.Close)
	return nil
}

// Close releases everything the factory opened, in reverse order.
func (f *Factory) Close() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			log.Debug().Err(err).Msg("closing resource")
		}
	}
	f.closers = nil
}
