// Package daemon composes the client core: every provider, the dependency
// graph between them, and the lifecycle hooks that start and stop the pieces
// in order.
package daemon

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/lcrispim/hush/internal/bus"
	"github.com/lcrispim/hush/internal/config"
	"github.com/lcrispim/hush/internal/coordinator"
	"github.com/lcrispim/hush/internal/draft"
	"github.com/lcrispim/hush/internal/keyring"
	"github.com/lcrispim/hush/internal/lock"
	"github.com/lcrispim/hush/internal/logging"
	"github.com/lcrispim/hush/internal/relay"
	"github.com/lcrispim/hush/internal/session"
	"github.com/lcrispim/hush/internal/status"
	"github.com/lcrispim/hush/internal/store"
	intsync "github.com/lcrispim/hush/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	// Passphrase unlocks the profile at startup. Empty means start locked;
	// drafts stay ephemeral until a later login.
	Passphrase string
	// RelayURL overrides config.toml, used by tests.
	RelayURL string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			providePhaseMachine,
			provideLock,
			provideStore,
			provideSessionContext,
			provideKeyring,
			provideRelayClient,
			provideSender,
			provideSyncEngine,
			provideDraftManager,
			provideCoordinator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig(p Params, logger *zap.Logger) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		logger.Info("no config file, using defaults", zap.Error(err))
		cfg = &config.Config{RelayURL: config.DefaultRelayURL, ReconnectMaxSeconds: 30}
	}
	if p.RelayURL != "" {
		cfg.RelayURL = p.RelayURL
	}
	return cfg
}

func providePhaseMachine(b *bus.Bus) *status.PhaseMachine {
	return status.NewPhaseMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.StorePath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSessionContext(p Params) *session.Context {
	return session.NewContext(p.Profile)
}

func provideKeyring(db *store.DB, sess *session.Context) *keyring.Keyring {
	return keyring.New(db, sess)
}

func provideRelayClient(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *relay.Client {
	maxInterval := time.Duration(cfg.ReconnectMaxSeconds) * time.Second
	return relay.NewClient(cfg.RelayURL, maxInterval, b, logger)
}

// provideSender exposes the relay client behind the narrow send interface the
// engine and coordinator depend on.
func provideSender(client *relay.Client) intsync.Sender {
	return client
}

func provideSyncEngine(db *store.DB, b *bus.Bus, phases *status.PhaseMachine, sess *session.Context, sender intsync.Sender, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, phases, sess, sender, logger)
}

func provideDraftManager(db *store.DB, sess *session.Context, keys *keyring.Keyring, logger *zap.Logger) *draft.Manager {
	return draft.NewManager(db, sess, keys, logger)
}

func provideCoordinator(cfg *config.Config, db *store.DB, b *bus.Bus, engine *intsync.Engine, sender intsync.Sender, keys *keyring.Keyring, drafts *draft.Manager, logger *zap.Logger) *coordinator.Coordinator {
	coord := coordinator.New(db, b, engine, sender, keys, drafts, logger)
	coord.SetPersistDebounce(time.Duration(cfg.PersistDebounceMs) * time.Millisecond)
	return coord
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, client *relay.Client, engine *intsync.Engine, coord *coordinator.Coordinator, sess *session.Context, drafts *draft.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Pending active-chat flushes revalidate against the pin.
			engine.SetActivePinFunc(coord.ActivePin)

			engine.Start(context.Background())
			coord.Start(context.Background())

			if p.Passphrase != "" {
				if err := unlock(p, sess, drafts, logger); err != nil {
					logger.Error("unlock failed, starting locked", zap.Error(err))
				}
			} else {
				logger.Info("no passphrase supplied, starting locked")
			}

			// Local cache first, relay traffic after.
			engine.Bootstrap(context.Background())
			client.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			client.Stop()
			coord.Stop()
			engine.Stop()
			sess.Logout()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// unlock derives the master key from the passphrase and the profile salt,
// authenticates the session, and migrates any ephemeral drafts.
func unlock(p Params, sess *session.Context, drafts *draft.Manager, logger *zap.Logger) error {
	salt, err := loadOrCreateSalt(p.Profile)
	if err != nil {
		return err
	}
	key := session.DeriveMasterKey([]byte(p.Passphrase), salt)
	if err := sess.Login(key); err != nil {
		return err
	}
	drafts.MigrateEphemeral()
	logger.Info("profile unlocked", zap.String("profile", p.Profile))
	return nil
}

// loadOrCreateSalt reads the profile's key-derivation salt, generating it on
// first run. The salt is not secret, only unique per profile.
func loadOrCreateSalt(profile string) ([]byte, error) {
	path := filepath.Join(session.Dir(profile), "salt")
	if salt, err := os.ReadFile(path); err == nil && len(salt) > 0 {
		return salt, nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, err
	}
	return salt, nil
}
