package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/cncbridge/internal/auth"
	"github.com/skobkin/cncbridge/internal/bus"
	"github.com/skobkin/cncbridge/internal/config"
	"github.com/skobkin/cncbridge/internal/connectors"
	"github.com/skobkin/cncbridge/internal/controller"
	"github.com/skobkin/cncbridge/internal/gateway"
	"github.com/skobkin/cncbridge/internal/logging"
	"github.com/skobkin/cncbridge/internal/notifications"
	"github.com/skobkin/cncbridge/internal/persistence"
	"github.com/skobkin/cncbridge/internal/transport"
)

// Options tune Initialize. The zero value loads the config from the user config dir.
type Options struct {
	// Paths overrides ResolvePaths.
	Paths *Paths
	// ConfigFile overrides Paths.ConfigFile.
	ConfigFile string
	// Override is applied to the loaded config before validation.
	Override func(*config.AppConfig)
	// Sender overrides the desktop notification backend.
	Sender notifications.Sender
}

type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	JournalRepo *persistence.JournalRepo
	WriterQueue *persistence.WriterQueue
	Journal     *JournalRecorder

	Link       transport.Link
	Client     *gateway.Client
	Controller *controller.Controller

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool

	closeOnce sync.Once
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := resolveRuntimePaths(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	build := CurrentBuild()
	slog.Info("starting cncbridge runtime", "version", build.Version, "build_date", build.DateYMD(), "commit", build.Commit)

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	rt.setConnStatus(ConnectionStatusFromConfig(cfg.Connection))
	connSub := b.Subscribe(connectors.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)

	if cfg.Journal.Enabled {
		if err := rt.startJournal(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	codec, err := gateway.NewCodec(cfg.Connection.Codec)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize codec: %w", err)
	}
	link, err := NewLink(cfg.Connection)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	rt.Link = link

	var clientOpts []gateway.Option
	if strings.TrimSpace(cfg.Auth.Secret) != "" {
		ttl, _ := cfg.Auth.TTL()
		signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.Subject, ttl)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("initialize token signer: %w", err)
		}
		clientOpts = append(clientOpts, gateway.WithTokenSource(signer))
	}

	rt.Client = gateway.NewClient(logMgr.Logger("gateway"), b, link, codec, clientOpts...)
	rt.Controller = rt.NewController(cfg.Controller.Port, cfg.Controller.BaudRate)

	sender := opts.Sender
	if sender == nil && cfg.Notifications.Enabled {
		sender = notifications.NewBeeepSender(Name, logMgr.Logger("notifications"))
	}
	NewNotificationService(b, rt.Controller, cfg.Notifications, sender, logMgr.Logger("app.notifications")).Start(ctx)

	rt.Client.Start(ctx)

	return rt, nil
}

func resolveRuntimePaths(opts Options) (Paths, error) {
	var (
		paths Paths
		err   error
	)
	if opts.Paths != nil {
		paths = *opts.Paths
	} else if paths, err = ResolvePaths(); err != nil {
		return Paths{}, err
	}
	if opts.ConfigFile != "" {
		paths.ConfigFile = opts.ConfigFile
	}

	return paths, nil
}

func (r *Runtime) startJournal(ctx context.Context) error {
	db, err := persistence.Open(ctx, r.Paths.DBFile)
	if err != nil {
		return err
	}
	r.DB = db
	r.JournalRepo = persistence.NewJournalRepo(db)

	r.WriterQueue = persistence.NewWriterQueue(r.LogManager.Logger("persistence"), JournalQueueSize)
	r.WriterQueue.Start(ctx)
	r.Journal = NewJournalRecorder(r.Bus, r.WriterQueue, r.JournalRepo, r.Config.Journal.RetentionDays, r.LogManager.Logger("app.journal"))
	r.Journal.Start(ctx)

	return nil
}

// NewController builds a controller bound to a gateway-side port over the runtime client.
// The caller owns it; controllers are released by Close only when created by Initialize.
func (r *Runtime) NewController(port string, baudRate int) *controller.Controller {
	return controller.New(r.Client, port, baudRate, controller.WithLogger(r.LogManager.Logger("controller")))
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

// Flush waits for queued gateway messages and journal writes.
func (r *Runtime) Flush(ctx context.Context) error {
	if r.Client != nil {
		if err := r.Client.Drain(ctx); err != nil {
			return fmt.Errorf("drain gateway outbox: %w", err)
		}
	}
	if r.Journal != nil {
		if err := r.Journal.Sync(ctx); err != nil {
			return fmt.Errorf("flush journal: %w", err)
		}
	} else if r.WriterQueue != nil {
		if err := r.WriterQueue.WaitContext(ctx); err != nil {
			return fmt.Errorf("flush journal: %w", err)
		}
	}

	return nil
}

func (r *Runtime) ClearJournal(ctx context.Context) error {
	if r.DB == nil {
		return errors.New("journal is disabled")
	}
	if err := persistence.ClearJournal(ctx, r.DB); err != nil {
		return err
	}
	slog.Info("journal cleared")

	return nil
}

// Close unwinds Initialize in reverse order. Safe to call more than once.
func (r *Runtime) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		if r.Controller != nil {
			r.Controller.Release()
		}
		if r.cancel != nil {
			r.cancel()
		}
		if r.Link != nil {
			_ = r.Link.Close()
		}
		if r.Bus != nil {
			r.Bus.Close()
		}
		if r.DB != nil {
			if err := r.DB.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close journal db: %w", err))
			}
		}
		if r.LogManager != nil {
			if err := r.LogManager.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close log manager: %w", err))
			}
		}
	})

	return closeErr
}
