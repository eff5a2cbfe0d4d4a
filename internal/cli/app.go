package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/rainforce/smbclient/internal/config"
	"github.com/rainforce/smbclient/internal/credentials"
	"github.com/rainforce/smbclient/internal/diskspace"
	"github.com/rainforce/smbclient/internal/history"
	"github.com/rainforce/smbclient/internal/localfs"
	"github.com/rainforce/smbclient/internal/logging"
	"github.com/rainforce/smbclient/internal/metrics"
	"github.com/rainforce/smbclient/internal/remote"
	"github.com/rainforce/smbclient/internal/remote/smb"
	"github.com/rainforce/smbclient/internal/session"
	"github.com/rainforce/smbclient/internal/transfer"
)

// app bundles the collaborators one command invocation needs.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   credentials.Store
	local   *localfs.Storage
	osFS    bool // local paths are resolved against the working directory
	ctrl    *session.Controller
	journal *history.Store // nil when the journal is disabled
	metrics *metrics.Metrics

	out    io.Writer
	errOut io.Writer

	stopMetrics context.CancelFunc
}

// appDeps are the capabilities an app is assembled from.
type appDeps struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   credentials.Store
	remote  remote.Service
	local   *localfs.Storage
	journal *history.Store
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer

	spaceCheck func(folderRef string, size int64) error
}

// newApp loads the configuration and wires the production stack: the
// sealed credential file, the SMB adapter, the OS filesystem, the SQLite
// journal and, when configured, the metrics listener.
func newApp(ctx context.Context) (*app, error) {
	log := GetLogger()

	cfg, err := config.Load(config.NewViper(), cfgFile)
	if err != nil {
		return nil, err
	}
	if !verbose {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	}

	if err := config.EnsureConfigDirectory(); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	store, err := credentials.OpenFileStore(cfg.CredentialsFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	var journal *history.Store
	if cfg.HistoryDB != "" {
		journal, err = history.Open(cfg.HistoryDB)
		if err != nil {
			// Transfers still work without a journal
			log.Warn().Err(err).Str("path", cfg.HistoryDB).Msg("Transfer history disabled")
			journal = nil
		}
	}

	m := metrics.NewMetrics()

	a := assembleApp(appDeps{
		cfg:     cfg,
		logger:  log,
		store:   store,
		remote:  smb.New(smb.Options{DialTimeout: cfg.DialTimeout, UseProxy: cfg.UseProxy, Logger: log}),
		local:   localfs.NewOS(),
		journal: journal,
		metrics: m,
		out:     os.Stdout,
		errOut:  os.Stderr,

		spaceCheck: diskspace.Check,
	})

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := m.Serve(metricsCtx, cfg.MetricsAddr, log); err != nil {
				log.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics listener stopped")
			}
		}()
	}

	return a, nil
}

func assembleApp(d appDeps) *app {
	if d.logger == nil {
		d.logger = logging.Nop()
	}
	if d.out == nil {
		d.out = io.Discard
	}
	if d.errOut == nil {
		d.errOut = io.Discard
	}
	maxConcurrent := 0
	if d.cfg != nil {
		maxConcurrent = d.cfg.MaxConcurrent
	}

	opts := session.Options{
		MaxConcurrent: maxConcurrent,
		Logger:        d.logger,
		Metrics:       d.metrics,
		SpaceCheck:    d.spaceCheck,
	}
	// A nil *history.Store must not become a non-nil interface
	if d.journal != nil {
		opts.Journal = transfer.Journal(d.journal)
	}

	_, osFS := d.local.Fs().(*afero.OsFs)

	return &app{
		cfg:     d.cfg,
		logger:  d.logger,
		store:   d.store,
		local:   d.local,
		osFS:    osFS,
		ctrl:    session.NewController(d.store, d.remote, d.local, opts),
		journal: d.journal,
		metrics: d.metrics,
		out:     d.out,
		errOut:  d.errOut,
	}
}

// Close stops the controller, waits for its transfers and releases the
// journal.
func (a *app) Close() {
	if err := a.ctrl.Close(); err != nil {
		a.logger.Debug().Err(err).Msg("Controller close")
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close transfer history")
		}
	}
}

// withApp builds an app for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := GetContext()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
