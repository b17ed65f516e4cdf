// Package cli implements fleetctl, a terminal client that keeps a fleet
// dashboard session on disk and talks to the backend with it.
package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/session"
	"fleet-dashboard/internal/storage"
)

// app is what every command works with once the config is loaded.
type app struct {
	cfg     *Config
	logger  *zap.Logger
	client  *backend.Client
	store   storage.Storage
	manager *session.Manager
}

type options struct {
	configPath string
	role       string
	verbose    bool
}

// NewRootCmd builds the fleetctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	var a *app

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Fleet dashboard session client",
		Long: `fleetctl signs in to the fleet backend and keeps the session in
~/.fleetctl, refreshing the token the same way the dashboard does.

Examples:
  fleetctl login --username ops --password secret --manager fleetco --role manager
  fleetctl whoami
  fleetctl settings set language de
  fleetctl rpc customer.list`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(opts)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&opts.role, "role", "", "session role: user or manager (default from config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	current := func() *app { return a }
	root.AddCommand(
		newLoginCmd(current),
		newWhoamiCmd(current),
		newRefreshCmd(current),
		newLogoutCmd(current),
		newSettingsCmd(current),
		newRPCCmd(current),
		newWatchCmd(current),
	)
	return root
}

// ExecuteContext runs fleetctl with os.Args.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newApp(opts *options) (*app, error) {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.role != "" {
		cfg.Role = opts.role
	}
	if _, err := cfg.UserRole(); err != nil {
		return nil, err
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend_url is not set in %s", cfg.path)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	lg, err := logger.New(level)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFile(cfg.StorageDir())
	if err != nil {
		return nil, err
	}

	client := backend.New(cfg.BackendURL, backend.WithLogger(lg), backend.WithTimeout(cfg.Timeout))
	m := session.NewManager(session.Options{
		Device:         cfg.Device,
		Tab:            "fleetctl-" + uuid.NewString()[:8],
		Storage:        store,
		Auth:           client,
		SettingsRemote: client,
		Sealer:         session.NewSealer(cfg.SealKey),
		Lead:           cfg.RefreshLead,
		Logger:         lg,
	})
	return &app{cfg: cfg, logger: lg, client: client, store: store, manager: m}, nil
}

// restore loads the stored session of the configured role.
func (a *app) restore(ctx context.Context) (session.Record, error) {
	if err := a.manager.Restore(ctx); err != nil {
		return session.Record{}, err
	}
	rec, ok := a.manager.Session()
	if !ok {
		return session.Record{}, fmt.Errorf("%w, run fleetctl login", session.ErrNoSession)
	}
	want, _ := a.cfg.UserRole()
	if rec.Role != want {
		return session.Record{}, fmt.Errorf("stored session is for role %s, not %s", rec.Role, want)
	}
	return rec, nil
}

func (a *app) role() models.UserRole {
	r, _ := a.cfg.UserRole()
	return r
}

func (a *app) close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Debug("closing storage failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
