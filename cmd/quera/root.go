package main

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rawewhat/quera/store"
)

// rootOptions carries the resolved configuration and the shared store
// client to every subcommand.
type rootOptions struct {
	configFile string
	v          *viper.Viper

	logger *slog.Logger
	client store.Client
	close  func() error
}

func newRootCommand() *cobra.Command {
	return buildRoot(&rootOptions{v: viper.New()})
}

// buildRoot wires the command tree around opts. A client already set on
// opts is used as is, which lets tests run commands against a seeded
// MemoryStore.
func buildRoot(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quera",
		Short: "Live CRUD over document collections",
		Long: `quera exposes document collections as live record sets. It serves
them over HTTP and WebSocket, reads them once, or watches them for changes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: ./quera.yaml or $HOME/.quera/quera.yaml)")
	flags.String("backend", backendMemory, "store backend (memory|firestore)")
	flags.String("project", "", "Google Cloud project for the firestore backend")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	_ = opts.v.BindPFlag(cfgKeyBackend, flags.Lookup("backend"))
	_ = opts.v.BindPFlag(cfgKeyProject, flags.Lookup("project"))
	_ = opts.v.BindPFlag(cfgKeyLogLevel, flags.Lookup("log-level"))

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newReadCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	if err := loadConfig(o.v, o.configFile); err != nil {
		return err
	}

	level, err := parseLevel(o.v.GetString(cfgKeyLogLevel))
	if err != nil {
		return err
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if o.client != nil {
		return nil
	}
	return o.open(cmd.Context())
}

// open connects the configured backend.
func (o *rootOptions) open(ctx context.Context) error {
	switch backend := o.v.GetString(cfgKeyBackend); backend {
	case backendMemory:
		o.client = store.NewMemoryStore()
	case backendFirestore:
		project := o.v.GetString(cfgKeyProject)
		if project == "" {
			return fmt.Errorf("backend %s: project is required", backend)
		}
		fs, err := firestore.NewClient(ctx, project)
		if err != nil {
			return fmt.Errorf("connect firestore: %w", err)
		}
		o.client = store.NewFirestoreStore(fs)
		o.close = fs.Close
	default:
		return fmt.Errorf("unknown backend %q: must be %s or %s", backend, backendMemory, backendFirestore)
	}
	o.logger.Debug("store opened", "backend", o.v.GetString(cfgKeyBackend))
	return nil
}

func (o *rootOptions) teardown() error {
	if o.close == nil {
		return nil
	}
	err := o.close()
	o.close = nil
	return err
}
