package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/pillpal/internal/config"
	"github.com/vbonduro/pillpal/internal/db"
	"github.com/vbonduro/pillpal/internal/imagestore"
	"github.com/vbonduro/pillpal/internal/imagestore/local"
	"github.com/vbonduro/pillpal/internal/imagestore/memory"
	"github.com/vbonduro/pillpal/internal/session"
	"github.com/vbonduro/pillpal/internal/store"
	"github.com/vbonduro/pillpal/internal/web"
	"github.com/vbonduro/pillpal/internal/web/templates"
)

func newServeCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := load(ctx, false)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	images, err := newImageStore(a.cfg)
	if err != nil {
		return err
	}

	var snapshots session.SnapshotStore
	if a.cfg.SessionDBPath != "" {
		database, err := db.Open(a.cfg.SessionDBPath)
		if err != nil {
			return fmt.Errorf("failed to open session database: %w", err)
		}
		defer func() { _ = database.Close() }()
		snapshots = store.NewSnapshotStore(database)
		a.logger.Info("session snapshots enabled", "path", a.cfg.SessionDBPath)
	}

	registry := session.NewRegistry(session.Deps{
		Identifier: a.identifier,
		Replier:    a.conversation,
		Images:     images,
		Prompts:    a.prompts,
		Logger:     a.logger,
	}, snapshots, a.cfg.SessionTTL)

	srv := web.NewServer(web.Options{
		Sessions:       registry,
		Images:         images,
		Decoder:        a.decoder,
		Identifier:     a.identifier,
		Replier:        a.conversation,
		Prompts:        a.prompts,
		Templates:      templates.FS,
		AllowedOrigins: a.cfg.AllowedOrigins,
		Logger:         a.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, a.cfg.ListenAddr) })
	g.Go(func() error { return registry.Run(gctx, a.cfg.SweepInterval()) })
	return g.Wait()
}

func newImageStore(cfg *config.Config) (imagestore.Store, error) {
	switch cfg.ImageBackend {
	case "memory", "":
		return memory.New(), nil
	case "local":
		s, err := local.New(cfg.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create image store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", cfg.ImageBackend)
	}
}
