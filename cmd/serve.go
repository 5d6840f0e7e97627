package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/geocoding"
	"github.com/sells-group/recordmap/internal/host"
	"github.com/sells-group/recordmap/internal/resilience"
	"github.com/sells-group/recordmap/internal/server"
	"github.com/sells-group/recordmap/internal/session"
	"github.com/sells-group/recordmap/internal/tiles"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map session over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		h, err := initHost(ctx)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		srv, cleanup, err := buildServer(ctx, h)
		if err != nil {
			return err
		}
		defer cleanup()

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildServer wires a session over h and loads the main table into it. A
// finished scan that resolved positions reloads the table so the new
// markers appear.
func buildServer(ctx context.Context, h host.Host) (*server.Server, func(), error) {
	client, cleanup, err := initGeocoder()
	if err != nil {
		return nil, nil, err
	}

	var srv *server.Server
	scanner := geocoding.NewScanner(client, h, geocoding.WithOnComplete(func(res geocoding.ScanResult, err error) {
		if err != nil {
			zap.L().Warn("geocoding scan ended early", zap.Error(err))
		}
		if res.Resolved == 0 {
			return
		}
		if err := srv.Reload(ctx); err != nil {
			zap.L().Warn("reload after geocoding failed", zap.Error(err))
		}
	}))

	sess := session.New(ctx, session.Deps{
		Tables:     h,
		Labels:     h,
		Cursor:     h,
		Scanner:    scanner,
		MaxFitZoom: cfg.Widget.MaxFitZoom,
		Retry:      resilience.DefaultRetryConfig(),
	}, sessionOptions())

	proxy, err := tiles.NewProxy(cfg.Widget.MapSource,
		tiles.WithCache(tiles.NewCache(cfg.Tiles.CacheEntries, cfg.Tiles.CacheTTL())),
		tiles.WithUserAgent(cfg.Geocode.UserAgent),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	opts := []server.Option{server.WithTiles(proxy), server.WithSource(h, hostMapping())}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORSOrigins(cfg.Server.CORSOrigins))
	}
	srv = server.New(sess, opts...)

	var renderErr *session.RenderError
	if err := srv.Reload(ctx); err != nil {
		if !errors.As(err, &renderErr) {
			cleanup()
			return nil, nil, eris.Wrap(err, "initial load")
		}
		zap.L().Warn("map not rendered", zap.String("reason", renderErr.Message))
	}
	zap.L().Info("session ready", zap.String("session_id", sess.ID()), zap.Bool("write_back", h.CanWrite()))
	return srv, cleanup, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
