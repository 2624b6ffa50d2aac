package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"genrelay/internal/config"
	"genrelay/internal/gateway"
	"genrelay/internal/httpapi"
	"genrelay/internal/logx"
	"genrelay/internal/upstream"
)

// runServe serves until ctx is canceled or SIGINT/SIGTERM arrives, then shuts
// down gracefully within the configured budget.
func runServe(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg := logx.New(cfg.LogLevel, cfg.LogFormat, logOut)

	client := upstream.New(upstream.Options{
		URL:            cfg.UpstreamURL,
		APIKey:         cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout(),
		IdleTimeout:    cfg.IdleTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         &lg,
	})
	defer client.Close()
	gw := gateway.New(client, &lg)

	mux := httpapi.NewMux(gw, httpapi.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		BaseContext:  ctx,
		Logger:       &lg,
		LogLevel:     httpapi.LevelFor(lg.GetLevel()),
		CORS: httpapi.CORSOptions{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
		},
	})

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info().Str("addr", ln.Addr().String()).Str("upstream", cfg.UpstreamURL).Msg("genrelay listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Warn().Err(err).Msg("graceful shutdown error")
			return err
		}
		lg.Info().Msg("genrelay stopped")
		return nil
	})
	return g.Wait()
}
