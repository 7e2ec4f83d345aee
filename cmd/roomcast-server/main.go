package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomcast/internal/adapters/command"
	router "github.com/dkeye/roomcast/internal/adapters/http"
	"github.com/dkeye/roomcast/internal/adapters/transport"
	"github.com/dkeye/roomcast/internal/app/orch"
	"github.com/dkeye/roomcast/internal/app/workers"
	"github.com/dkeye/roomcast/internal/auth"
	"github.com/dkeye/roomcast/internal/blob"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/metrics"
	"github.com/dkeye/roomcast/internal/store/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("bad log level")
	}
	cfg.Watch(func(next *config.Config) {
		if err := config.ApplyLogLevel(next.LogLevel); err != nil {
			log.Warn().Err(err).Str("level", next.LogLevel).Msg("bad log level")
		}
	})

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	tlsCfg, err := loadTLS(cfg.TLS)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	blobs, err := openBlobs(cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	o := orch.New(m)
	disp := command.New(command.Deps{
		Orch:    o,
		Store:   store,
		Auth:    auth.NewScrypt(),
		Blobs:   blobs,
		Pool:    workers.New(cfg.DBWorkers),
		Metrics: m,
	})
	srv := &transport.Server{
		Orch:         o,
		Dispatcher:   disp,
		Metrics:      m,
		SendQueue:    cfg.SendQueue,
		MaxFrameSize: cfg.MaxFrameSize,

		AllowedOrigins: cfg.WS.Origins,
	}
	// The ops API and /ws carry credentials, so they share the chat certificate.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.SetupRouter(cfg, router.Deps{Orch: o, Gatherer: reg, WS: srv.HandleWS}),
		TLSConfig:         tlsCfg.Clone(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServeTLS(gctx, cfg.ListenAddr, tlsCfg)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")
		if err := httpSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server forced to shutdown")
		}
		srv.Shutdown()
		return nil
	})
	return g.Wait()
}

func loadTLS(c config.TLSConfig) (*tls.Config, error) {
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("tls.cert_file and tls.key_file are required")
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func openBlobs(c config.BlobConfig) (core.BlobStore, error) {
	switch c.Backend {
	case "s3":
		return blob.NewS3(blob.S3Config{
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			Prefix:    c.S3.Prefix,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		})
	default:
		return blob.NewDisk(c.Dir)
	}
}
