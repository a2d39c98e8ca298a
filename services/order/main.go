package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mateovel/shoply/internal/bus"
	"github.com/mateovel/shoply/internal/dedup"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Str("service", "order").Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using environment")
	}
	cfg := loadConfig()
	log.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Str("rabbit", cfg.RabbitURL).Msg("starting order service")

	repo, err := NewRepository(cfg.DBPath)
	must(err)
	defer repo.Close()

	client, err := bus.Dial(cfg.RabbitURL, cfg.Exchange, log.Logger)
	must(err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(repo, client, dedup.New(cfg.DedupSize, cfg.DedupTTL), log.Logger)
	must(srv.StartUpdatesConsumer(ctx, client, cfg))
	log.Info().Msg("order-updates consumer started")

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info().Msg("http listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
