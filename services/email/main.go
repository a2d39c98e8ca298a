package main

import (
	"context"
	"encoding/json"
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
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Str("service", "email").Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using environment")
	}
	cfg := loadConfig()
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("rabbit", cfg.RabbitURL).
		Str("smtp", cfg.SMTPAddr).
		Msg("starting email service")

	client, err := bus.Dial(cfg.RabbitURL, cfg.Exchange, log.Logger)
	must(err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker(
		newSMTPSender(cfg.SMTPAddr, cfg.From, cfg.SendDelay),
		client,
		dedup.New(cfg.DedupSize, cfg.DedupTTL),
		log.Logger,
	)
	must(worker.Start(ctx, client, cfg))
	log.Info().Msg("email consumer started")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service":  "email-service",
			"status":   "healthy",
			"consumer": "running",
		})
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

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
