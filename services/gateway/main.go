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
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Str("service", "gateway").Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using environment")
	}
	cfg := loadConfig()
	log.Info().Str("addr", cfg.HTTPAddr).Str("order_url", cfg.OrderURL).Msg("starting api gateway")

	srv := NewServer(cfg, log.Logger)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Msg("http listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
