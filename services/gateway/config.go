package main

import (
	"os"
	"time"
)

type Config struct {
	HTTPAddr string
	OrderURL string

	CheckoutTimeout time.Duration
	LookupTimeout   time.Duration
}

func loadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("GATEWAY_HTTP_ADDR", ":8000"),
		OrderURL:        getEnv("ORDER_SERVICE_URL", "http://localhost:8001"),
		CheckoutTimeout: getEnvDuration("CHECKOUT_TIMEOUT", 10*time.Second),
		LookupTimeout:   getEnvDuration("LOOKUP_TIMEOUT", 5*time.Second),
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
