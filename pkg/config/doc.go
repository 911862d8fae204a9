// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv (optional .env file) and
// github.com/caarlos0/env/v11 (struct tag parsing). Every package in this
// module exposes a Config struct with `env` tags; cmd/notifyd loads them with
// Load or MustLoad at startup.
package config
