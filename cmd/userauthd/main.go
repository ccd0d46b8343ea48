// Command userauthd runs the identity service over HTTP.
//
// Configuration comes from environment variables (a .env file is loaded
// when present):
//
//	LISTEN_ADDR          listen address (default :8080)
//	DATABASE_URL         postgres DSN (required unless -dev)
//	REDIS_ADDR           redis address (default localhost:6379)
//	REDIS_PASSWORD       redis password (optional)
//	PRIVATE_KEY_FILE     transport private key PEM path (default private.pem)
//	PUBLIC_KEY_FILE      transport public key PEM path (default public.pem)
//	TOKEN_TTL            token lifetime (default 24h)
//	SESSION_TTL          session lifetime (default 168h)
//	BCRYPT_COST          password hashing cost (default 12)
//	CODE_TTL             verification code lifetime (default 5m)
//	SMTP_ADDR            mail relay host:port (empty selects log-only mode)
//	SMTP_FROM            sender address
//	SMTP_USERNAME        relay credentials
//	SMTP_PASSWORD        relay credentials
//	LOG_LEVEL            debug, info, warn or error (default info)
//
// The -genkeys flag writes a fresh key pair to the configured paths and
// exits. The -dev flag runs with an in-memory store, an embedded redis
// and log-only mail delivery, needing no external services.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/luminet/userauth"
	"github.com/luminet/userauth/httpapi"
	"github.com/luminet/userauth/mail"
	"github.com/luminet/userauth/store/memory"
	"github.com/luminet/userauth/store/postgres"
	"github.com/luminet/userauth/transport"
)

func main() {
	genKeys := flag.Bool("genkeys", false, "generate a transport key pair and exit")
	dev := flag.Bool("dev", false, "run with in-memory store, embedded redis and log-only mail")
	flag.Parse()

	godotenv.Load()

	log := newLogger(getEnv("LOG_LEVEL", "info"))

	if err := run(log, *genKeys, *dev); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, genKeys, dev bool) error {
	privPath := getEnv("PRIVATE_KEY_FILE", "private.pem")
	pubPath := getEnv("PUBLIC_KEY_FILE", "public.pem")

	if genKeys {
		if err := transport.WriteKeyPair(privPath, pubPath, 0); err != nil {
			return fmt.Errorf("generate keys: %w", err)
		}
		log.Info("key pair written", "private", privPath, "public", pubPath)
		return nil
	}

	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	privPEM, pubPEM, err := loadKeyPair(privPath, pubPath, dev)
	if err != nil {
		return err
	}

	builder := userauth.New().
		WithConfig(cfg).
		WithKeyPair(privPEM, pubPEM).
		WithLogger(log)

	var closers []func() error

	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		closers = append(closers, func() error { mr.Close(); return nil })

		cfg.Verification.LogOnly = true
		builder.
			WithConfig(cfg).
			WithStore(memory.New()).
			WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		log.Info("development mode: in-memory store, embedded redis, log-only mail")
	} else {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return err
		}
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		client := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		closers = append(closers, client.Close)

		builder.WithStore(store).WithRedis(client)

		if smtpAddr := os.Getenv("SMTP_ADDR"); smtpAddr != "" {
			mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
				Addr:     smtpAddr,
				From:     os.Getenv("SMTP_FROM"),
				Username: os.Getenv("SMTP_USERNAME"),
				Password: os.Getenv("SMTP_PASSWORD"),
			})
			if err != nil {
				return err
			}
			builder.WithMailer(mailer)
		} else {
			cfg.Verification.LogOnly = true
			builder.WithConfig(cfg)
			log.Warn("SMTP_ADDR not set, verification codes go to the log")
		}
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	svc, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := httpapi.NewServer(svc, getEnv("LISTEN_ADDR", ":8080"), log)
	return server.Start()
}

// loadKeyPair reads the configured PEM files; in dev mode a missing pair
// is generated on the fly instead.
func loadKeyPair(privPath, pubPath string, dev bool) ([]byte, []byte, error) {
	privPEM, privErr := os.ReadFile(privPath)
	pubPEM, pubErr := os.ReadFile(pubPath)
	if privErr == nil && pubErr == nil {
		return privPEM, pubPEM, nil
	}
	if dev {
		return transport.GenerateKeyPair(0)
	}
	return nil, nil, fmt.Errorf("load key pair (run with -genkeys first): %w", errorsFirst(privErr, pubErr))
}

func errorsFirst(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func loadConfig() (userauth.Config, error) {
	cfg := userauth.DefaultConfig()

	var err error
	if cfg.Token.TTL, err = getDuration("TOKEN_TTL", cfg.Token.TTL); err != nil {
		return cfg, err
	}
	if cfg.Session.TTL, err = getDuration("SESSION_TTL", cfg.Session.TTL); err != nil {
		return cfg, err
	}
	if cfg.Verification.TTL, err = getDuration("CODE_TTL", cfg.Verification.TTL); err != nil {
		return cfg, err
	}
	cfg.Verification.SweepInterval = cfg.Verification.TTL

	if raw := os.Getenv("BCRYPT_COST"); raw != "" {
		cost, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid BCRYPT_COST: %w", err)
		}
		cfg.Password.Cost = cost
	}

	return cfg, cfg.Validate()
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
