package userauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/luminet/userauth/mail"
	"github.com/luminet/userauth/password"
	"github.com/luminet/userauth/token"
	"github.com/luminet/userauth/transport"
	"github.com/luminet/userauth/verification"
)

// Builder assembles a Service. Each builder is single-use.
type Builder struct {
	config Config

	redis  *redis.Client
	store  Store
	mailer mail.Mailer
	log    *slog.Logger

	privateKeyPEM []byte
	publicKeyPEM  []byte

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the primary verification-code cache client.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore sets the account/session store.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the outbound mail capability. When omitted, Build
// falls back to a log-only mailer.
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithKeyPair sets the transport-cipher key material (PEM).
func (b *Builder) WithKeyPair(privatePEM, publicPEM []byte) *Builder {
	b.privateKeyPEM = privatePEM
	b.publicKeyPEM = publicPEM
	return b
}

// WithLogger sets the structured logger; slog.Default is used otherwise.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration, performs the one-time cipher key
// load, probes the verification primary, and returns the service.
func (b *Builder) Build(ctx context.Context) (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account/session store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if len(b.privateKeyPEM) == 0 || len(b.publicKeyPEM) == 0 {
		return nil, errors.New("transport key pair required")
	}

	log := b.log
	if log == nil {
		log = slog.Default()
	}

	cipher, err := transport.NewCipher(b.privateKeyPEM, b.publicKeyPEM)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Cost)
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = &mail.LogMailer{Log: log}
	}

	codes := verification.NewStore(ctx, verification.NewRedisCache(b.redis), verification.Config{
		TTL:           cfg.Verification.TTL,
		SweepInterval: cfg.Verification.SweepInterval,
	}, log)

	b.built = true

	return &Service{
		config: cfg,
		log:    log,
		store:  b.store,
		cipher: cipher,
		hasher: hasher,
		codec:  token.NewCodec(cfg.Token.TTL),
		codes:  codes,
		mailer: mailer,
	}, nil
}
