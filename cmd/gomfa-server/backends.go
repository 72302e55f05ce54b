package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/internal/config"
	"github.com/MrEthical07/goMFA/mailer"
	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/store"
	"github.com/MrEthical07/goMFA/store/memory"
	"github.com/MrEthical07/goMFA/store/postgres"
)

const devPassword = "gomfa-dev-password"

type backends struct {
	redis  redis.UniversalClient
	store  goMFA.Store
	mailer goMFA.Mailer

	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, engineCfg goMFA.Config, logger *zap.Logger) (_ *backends, err error) {
	be := &backends{}
	defer func() {
		if err != nil {
			be.close()
		}
	}()

	if cfg.DevMode {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("miniredis: %w", err)
		}
		be.closers = append(be.closers, mr.Close)
		be.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		mem := memory.New()
		if err := seedDevAccounts(mem, engineCfg.Password); err != nil {
			return nil, err
		}
		logger.Warn("dev mode: in-process redis and in-memory accounts",
			zap.String("admin", "admin@gomfa.local"),
			zap.String("merchant", "merchant@gomfa.local"),
			zap.String("password", devPassword),
		)
		be.store = mem
	} else {
		be.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema migrations applied")
		}
		var db *sql.DB
		if db, err = postgres.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		be.closers = append(be.closers, func() { _ = db.Close() })
		be.store = postgres.New(db)
	}
	rdb := be.redis
	be.closers = append(be.closers, func() { _ = rdb.Close() })

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		km, err := mailer.NewKafkaMailer(brokers, cfg.KafkaEmailTopic)
		if err != nil {
			return nil, err
		}
		be.closers = append(be.closers, func() { _ = km.Close() })
		be.mailer = km
		logger.Info("email codes published to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaEmailTopic))
	} else {
		if cfg.Production() {
			return nil, fmt.Errorf("KAFKA_BROKERS must be set when APP_ENV=production")
		}
		be.mailer = mailer.NewLogMailer(logger)
	}

	return be, nil
}

func seedDevAccounts(mem *memory.Store, pc goMFA.PasswordConfig) error {
	hasher, err := password.NewHasher(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(devPassword)
	if err != nil {
		return err
	}

	seed := []store.Account{
		{Email: "admin@gomfa.local", PasswordHash: hash, Role: store.RoleAdmin},
		{Email: "merchant@gomfa.local", PasswordHash: hash, Role: store.RoleMerchant, MFARequired: true},
	}
	for _, acc := range seed {
		if _, err := mem.AddAccount(acc); err != nil {
			return fmt.Errorf("seed %s: %w", acc.Email, err)
		}
	}
	return nil
}
