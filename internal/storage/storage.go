package storage

import (
	"context"
	"fmt"
	"log/slog"

	"timebox/internal/config"
	"timebox/internal/mongo"
	"timebox/internal/mysql"
	"timebox/internal/redis"
	"timebox/pkg/session"
)

// Open connects the configured backend. The returned close func releases
// the connection and must be called by the entry point.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := mongo.LoadDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		logger.Info("mongo ready", "db", cfg.MongoDBName)
		return store, func() error { return client.Disconnect(context.Background()) }, nil

	case config.DriverMySQL:
		db, err := mysql.LoadDB(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("mysql ready")
		return session.NewMySQLStore(db), db.Close, nil

	case config.DriverRedis:
		client, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot connect to redis: %w", err)
		}
		logger.Info("redis ready", "addr", cfg.RedisAddr)
		return session.NewRedisStore(client.Client), client.Close, nil

	case config.DriverMemory:
		logger.Warn("using in-memory session store, records are lost on exit")
		return session.NewMemoryStore(), func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
