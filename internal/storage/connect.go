package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Supported storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// ErrUnsupportedDriver is returned for driver names outside the Driver* constants.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Drivers lists every supported driver name.
func Drivers() []string {
	return []string{DriverMemory, DriverPostgres, DriverMySQL, DriverSQLite}
}

// DriverFromDSN infers the storage driver from the DSN scheme. It returns an
// empty string when the scheme is not recognised.
func DriverFromDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case lower == "":
		return DriverMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "mysql://"):
		return DriverMySQL
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"):
		return DriverSQLite
	default:
		return ""
	}
}

// IsSupportedDriver reports whether name is a known driver.
func IsSupportedDriver(name string) bool {
	for _, d := range Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

type connectConfig struct {
	logger     *zap.Logger
	maxRetries uint64
	retryBase  time.Duration
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

// WithLogger sets the logger used to report connection attempts.
func WithLogger(logger *zap.Logger) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.logger = logger
	}
}

// WithRetry controls how often and how fast the initial ping is retried.
func WithRetry(maxRetries uint64, base time.Duration) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.maxRetries = maxRetries
		cfg.retryBase = base
	}
}

// Connect opens the storage for driver and dsn. SQL storages are pinged with
// retries and migrated before being returned.
func Connect(ctx context.Context, driver, dsn string, opts ...ConnectOption) (Storage, error) {
	cfg := connectConfig{
		logger:     zap.NewNop(),
		maxRetries: 5,
		retryBase:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if driver == "" {
		driver = DriverFromDSN(dsn)
	}

	if driver == DriverMemory {
		return NewMemoryStorage(), nil
	}

	sqlDriver, sqlDSN, err := driverDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqlDriver, sqlDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(cfg.maxRetries, retry.NewExponential(cfg.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := db.PingContext(ctx); pingErr != nil {
			cfg.logger.Warn("database ping failed",
				zap.String("driver", driver),
				zap.Int("attempt", attempt),
				zap.Error(pingErr),
			)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s database: %w", driver, err)
	}

	store := NewSQLStorage(db, driver)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	cfg.logger.Info("database connected", zap.String("driver", driver), zap.Int("attempts", attempt))
	return store, nil
}

// driverDSN maps a storage driver to its database/sql driver name and
// strips URL schemes the driver does not understand.
func driverDSN(driver, dsn string) (string, string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", "", fmt.Errorf("%s storage requires a DSN", driver)
	}
	switch driver {
	case DriverPostgres:
		return "pgx", dsn, nil
	case DriverMySQL:
		return "mysql", trimScheme(dsn, "mysql://"), nil
	case DriverSQLite:
		return "sqlite", trimScheme(dsn, "sqlite://"), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func trimScheme(dsn, scheme string) string {
	if len(dsn) >= len(scheme) && strings.EqualFold(dsn[:len(scheme)], scheme) {
		return dsn[len(scheme):]
	}
	return dsn
}
