package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const (
	opTimeout              = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// querier — общее подмножество *sql.DB, *sql.Tx и *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и выдаёт репозитории.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Products возвращает каталог вне транзакции.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{q: s.db}
}

// Orders возвращает журнал заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{db: s.db, q: s.db}
}

// Outbox возвращает outbox вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db}
}

// Settings возвращает хранилище настроек.
func (s *Store) Settings() domain.SettingsRepository {
	return &settingsRepository{q: s.db}
}

// CheckoutKeys возвращает хранилище ключей идемпотентности оформления заказа.
func (s *Store) CheckoutKeys() domain.CheckoutKeyRepository {
	return &checkoutKeyRepository{q: s.db, now: func() time.Time { return time.Now().UTC() }}
}

// WithinTx выполняет fn в одной SQL-транзакции READ COMMITTED.
// Остатки защищены условным UPDATE, статус заказа — SELECT ... FOR UPDATE и версией.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &txUnit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// txUnit выдаёт репозитории, работающие внутри одной транзакции.
type txUnit struct {
	tx *sql.Tx
}

func (u *txUnit) Products() domain.ProductRepository {
	return &productRepository{q: u.tx}
}

func (u *txUnit) Orders() domain.OrderRepository {
	return &orderRepository{q: u.tx, tx: u.tx}
}

func (u *txUnit) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: u.tx}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ domain.Transactor = (*Store)(nil)
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.UnitOfWork = (*txUnit)(nil)
)
