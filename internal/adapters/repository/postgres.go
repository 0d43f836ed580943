package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	"github.com/forgeops/keyforge/internal/adapters/repository/migrations"
	"github.com/forgeops/keyforge/internal/core/domain"
)

// PostgresRepository implements ports.CredentialStore using PostgreSQL.
// Uniqueness-sensitive writes run their pre-check and the write inside
// one transaction; the schema's unique constraints remain the
// authoritative guard and constraint violations are translated into
// the matching domain error.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RunMigrations applies the embedded schema migrations.
func (r *PostgresRepository) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, r.db, ".")
}

const userColumns = `user_id, username, email, password_hash, points, rank, is_active, created_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Points, &u.Rank, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, user.Email).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateEmail
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, user.Username).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateUsername
	}

	query := `INSERT INTO users (username, email, password_hash, points, rank, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING user_id, created_at`
	err := tx.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash,
		user.Points, user.Rank, user.Active).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return translateUnique(err)
	}

	return tx.Commit()
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, userID int64) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer rollback(tx)

	// Keys first: the cascade is an explicit two-step write, not a
	// schema-level ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = $1`, userID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound
	}

	return tx.Commit()
}

const keyColumns = `key_id, user_id, label, description, key_prefix, key_hash, is_active, created_at, last_used_at`

func scanAPIKey(row *sql.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Label, &k.Description, &k.KeyPrefix, &k.KeyHash, &k.Active, &k.CreatedAt, &k.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *PostgresRepository) GetAPIKeyByID(ctx context.Context, userID, keyID int64) (*domain.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_id = $1 AND user_id = $2`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, keyID, userID))
}

func (r *PostgresRepository) GetAPIKeyByLabel(ctx context.Context, userID int64, label string) (*domain.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = $1 AND label = $2`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, userID, label))
}

func (r *PostgresRepository) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_prefix = $1`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, prefix))
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY key_id ASC`
	rows, errQuery := r.db.QueryContext(ctx, query, userID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var keys []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		if errScan := rows.Scan(&k.ID, &k.UserID, &k.Label, &k.Description, &k.KeyPrefix, &k.KeyHash, &k.Active, &k.CreatedAt, &k.LastUsedAt); errScan != nil {
			return nil, errScan
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM api_keys WHERE user_id = $1 AND label = $2)`,
		key.UserID, key.Label).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateLabel
	}

	query := `INSERT INTO api_keys (user_id, label, description, key_prefix, key_hash, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING key_id, created_at`
	err := tx.QueryRowContext(ctx, query, key.UserID, key.Label, key.Description,
		key.KeyPrefix, key.KeyHash, key.Active).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return translateUnique(err)
	}

	return tx.Commit()
}

func (r *PostgresRepository) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `UPDATE api_keys SET label = $1, description = $2, key_prefix = $3, key_hash = $4, is_active = $5
	          WHERE key_id = $6 AND user_id = $7`
	res, err := r.db.ExecContext(ctx, query, key.Label, key.Description, key.KeyPrefix,
		key.KeyHash, key.Active, key.ID, key.UserID)
	if err != nil {
		return translateUnique(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAPIKey(ctx context.Context, userID int64, label string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = $1 AND label = $2`, userID, label)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) TouchAPIKey(ctx context.Context, keyID int64, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE key_id = $2`, usedAt, keyID)
	return err
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("failed to rollback transaction: %v", err)
	}
}

// translateUnique maps unique-constraint violations (SQLSTATE 23505)
// onto the domain error the violated constraint stands for. This is
// what makes two concurrent creates race safely: the loser's insert
// trips the constraint and surfaces as the same error the pre-check
// would have produced.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return domain.ErrDuplicateEmail
	case "users_username_key":
		return domain.ErrDuplicateUsername
	case "api_keys_user_id_label_key":
		return domain.ErrDuplicateLabel
	default:
		return fmt.Errorf("unique constraint %s violated: %w", pgErr.ConstraintName, err)
	}
}
