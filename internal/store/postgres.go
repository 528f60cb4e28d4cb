package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping metadata store: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const userColumns = `id, display_name, email, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`, userID, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// GetUsersByIDs resolves users in one query. Ids with no row are left out.
func (s *PostgresStore) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]User, error) {
	users := make(map[string]User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("batch get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, doc.ID, doc.Title, doc.OwnerID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, docID).Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// UpdateDocument always bumps updated_at and replaces the title only when one is given.
func (s *PostgresStore) UpdateDocument(ctx context.Context, docID string, title *string, updatedAt time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if title != nil {
		result, err = s.db.ExecContext(ctx, `UPDATE documents SET title=$2, updated_at=$3 WHERE id=$1`, docID, *title, updatedAt)
	} else {
		result, err = s.db.ExecContext(ctx, `UPDATE documents SET updated_at=$2 WHERE id=$1`, docID, updatedAt)
	}
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at
		FROM documents
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetGrant(ctx context.Context, docID, userID string) (Grant, error) {
	var grant Grant
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, user_id, permission, created_at
		FROM document_grants
		WHERE document_id=$1 AND user_id=$2
	`, docID, userID).Scan(&grant.DocumentID, &grant.UserID, &grant.Permission, &grant.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Grant{}, ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// PutGrant inserts or replaces the grant for (document, user).
func (s *PostgresStore) PutGrant(ctx context.Context, grant Grant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_grants (document_id, user_id, permission, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, user_id) DO UPDATE SET permission=EXCLUDED.permission
	`, grant.DocumentID, grant.UserID, grant.Permission, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateGrantPermission(ctx context.Context, docID, userID, permission string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE document_grants SET permission=$3
		WHERE document_id=$1 AND user_id=$2
	`, docID, userID, permission)
	if err != nil {
		return false, fmt.Errorf("update grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update grant rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteGrant(ctx context.Context, docID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_grants WHERE document_id=$1 AND user_id=$2`, docID, userID); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) listGrants(ctx context.Context, query string, arg string) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	items := make([]Grant, 0)
	for rows.Next() {
		var item Grant
		if err := rows.Scan(&item.DocumentID, &item.UserID, &item.Permission, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListGrantsByDocument(ctx context.Context, docID string) ([]Grant, error) {
	return s.listGrants(ctx, `
		SELECT document_id, user_id, permission, created_at
		FROM document_grants
		WHERE document_id=$1
		ORDER BY created_at ASC, user_id ASC
	`, docID)
}

func (s *PostgresStore) ListGrantsByUser(ctx context.Context, userID string) ([]Grant, error) {
	return s.listGrants(ctx, `
		SELECT document_id, user_id, permission, created_at
		FROM document_grants
		WHERE user_id=$1
		ORDER BY created_at DESC, document_id ASC
	`, userID)
}

func (s *PostgresStore) PutVersion(ctx context.Context, version Version) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_versions (document_id, version, object_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, version.DocumentID, version.Version, version.ObjectKey, version.CreatedBy, version.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateVersion
	}
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, docID string, version int) (Version, error) {
	var item Version
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, version, object_key, created_by, created_at
		FROM document_versions
		WHERE document_id=$1 AND version=$2
	`, docID, version).Scan(&item.DocumentID, &item.Version, &item.ObjectKey, &item.CreatedBy, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, docID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, version, object_key, created_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		var item Version
		if err := rows.Scan(&item.DocumentID, &item.Version, &item.ObjectKey, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, docID string, version int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_versions WHERE document_id=$1 AND version=$2`, docID, version); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1 AND revoked_at IS NULL`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the owning user id of a live session.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}
	return userID, nil
}
