package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
)

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on sqlite. Updates deliberately exclude the
// encrypted_secret and created_at columns, making secrets write-once at
// the SQL level.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore wraps an opened, migrated database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Open opens the database at path, runs migrations and returns the store.
func Open(path string) (*SQLiteStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

const insertQuery = `INSERT INTO key_records
	(id, service, external_key_id, encrypted_secret, status, role, rotation_reason,
	 created_at, activated_at, deprecated_at, revoked_at, expires_at,
	 created_by, last_modified_by, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert persists a new record.
func (s *SQLiteStore) Insert(ctx context.Context, record *keys.Record) error {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return kwerrors.StorageError{Op: "insert", Err: err}
	}

	_, err = s.db.Writer.ExecContext(ctx, insertQuery,
		record.ID,
		string(record.Service),
		record.ExternalKeyID,
		record.EncryptedSecret,
		string(record.Status),
		string(record.Role),
		string(record.Reason),
		formatTime(record.CreatedAt),
		formatTimePtr(record.ActivatedAt),
		formatTimePtr(record.DeprecatedAt),
		formatTimePtr(record.RevokedAt),
		formatTime(record.ExpiresAt),
		record.CreatedBy,
		record.LastModifiedBy,
		metadata,
	)
	if err != nil {
		return kwerrors.StorageError{Op: "insert", Err: err}
	}
	return nil
}

const selectColumns = `id, service, external_key_id, encrypted_secret, status, role,
	rotation_reason, created_at, activated_at, deprecated_at, revoked_at,
	expires_at, created_by, last_modified_by, metadata`

// Get returns the record with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*keys.Record, error) {
	row := s.db.Reader.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM key_records WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kwerrors.NotFoundError{KeyID: id}
	}
	if err != nil {
		return nil, kwerrors.StorageError{Op: "get", Err: err}
	}
	return record, nil
}

const updateQuery = `UPDATE key_records SET
	status = ?, role = ?, activated_at = ?, deprecated_at = ?, revoked_at = ?,
	last_modified_by = ?, metadata = ?
	WHERE id = ?`

// Update rewrites a record's mutable fields.
func (s *SQLiteStore) Update(ctx context.Context, record *keys.Record) error {
	res, err := s.execUpdate(ctx, s.db.Writer.ExecContext, record)
	if err != nil {
		return err
	}
	return checkUpdated(res, record.ID)
}

type execFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

func (s *SQLiteStore) execUpdate(ctx context.Context, exec execFunc, record *keys.Record) (sql.Result, error) {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return nil, kwerrors.StorageError{Op: "update", Err: err}
	}

	res, err := exec(ctx, updateQuery,
		string(record.Status),
		string(record.Role),
		formatTimePtr(record.ActivatedAt),
		formatTimePtr(record.DeprecatedAt),
		formatTimePtr(record.RevokedAt),
		record.LastModifiedBy,
		metadata,
		record.ID,
	)
	if err != nil {
		return nil, kwerrors.StorageError{Op: "update", Err: err}
	}
	return res, nil
}

// Transition applies the demotion and promotion inside a single
// transaction, demotion statement first.
func (s *SQLiteStore) Transition(ctx context.Context, demote, promote *keys.Record) error {
	tx, err := s.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return kwerrors.StorageError{Op: "transition", Err: err}
	}
	defer tx.Rollback()

	if demote != nil {
		res, err := s.execUpdate(ctx, tx.ExecContext, demote)
		if err != nil {
			return err
		}
		if err := checkUpdated(res, demote.ID); err != nil {
			return err
		}
	}

	res, err := s.execUpdate(ctx, tx.ExecContext, promote)
	if err != nil {
		return err
	}
	if err := checkUpdated(res, promote.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return kwerrors.StorageError{Op: "transition", Err: err}
	}
	return nil
}

// ListByService returns all records for a service, newest first.
func (s *SQLiteStore) ListByService(ctx context.Context, svc keys.Service) ([]*keys.Record, error) {
	rows, err := s.db.Reader.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM key_records WHERE service = ? ORDER BY created_at DESC, rowid DESC`,
		string(svc))
	if err != nil {
		return nil, kwerrors.StorageError{Op: "list", Err: err}
	}
	return collectRecords(rows)
}

// ListAll returns every record, newest first.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*keys.Record, error) {
	rows, err := s.db.Reader.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM key_records ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, kwerrors.StorageError{Op: "list", Err: err}
	}
	return collectRecords(rows)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*keys.Record, error) {
	var (
		record       keys.Record
		service      string
		status       string
		role         string
		reason       string
		createdAt    string
		activatedAt  sql.NullString
		deprecatedAt sql.NullString
		revokedAt    sql.NullString
		expiresAt    string
		metadata     string
	)

	err := sc.Scan(
		&record.ID, &service, &record.ExternalKeyID, &record.EncryptedSecret,
		&status, &role, &reason, &createdAt, &activatedAt, &deprecatedAt,
		&revokedAt, &expiresAt, &record.CreatedBy, &record.LastModifiedBy,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	record.Service = keys.Service(service)
	record.Status = keys.Status(status)
	record.Role = keys.Role(role)
	record.Reason = keys.RotationReason(reason)

	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if record.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if record.ActivatedAt, err = parseTimePtr(activatedAt); err != nil {
		return nil, fmt.Errorf("parse activated_at: %w", err)
	}
	if record.DeprecatedAt, err = parseTimePtr(deprecatedAt); err != nil {
		return nil, fmt.Errorf("parse deprecated_at: %w", err)
	}
	if record.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return nil, fmt.Errorf("parse revoked_at: %w", err)
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*keys.Record, error) {
	defer rows.Close()

	var out []*keys.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, kwerrors.StorageError{Op: "scan", Err: err}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, kwerrors.StorageError{Op: "iterate", Err: err}
	}
	return out, nil
}

func checkUpdated(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return kwerrors.StorageError{Op: "update", Err: err}
	}
	if n == 0 {
		return kwerrors.NotFoundError{KeyID: id}
	}
	return nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseTimePtr(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
