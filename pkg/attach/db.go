package attach

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect selects SQL placeholder and DDL flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// BlobTable stores payloads as rows of attachment_blobs, one per db: key.
type BlobTable struct {
	db      *sql.DB
	dialect Dialect
}

// NewBlobTable wraps db and creates the table when missing.
func NewBlobTable(ctx context.Context, db *sql.DB, dialect Dialect) (*BlobTable, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported blob table dialect: %s", dialect)
	}
	t := &BlobTable{db: db, dialect: dialect}
	if err := t.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate attachment_blobs: %w", err)
	}
	return t, nil
}

func (t *BlobTable) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS attachment_blobs (
		id TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if t.dialect == DialectPostgres {
		query = `
	CREATE TABLE IF NOT EXISTS attachment_blobs (
		id TEXT PRIMARY KEY,
		blob BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`
	}
	_, err := t.db.ExecContext(ctx, query)
	return err
}

// rebind rewrites ? placeholders as $n for postgres.
func (t *BlobTable) rebind(query string) string {
	if t.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Exists reports whether a row with id is present.
func (t *BlobTable) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx, t.rebind("SELECT 1 FROM attachment_blobs WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blob %s: %w", id, err)
	}
	return true, nil
}

// Get returns the payload of id, or ErrMissingSource.
func (t *BlobTable) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := t.db.QueryRowContext(ctx, t.rebind("SELECT blob FROM attachment_blobs WHERE id = ?"), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missing("no blob row "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

// Insert adds a row; an existing id yields ErrStorageConflict.
func (t *BlobTable) Insert(ctx context.Context, id string, data []byte) error {
	exists, err := t.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: blob row %s exists", ErrStorageConflict, id)
	}
	_, err = t.db.ExecContext(ctx,
		t.rebind("INSERT INTO attachment_blobs (id, blob, created_at) VALUES (?, ?, ?)"),
		id, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert blob %s: %w", id, err)
	}
	return nil
}

// Delete removes id and reports whether a row was deleted.
func (t *BlobTable) Delete(ctx context.Context, id string) (bool, error) {
	res, err := t.db.ExecContext(ctx, t.rebind("DELETE FROM attachment_blobs WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return n > 0, nil
}

// DBSource is a payload in the blob table, addressed as db:/<id>.
type DBSource struct {
	state
	table *BlobTable
	id    string
}

func (r *Registry) blobTable() (*BlobTable, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: db", ErrBackendNotConfigured)
	}
	return r.db, nil
}

func (r *Registry) reloadDB(ctx context.Context, uri *url.URL, md Metadata) (Source, error) {
	table, err := r.blobTable()
	if err != nil {
		return nil, err
	}
	id := lastSegment(uri)
	if id == "" {
		return nil, fmt.Errorf("%w: db uri without key: %s", ErrInvalidSource, uri)
	}
	ok, err := table.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("no blob row "+id, nil)
	}
	s := &DBSource{state: newState(r, md), table: table, id: id}
	s.checked = true
	return s, nil
}

// storeDB inserts a new row. db:/ without a key gets a generated one.
func (r *Registry) storeDB(ctx context.Context, src Source, uri *url.URL) (Source, error) {
	table, err := r.blobTable()
	if err != nil {
		return nil, err
	}
	id := lastSegment(uri)
	if id == "" {
		id = uuid.NewString()
	}
	data, md, err := snapshot(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := table.Insert(ctx, id, data); err != nil {
		return nil, err
	}
	s := &DBSource{state: newState(r, md), table: table, id: id}
	s.checked = true
	return s, nil
}

func (s *DBSource) Valid(ctx context.Context) bool {
	return s.validate(ctx, func(ctx context.Context) error {
		ok, err := s.table.Exists(ctx, s.id)
		if err != nil {
			return missing("blob table unavailable", err)
		}
		if !ok {
			return missing("no blob row "+s.id, nil)
		}
		return nil
	})
}

func (s *DBSource) Persistent() bool    { return true }
func (s *DBSource) ReadOnly() bool      { return s.frozen }
func (s *DBSource) URI() *url.URL       { return &url.URL{Scheme: "db", Path: "/" + s.id} }
func (s *DBSource) PublicURI() *url.URL { return nil }

func (s *DBSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, nil, s.Blob)
}

func (s *DBSource) Blob(ctx context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.table.Get(ctx, s.id)
}

func (s *DBSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return nil, err
	}
	return readerOf(data), nil
}

func (s *DBSource) Tempfile(ctx context.Context) (string, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return "", err
	}
	return s.reg.writeTemp(tempName(s.primer, s.id), bytes.NewReader(data))
}

// Destroy deletes the row. A row that is already gone yields ErrMissingSource.
func (s *DBSource) Destroy(ctx context.Context) error {
	if s.frozen {
		return nil
	}
	ok, err := s.table.Delete(ctx, s.id)
	if err != nil {
		return err
	}
	if !ok {
		return s.settle(missing("no blob row "+s.id, nil))
	}
	return s.settle(nil)
}
