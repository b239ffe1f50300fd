package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS annotations (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_item ON annotations(item_id);
CREATE TABLE IF NOT EXISTS elements (
	id TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	min_x REAL NOT NULL,
	min_y REAL NOT NULL,
	max_x REAL NOT NULL,
	max_y REAL NOT NULL,
	size REAL NOT NULL,
	body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_elements_annotation ON elements(annotation_id, size);
`

// SQLite is a Store in an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateAnnotation(ctx context.Context, info annotation.Info) (annotation.Info, error) {
	info, err := prepareInfo(info)
	if err != nil {
		return info, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, item_id, name, description, created) VALUES (?, ?, ?, ?, ?)`,
		info.ID, info.ItemID, info.Name, info.Description, info.Created.UnixMilli())
	if err != nil {
		return info, fmt.Errorf("insert annotation: %w", err)
	}
	info.Created = time.UnixMilli(info.Created.UnixMilli()).UTC()
	return info, nil
}

func (s *SQLite) GetAnnotation(ctx context.Context, id string) (annotation.Info, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, item_id, name, description, created FROM annotations WHERE id = ?`, id)
	info, err := scanSQLiteInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return info, ErrNotFound
	}
	return info, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteInfo(row scanner) (annotation.Info, error) {
	var (
		info    annotation.Info
		created int64
	)
	if err := row.Scan(&info.ID, &info.ItemID, &info.Name, &info.Description, &created); err != nil {
		return info, err
	}
	info.Created = time.UnixMilli(created).UTC()
	return info, nil
}

func (s *SQLite) ListAnnotations(ctx context.Context, itemID string) ([]annotation.Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, name, description, created FROM annotations WHERE item_id = ? ORDER BY created, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	infos := []annotation.Info{}
	for rows.Next() {
		info, err := scanSQLiteInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLite) DeleteAnnotation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE annotation_id = ?`, id); err != nil {
		return fmt.Errorf("delete elements: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) AddElements(ctx context.Context, annotationID string, elements []annotation.Element) ([]annotation.Element, error) {
	stored, rows, err := prepareElements(elements)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM elements WHERE annotation_id = ?`, annotationID).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations WHERE id = ?`, annotationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check annotation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO elements
		(id, annotation_id, seq, min_x, min_y, max_x, max_y, size, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		seq++
		if _, err := stmt.ExecContext(ctx, r.id, annotationID, seq, r.minX, r.minY, r.maxX, r.maxY, r.size, string(r.body)); err != nil {
			return nil, fmt.Errorf("insert element %s: %w", r.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

func (s *SQLite) QueryElements(ctx context.Context, annotationID string, req annotation.PageRequest) ([]annotation.Element, error) {
	query := `SELECT body FROM elements WHERE annotation_id = ? AND size >= ?`
	args := []any{annotationID, req.MinimumSize}
	if !req.Region.IsEmpty() {
		query += ` AND max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?`
		args = append(args, req.Region.X.Lo, req.Region.X.Hi, req.Region.Y.Lo, req.Region.Y.Hi)
	}
	query += ` ORDER BY size DESC, seq LIMIT ?`
	limit := -1
	if req.Limit > 0 {
		limit = req.Limit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query elements: %w", err)
	}
	defer rows.Close()

	elements := []annotation.Element{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		el, err := decodeElement([]byte(body))
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	return elements, rows.Err()
}
