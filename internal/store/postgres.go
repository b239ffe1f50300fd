package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS annotations (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_item ON annotations(item_id);
CREATE TABLE IF NOT EXISTS elements (
	id TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL REFERENCES annotations(id) ON DELETE CASCADE,
	seq BIGINT NOT NULL,
	min_x DOUBLE PRECISION NOT NULL,
	min_y DOUBLE PRECISION NOT NULL,
	max_x DOUBLE PRECISION NOT NULL,
	max_y DOUBLE PRECISION NOT NULL,
	size DOUBLE PRECISION NOT NULL,
	body JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_elements_annotation ON elements(annotation_id, size DESC);
`

// Postgres is a Store in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) CreateAnnotation(ctx context.Context, info annotation.Info) (annotation.Info, error) {
	info, err := prepareInfo(info)
	if err != nil {
		return info, err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO annotations (id, item_id, name, description, created) VALUES ($1, $2, $3, $4, $5)`,
		info.ID, info.ItemID, info.Name, info.Description, info.Created)
	if err != nil {
		return info, fmt.Errorf("insert annotation: %w", err)
	}
	return info, nil
}

func scanPostgresInfo(row pgx.Row) (annotation.Info, error) {
	var info annotation.Info
	err := row.Scan(&info.ID, &info.ItemID, &info.Name, &info.Description, &info.Created)
	return info, err
}

func (p *Postgres) GetAnnotation(ctx context.Context, id string) (annotation.Info, error) {
	info, err := scanPostgresInfo(p.pool.QueryRow(ctx,
		`SELECT id, item_id, name, description, created FROM annotations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return info, ErrNotFound
	}
	if err != nil {
		return info, fmt.Errorf("get annotation: %w", err)
	}
	return info, nil
}

func (p *Postgres) ListAnnotations(ctx context.Context, itemID string) ([]annotation.Info, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, item_id, name, description, created FROM annotations WHERE item_id = $1 ORDER BY created, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	infos := []annotation.Info{}
	for rows.Next() {
		info, err := scanPostgresInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (p *Postgres) DeleteAnnotation(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM annotations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddElements(ctx context.Context, annotationID string, elements []annotation.Element) ([]annotation.Element, error) {
	stored, rows, err := prepareElements(elements)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock the annotation row so concurrent appends get distinct seqs
	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM annotations WHERE id = $1 FOR UPDATE`, annotationID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock annotation: %w", err)
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM elements WHERE annotation_id = $1`, annotationID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		seq++
		batch.Queue(`INSERT INTO elements
			(id, annotation_id, seq, min_x, min_y, max_x, max_y, size, body)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.id, annotationID, seq, r.minX, r.minY, r.maxX, r.maxY, r.size, r.body)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert elements: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

func (p *Postgres) QueryElements(ctx context.Context, annotationID string, req annotation.PageRequest) ([]annotation.Element, error) {
	query := `SELECT body FROM elements WHERE annotation_id = $1 AND size >= $2`
	args := []any{annotationID, req.MinimumSize}
	if !req.Region.IsEmpty() {
		query += ` AND max_x >= $3 AND min_x <= $4 AND max_y >= $5 AND min_y <= $6`
		args = append(args, req.Region.X.Lo, req.Region.X.Hi, req.Region.Y.Lo, req.Region.Y.Hi)
	}
	query += fmt.Sprintf(` ORDER BY size DESC, seq LIMIT $%d`, len(args)+1)
	var limit *int
	if req.Limit > 0 {
		limit = &req.Limit
	}
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query elements: %w", err)
	}
	defer rows.Close()

	elements := []annotation.Element{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		el, err := decodeElement(body)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	return elements, rows.Err()
}
