package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

const defaultListLimit = 50

const migrationSQL = `
CREATE TABLE IF NOT EXISTS announcements (
	id             TEXT PRIMARY KEY,
	company_code   TEXT NOT NULL,
	company_name   TEXT NOT NULL,
	title          TEXT NOT NULL,
	subject        TEXT NOT NULL,
	summary        TEXT NOT NULL,
	category       TEXT NOT NULL,
	filed_at       TIMESTAMPTZ NOT NULL,
	pdf_url        TEXT NOT NULL DEFAULT '',
	screenshot_url TEXT NOT NULL DEFAULT '',
	source_page    TEXT NOT NULL DEFAULT '',
	exchange       TEXT NOT NULL DEFAULT 'BSE',
	index_name     TEXT NOT NULL DEFAULT 'BANKEX',
	email_sent     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_announcements_filed_at ON announcements (filed_at DESC);
CREATE INDEX IF NOT EXISTS idx_announcements_category ON announcements (category);
CREATE INDEX IF NOT EXISTS idx_announcements_email_sent ON announcements (email_sent) WHERE NOT email_sent;
`

// Postgres is the announcement store backed by a pgx pool.
type Postgres struct {
	pool    Pool
	closeFn func()
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping database")
	}

	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// NewWithPool wraps an existing pool, mainly for tests.
func NewWithPool(pool Pool) *Postgres {
	return &Postgres{pool: pool, closeFn: func() {}}
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.closeFn()
}

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, migrationSQL); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// Exists reports whether an announcement id is already persisted.
func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM announcements WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "store: check existence of %s", id)
	}
	return true, nil
}

// Insert persists a record. A concurrent duplicate is not an error; the bool
// reports whether a row was actually written.
func (p *Postgres) Insert(ctx context.Context, rec types.AnnouncementRecord) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO announcements (
			id, company_code, company_name, title, subject, summary, category,
			filed_at, pdf_url, screenshot_url, source_page, exchange, index_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.CompanyCode, rec.CompanyName, rec.Title, rec.Subject,
		rec.Summary, rec.Category, rec.FiledAt, rec.PDFURL, rec.ScreenshotURL,
		rec.SourcePage, rec.Exchange, rec.IndexName,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert %s", rec.ID)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns records matching the filter, most recently filed first.
func (p *Postgres) List(ctx context.Context, f Filter) ([]types.AnnouncementRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	builder := sq.Select(recordColumns...).
		From("announcements").
		OrderBy("filed_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(max(f.Offset, 0))).
		PlaceholderFormat(sq.Dollar)

	if f.Category != "" {
		builder = builder.Where(sq.Eq{"category": f.Category})
	}
	if f.Company != "" {
		pattern := "%" + f.Company + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"company_name": pattern},
			sq.ILike{"company_code": pattern},
		})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build list query")
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list announcements")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FetchUnsent returns records not yet included in an email digest, oldest
// first so digests arrive in filing order.
func (p *Postgres) FetchUnsent(ctx context.Context, limit int) ([]types.AnnouncementRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query, args, err := sq.Select(recordColumns...).
		From("announcements").
		Where(sq.Eq{"email_sent": false}).
		OrderBy("filed_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build unsent query")
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: fetch unsent")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkSent flags a record as included in a digest.
func (p *Postgres) MarkSent(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `UPDATE announcements SET email_sent = TRUE WHERE id = $1`, id); err != nil {
		return eris.Wrapf(err, "store: mark sent %s", id)
	}
	return nil
}

var recordColumns = []string{
	"id", "company_code", "company_name", "title", "subject", "summary",
	"category", "filed_at", "pdf_url", "screenshot_url", "source_page",
	"exchange", "index_name",
}

func scanRecords(rows pgx.Rows) ([]types.AnnouncementRecord, error) {
	var records []types.AnnouncementRecord
	for rows.Next() {
		var rec types.AnnouncementRecord
		if err := rows.Scan(
			&rec.ID, &rec.CompanyCode, &rec.CompanyName, &rec.Title,
			&rec.Subject, &rec.Summary, &rec.Category, &rec.FiledAt,
			&rec.PDFURL, &rec.ScreenshotURL, &rec.SourcePage,
			&rec.Exchange, &rec.IndexName,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate rows")
	}
	return records, nil
}
