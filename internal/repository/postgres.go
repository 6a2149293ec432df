package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Postgres is a Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL must be set", ErrRepository)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pool: %v", ErrRepository, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to reach database: %v", ErrRepository, err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: failed to apply schema: %v", ErrRepository, err)
	}
	return nil
}

func (p *Postgres) CreateImage(ctx context.Context, img models.Image) error {
	if img.ID == "" {
		return fmt.Errorf("%w: image id is required", ErrRepository)
	}
	const q = `
insert into images (id, label, location, mime_type, captured_at, processed, source_id, publish_date, parent_id)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := p.pool.Exec(ctx, q, img.ID, img.Label, img.Location, img.MIMEType, img.CapturedAt,
		img.Processed, img.SourceID, img.PublishDate, img.ParentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("image %s: %w", img.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to create image %s: %v", ErrRepository, img.ID, err)
	}
	return nil
}

const imageColumns = `id, label, location, mime_type, captured_at, processed, source_id, publish_date, parent_id`

func scanImage(row pgx.Row) (models.Image, error) {
	var img models.Image
	err := row.Scan(&img.ID, &img.Label, &img.Location, &img.MIMEType, &img.CapturedAt,
		&img.Processed, &img.SourceID, &img.PublishDate, &img.ParentID)
	return img, err
}

func (p *Postgres) LoadImages(ctx context.Context, ids []string) ([]models.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `select `+imageColumns+` from images where id = any($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load images: %v", ErrRepository, err)
	}
	defer rows.Close()

	byID := make(map[string]models.Image, len(ids))
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan image: %v", ErrRepository, err)
		}
		byID[img.ID] = img
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to load images: %v", ErrRepository, err)
	}

	out := make([]models.Image, 0, len(byID))
	for _, id := range ids {
		if img, ok := byID[id]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}

func (p *Postgres) SetImageProcessed(ctx context.Context, id string, processed bool) error {
	if processed {
		tag, err := p.pool.Exec(ctx, `update images set processed = true where id = $1`, id)
		if err != nil {
			return fmt.Errorf("%w: failed to mark image %s processed: %v", ErrRepository, id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("image %s: %w", id, ErrNotFound)
		}
		return nil
	}

	var already bool
	err := p.pool.QueryRow(ctx, `select processed from images where id = $1`, id).Scan(&already)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read image %s: %v", ErrRepository, id, err)
	}
	if already {
		return fmt.Errorf("image %s: %w", id, ErrProcessedIrreversible)
	}
	return nil
}

func (p *Postgres) CreateTender(ctx context.Context, t *models.Tender) (string, error) {
	id := uuid.New()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to begin transaction: %v", ErrRepository, err)
	}
	defer tx.Rollback(ctx)

	const q = `
insert into tenders (id, title, body, summary, opening_date, closing_date, source_id, publish_date,
                     workflow_state, published, created_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.Exec(ctx, q, id, t.Title, t.Body, t.Summary, t.OpeningDate, t.ClosingDate,
		t.SourceID, t.PublishDate, t.WorkflowState, t.Published, t.CreatedAt); err != nil {
		return "", fmt.Errorf("%w: failed to insert tender: %v", ErrRepository, err)
	}

	batch := &pgx.Batch{}
	for i, imageID := range t.ImageIDs {
		batch.Queue(`insert into tender_images (tender_id, image_id, position) values ($1, $2, $3)`, id, imageID, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", fmt.Errorf("%w: failed to link tender images: %v", ErrRepository, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("%w: failed to commit tender: %v", ErrRepository, err)
	}
	return id.String(), nil
}

func (p *Postgres) ListUnprocessedImages(ctx context.Context, filter ImageFilter) ([]models.Image, error) {
	const q = `select ` + imageColumns + ` from images
where not processed
  and ($1 = '' or source_id = $1)
  and ($2 = '' or publish_date = $2)
order by captured_at, id`
	rows, err := p.pool.Query(ctx, q, filter.SourceID, filter.PublishDate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list unprocessed images: %v", ErrRepository, err)
	}
	defer rows.Close()

	var out []models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan image: %v", ErrRepository, err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list unprocessed images: %v", ErrRepository, err)
	}
	return out, nil
}

func (p *Postgres) ListProcessedImageIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `select id from images where processed order by id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list processed images: %v", ErrRepository, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list processed images: %v", ErrRepository, err)
	}
	return ids, nil
}

func (p *Postgres) ListTenderImageRefs(ctx context.Context) (map[string][]string, error) {
	const q = `select t.id::text, ti.image_id, ti.position
from tenders t left join tender_images ti on ti.tender_id = t.id`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tender images: %v", ErrRepository, err)
	}
	defer rows.Close()

	type ref struct {
		imageID  string
		position int
	}
	grouped := make(map[string][]ref)
	for rows.Next() {
		var (
			tenderID string
			imageID  *string
			position *int32
		)
		if err := rows.Scan(&tenderID, &imageID, &position); err != nil {
			return nil, fmt.Errorf("%w: failed to scan tender image: %v", ErrRepository, err)
		}
		if _, ok := grouped[tenderID]; !ok {
			grouped[tenderID] = nil
		}
		if imageID != nil && position != nil {
			grouped[tenderID] = append(grouped[tenderID], ref{imageID: *imageID, position: int(*position)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list tender images: %v", ErrRepository, err)
	}

	out := make(map[string][]string, len(grouped))
	for tenderID, refs := range grouped {
		sort.Slice(refs, func(i, j int) bool { return refs[i].position < refs[j].position })
		ids := make([]string, len(refs))
		for i, r := range refs {
			ids[i] = r.imageID
		}
		out[tenderID] = ids
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
