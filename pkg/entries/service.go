package entries

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/genres"
	"github.com/watchlog/watchlog/pkg/models"
)

type RetrieveEntryOptions struct {
	ID     int
	UserID int
}

type ListEntriesOptions struct {
	UserID int
	Limit  *int
	Offset *int
}

// Service is the bun-backed record store for entries and their links.
type Service struct {
	db   *bun.DB
	conn bun.IDB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, conn: db}
}

// RunInTx runs fn with a Service bound to one transaction.
func (svc *Service) RunInTx(ctx context.Context, fn func(ctx context.Context, store RecordStore) error) error {
	return svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Service{db: svc.db, conn: tx})
	})
}

func (svc *Service) CreateEntry(ctx context.Context, entry *models.Entry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	_, err := svc.conn.
		NewInsert().
		Model(entry).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) GetOrCreateGenre(ctx context.Context, name string) (*models.Genre, error) {
	return genres.NewService(svc.conn).GetOrCreate(ctx, name)
}

func (svc *Service) LinkGenre(ctx context.Context, entryID, genreID int) error {
	link := &models.EntryGenre{
		EntryID: entryID,
		GenreID: genreID,
	}
	_, err := svc.conn.
		NewInsert().
		Model(link).
		On("CONFLICT (entry_id, genre_id) DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ResolveTitle(ctx context.Context, userID int, title string, excludeID int) (*int, error) {
	var ids []int
	err := svc.conn.
		NewSelect().
		Model((*models.Entry)(nil)).
		ColumnExpr("e.id").
		Where("e.user_id = ?", userID).
		Where("LOWER(e.title) = LOWER(?)", title).
		Where("e.id != ?", excludeID).
		Order("e.created_at DESC", "e.id DESC").
		Limit(1).
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

func (svc *Service) LinkRelation(ctx context.Context, entryID int, relatedEntryID *int, title string) error {
	link := &models.EntryRelation{
		EntryID:           entryID,
		RelatedEntryID:    relatedEntryID,
		RelatedEntryTitle: title,
	}
	// ux_entry_relations is on LOWER(related_entry_title), so a title that
	// only differs in case from an existing link is skipped.
	_, err := svc.conn.
		NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveEntry(ctx context.Context, opts RetrieveEntryOptions) (*models.Entry, error) {
	entry := &models.Entry{}

	err := svc.selectWithLinks(entry).
		Where("e.id = ?", opts.ID).
		Where("e.user_id = ?", opts.UserID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Entry")
		}
		return nil, errors.WithStack(err)
	}

	return entry, nil
}

// ListEntries returns the user's entries newest first with their genre and
// relation rows loaded.
func (svc *Service) ListEntries(ctx context.Context, opts ListEntriesOptions) ([]*models.Entry, error) {
	list := []*models.Entry{}

	q := svc.selectWithLinks(&list).
		Where("e.user_id = ?", opts.UserID).
		Order("e.created_at DESC", "e.id DESC")
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}

func (svc *Service) selectWithLinks(model interface{}) *bun.SelectQuery {
	return svc.conn.
		NewSelect().
		Model(model).
		Relation("EntryGenres", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("eg.id ASC")
		}).
		Relation("EntryGenres.Genre").
		Relation("Relations", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("er.id ASC")
		}).
		Relation("Relations.RelatedEntry")
}
