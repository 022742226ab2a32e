package genres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/models"
)

type RetrieveGenreOptions struct {
	ID   *int
	Name *string
}

type ListGenresOptions struct {
	Limit  *int
	Offset *int
	Search *string
	// UserID restricts EntryCount to the entries of a single user. Genres
	// themselves are shared so every genre is still listed.
	UserID *int

	includeTotal bool
}

type Service struct {
	db bun.IDB
}

// NewService accepts either a *bun.DB or a bun.Tx so that genre upserts can
// take part in a caller's transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

// GetOrCreate returns the genre with the given name, creating it if it doesn't
// exist yet. Names are trimmed and matched exactly. The lookup and insert are
// a single statement so concurrent callers with the same name converge on the
// same row.
func (svc *Service) GetOrCreate(ctx context.Context, name string) (*models.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errcodes.ValidationError("Genre name cannot be empty.")
	}

	genre := &models.Genre{
		CreatedAt: time.Now(),
		Name:      name,
	}
	_, err := svc.db.
		NewInsert().
		Model(genre).
		On("CONFLICT (name) DO UPDATE").
		Set("name = EXCLUDED.name").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return genre, nil
}

func (svc *Service) RetrieveGenre(ctx context.Context, opts RetrieveGenreOptions) (*models.Genre, error) {
	genre := &models.Genre{}

	q := svc.db.
		NewSelect().
		Model(genre)

	if opts.ID != nil {
		q = q.Where("g.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("g.name = ?", strings.TrimSpace(*opts.Name))
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Genre")
		}
		return nil, errors.WithStack(err)
	}

	return genre, nil
}

func (svc *Service) ListGenres(ctx context.Context, opts ListGenresOptions) ([]*models.Genre, error) {
	g, _, err := svc.listGenresWithTotal(ctx, opts)
	return g, errors.WithStack(err)
}

func (svc *Service) ListGenresWithTotal(ctx context.Context, opts ListGenresOptions) ([]*models.Genre, int, error) {
	opts.includeTotal = true
	return svc.listGenresWithTotal(ctx, opts)
}

func (svc *Service) listGenresWithTotal(ctx context.Context, opts ListGenresOptions) ([]*models.Genre, int, error) {
	genres := []*models.Genre{}
	var total int
	var err error

	counts := svc.db.
		NewSelect().
		TableExpr("entry_genres AS eg").
		ColumnExpr("COUNT(*)").
		Where("eg.genre_id = g.id")
	if opts.UserID != nil {
		counts = counts.
			Join("JOIN entries AS e ON e.id = eg.entry_id").
			Where("e.user_id = ?", *opts.UserID)
	}

	q := svc.db.
		NewSelect().
		Model(&genres).
		Column("g.*").
		ColumnExpr("(?) AS entry_count", counts).
		Order("g.name ASC")

	if opts.Search != nil && *opts.Search != "" {
		q = q.Where("LOWER(g.name) LIKE ?", "%"+strings.ToLower(*opts.Search)+"%")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return genres, total, nil
}
