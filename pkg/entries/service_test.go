package entries

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/migrations"
	"github.com/watchlog/watchlog/pkg/models"
)

func setupTestDB(t *testing.T, dsn string) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func createUser(t *testing.T, db *bun.DB, email string) *models.User {
	t.Helper()

	user := &models.User{Email: email, PasswordHash: "x"}
	_, err := db.NewInsert().Model(user).Returning("*").Exec(context.Background())
	require.NoError(t, err)
	return user
}

func countRows(t *testing.T, db *bun.DB, table string) int {
	t.Helper()

	count, err := db.NewSelect().Table(table).Count(context.Background())
	require.NoError(t, err)
	return count
}

// failingStore wraps a Service and fails the nth genre upsert.
type failingStore struct {
	*Service
	failGenreAt int
	genreCalls  *int
}

func (f *failingStore) GetOrCreateGenre(ctx context.Context, name string) (*models.Genre, error) {
	*f.genreCalls++
	if *f.genreCalls == f.failGenreAt {
		return nil, errBoom
	}
	return f.Service.GetOrCreateGenre(ctx, name)
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store RecordStore) error) error {
	return f.Service.RunInTx(ctx, func(ctx context.Context, store RecordStore) error {
		return fn(ctx, &failingStore{Service: store.(*Service), failGenreAt: f.failGenreAt, genreCalls: f.genreCalls})
	})
}

func newFailingStore(svc *Service, failGenreAt int) *failingStore {
	calls := 0
	return &failingStore{Service: svc, failGenreAt: failGenreAt, genreCalls: &calls}
}

func TestSubmit_GenreDeduplicationAcrossEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	s := NewSubmitter(NewService(db), nil, SubmitterOptions{})

	first := validSubmission()
	first.UserID = alice.ID
	first.Genres = []string{"Drama"}
	r1, err := s.Submit(ctx, first)
	require.NoError(t, err)

	second := validSubmission()
	second.UserID = bob.ID
	second.Title = "Heat"
	second.Genres = []string{"Drama"}
	r2, err := s.Submit(ctx, second)
	require.NoError(t, err)

	var genres []models.Genre
	err = db.NewSelect().Model(&genres).Where("g.name = ?", "Drama").Scan(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 1)

	var links []models.EntryGenre
	err = db.NewSelect().Model(&links).Order("eg.id ASC").Scan(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, r1.Entry.ID, links[0].EntryID)
	assert.Equal(t, r2.Entry.ID, links[1].EntryID)
	assert.Equal(t, genres[0].ID, links[0].GenreID)
	assert.Equal(t, genres[0].ID, links[1].GenreID)
}

func TestSubmit_PersistsExactRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")
	svc := NewService(db)
	s := NewSubmitter(svc, nil, SubmitterOptions{})

	prior := validSubmission()
	prior.UserID = user.ID
	prior.Title = "Naruto"
	prior.Type = models.MediaKindAnime
	_, err := s.Submit(ctx, prior)
	require.NoError(t, err)

	sub := validSubmission()
	sub.UserID = user.ID
	sub.Title = "Naruto Shippuden"
	sub.Type = models.MediaKindAnime
	sub.Status = models.StatusInProgress
	sub.TotalSeasons = intPtr(21)
	sub.CurrentSeason = intPtr(3)
	sub.Genres = []string{"Action", "Adventure", "Action"}
	sub.RelatedEntries = []string{"NARUTO", "Boruto"}
	sub.Date = "2026-01-02"
	result, err := s.Submit(ctx, sub)
	require.NoError(t, err)
	require.Len(t, result.Notices, 1)

	assert.Equal(t, 2, countRows(t, db, "entries"))
	assert.Equal(t, 2, countRows(t, db, "genres"))
	assert.Equal(t, 2, countRows(t, db, "entry_genres"))
	assert.Equal(t, 2, countRows(t, db, "entry_relations"))

	entry, err := svc.RetrieveEntry(ctx, RetrieveEntryOptions{ID: result.Entry.ID, UserID: user.ID})
	require.NoError(t, err)
	v := NewEntryView(entry)
	assert.Equal(t, "Naruto Shippuden", v.Title)
	assert.Equal(t, "2026-01-02", v.Date)
	assert.Equal(t, []string{"Action", "Adventure"}, v.Genres)
	assert.Equal(t, []string{"Naruto", "Boruto"}, v.RelatedEntries)
	require.NotNil(t, v.CurrentSeason)
	assert.Equal(t, 3, *v.CurrentSeason)
	assert.Nil(t, v.ImageURL)
}

func TestRelink_IgnoresTitleCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")
	svc := NewService(db)
	s := NewSubmitter(svc, nil, SubmitterOptions{})

	sub := validSubmission()
	sub.UserID = user.ID
	sub.Title = "Boruto"
	sub.RelatedEntries = []string{"Naruto"}
	result, err := s.Submit(ctx, sub)
	require.NoError(t, err)

	_, err = s.Relink(ctx, result.Entry, nil, []string{"NARUTO", "naruto"})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db, "entry_relations"))

	entry, err := svc.RetrieveEntry(ctx, RetrieveEntryOptions{ID: result.Entry.ID, UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Naruto"}, NewEntryView(entry).RelatedEntries)
}

func TestSubmit_PartialFailureWithoutTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")

	s := NewSubmitter(newFailingStore(NewService(db), 2), nil, SubmitterOptions{})

	sub := validSubmission()
	sub.UserID = user.ID
	sub.Genres = []string{"Drama", "Crime"}
	sub.RelatedEntries = []string{"Heat"}
	_, err := s.Submit(ctx, sub)
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, StepLinkGenres, writeErr.Step)
	assert.NotZero(t, writeErr.EntryID)

	assert.Equal(t, 1, countRows(t, db, "entries"))
	assert.Equal(t, 1, countRows(t, db, "genres"))
	assert.Equal(t, 1, countRows(t, db, "entry_genres"))
	assert.Equal(t, 0, countRows(t, db, "entry_relations"))

	// Running the link steps again completes the entry without duplicates.
	entry, err := NewService(db).RetrieveEntry(ctx, RetrieveEntryOptions{ID: writeErr.EntryID, UserID: user.ID})
	require.NoError(t, err)
	relinker := NewSubmitter(NewService(db), nil, SubmitterOptions{})
	for i := 0; i < 2; i++ {
		_, err = relinker.Relink(ctx, entry, sub.Genres, sub.RelatedEntries)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, countRows(t, db, "entry_genres"))
	assert.Equal(t, 1, countRows(t, db, "entry_relations"))
}

func TestSubmit_AtomicRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")

	s := NewSubmitter(newFailingStore(NewService(db), 2), nil, SubmitterOptions{Atomic: true})

	sub := validSubmission()
	sub.UserID = user.ID
	sub.Genres = []string{"Drama", "Crime"}
	_, err := s.Submit(ctx, sub)
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.True(t, writeErr.RolledBack)
	assert.Zero(t, writeErr.EntryID)
	assert.Zero(t, writeErr.GenresLinked)

	assert.Equal(t, 0, countRows(t, db, "entries"))
	assert.Equal(t, 0, countRows(t, db, "genres"))
	assert.Equal(t, 0, countRows(t, db, "entry_genres"))
}

func TestSubmit_AtomicSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")

	s := NewSubmitter(NewService(db), nil, SubmitterOptions{Atomic: true})

	sub := validSubmission()
	sub.UserID = user.ID
	sub.Genres = []string{"Drama", "Crime"}
	sub.RelatedEntries = []string{"Heat"}
	result, err := s.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 2, result.GenresLinked)
	assert.Equal(t, 1, result.RelationsLinked)
	assert.Len(t, result.Notices, 1)

	assert.Equal(t, 1, countRows(t, db, "entries"))
	assert.Equal(t, 2, countRows(t, db, "entry_genres"))
	assert.Equal(t, 1, countRows(t, db, "entry_relations"))
}

func TestSubmit_ConcurrentSharedGenre(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, filepath.Join(t.TempDir(), "entries.db"))
	s := NewSubmitter(NewService(db), nil, SubmitterOptions{})

	const workers = 6
	users := make([]*models.User, workers)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("user%d@example.com", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := validSubmission()
			sub.UserID = users[i].ID
			sub.Genres = []string{"Drama", "Thriller"}
			_, errs[i] = s.Submit(ctx, sub)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, countRows(t, db, "genres"))
	assert.Equal(t, workers*2, countRows(t, db, "entry_genres"))
}

func TestListEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	svc := NewService(db)
	s := NewSubmitter(svc, nil, SubmitterOptions{})

	for _, title := range []string{"Heat", "Ronin", "Collateral"} {
		sub := validSubmission()
		sub.UserID = alice.ID
		sub.Title = title
		_, err := s.Submit(ctx, sub)
		require.NoError(t, err)
	}
	other := validSubmission()
	other.UserID = bob.ID
	other.Title = "Dune"
	bobResult, err := s.Submit(ctx, other)
	require.NoError(t, err)

	list, err := svc.ListEntries(ctx, ListEntriesOptions{UserID: alice.ID})
	require.NoError(t, err)
	views := NewEntryViews(list)
	assert.Equal(t, []string{"Collateral", "Ronin", "Heat"}, titles(views))
	for _, v := range views {
		assert.Equal(t, alice.ID, v.UserID)
		assert.NotNil(t, v.Genres)
		assert.NotNil(t, v.RelatedEntries)
	}

	empty, err := svc.ListEntries(ctx, ListEntriesOptions{UserID: 9999})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.RetrieveEntry(ctx, RetrieveEntryOptions{ID: bobResult.Entry.ID, UserID: alice.ID})
	assert.ErrorIs(t, err, errcodes.NotFound("Entry"))
}

func TestRelations_ResolveWithinUserOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	svc := NewService(db)
	s := NewSubmitter(svc, nil, SubmitterOptions{})

	bobsDune := validSubmission()
	bobsDune.UserID = bob.ID
	bobsDune.Title = "Dune"
	_, err := s.Submit(ctx, bobsDune)
	require.NoError(t, err)

	sequel := validSubmission()
	sequel.UserID = alice.ID
	sequel.Title = "Dune: Part Two"
	sequel.RelatedEntries = []string{"Dune"}
	result, err := s.Submit(ctx, sequel)
	require.NoError(t, err)
	require.Len(t, result.Notices, 1)
	assert.Equal(t, NoticeRelationNotFound, result.Notices[0].Code)

	var rel models.EntryRelation
	err = db.NewSelect().Model(&rel).Where("er.entry_id = ?", result.Entry.ID).Scan(ctx)
	require.NoError(t, err)
	assert.Nil(t, rel.RelatedEntryID)
	assert.Equal(t, "Dune", rel.RelatedEntryTitle)
}

func TestRelations_FallBackToStoredTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := setupTestDB(t, ":memory:")
	user := createUser(t, db, "alice@example.com")
	svc := NewService(db)
	s := NewSubmitter(svc, nil, SubmitterOptions{})

	original := validSubmission()
	original.UserID = user.ID
	original.Title = "Alien"
	originalResult, err := s.Submit(ctx, original)
	require.NoError(t, err)

	sequel := validSubmission()
	sequel.UserID = user.ID
	sequel.Title = "Aliens"
	sequel.RelatedEntries = []string{"alien"}
	sequelResult, err := s.Submit(ctx, sequel)
	require.NoError(t, err)
	assert.Empty(t, sequelResult.Notices)

	entry, err := svc.RetrieveEntry(ctx, RetrieveEntryOptions{ID: sequelResult.Entry.ID, UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alien"}, NewEntryView(entry).RelatedEntries)

	_, err = db.NewDelete().Model((*models.Entry)(nil)).Where("id = ?", originalResult.Entry.ID).Exec(ctx)
	require.NoError(t, err)

	entry, err = svc.RetrieveEntry(ctx, RetrieveEntryOptions{ID: sequelResult.Entry.ID, UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"alien"}, NewEntryView(entry).RelatedEntries)
}
