package entries

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/watchlog/watchlog/pkg/binder"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/metrics"
	"github.com/watchlog/watchlog/pkg/models"
	"github.com/watchlog/watchlog/pkg/storage"
)

// What to do when the image upload fails.
const (
	ImagePolicyProceed = "proceed"
	ImagePolicyAbort   = "abort"
)

// Notice codes for non-fatal problems reported alongside a created entry.
const (
	NoticeImageDiscarded   = "image_discarded"
	NoticeRelationNotFound = "related_entry_not_found"
)

// RecordStore is the persistence the workflow writes through. Every method is
// a separate round trip; nothing groups them unless the store is also a
// Transactor and the submitter runs atomically.
type RecordStore interface {
	CreateEntry(ctx context.Context, entry *models.Entry) error
	GetOrCreateGenre(ctx context.Context, name string) (*models.Genre, error)
	LinkGenre(ctx context.Context, entryID, genreID int) error
	// ResolveTitle returns the id of the user's entry with the given title
	// (ignoring case), or nil if there is none. excludeID is never returned.
	ResolveTitle(ctx context.Context, userID int, title string, excludeID int) (*int, error)
	LinkRelation(ctx context.Context, entryID int, relatedEntryID *int, title string) error
}

// Transactor runs fn against a RecordStore bound to a single transaction. The
// transaction is rolled back if fn returns an error.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store RecordStore) error) error
}

// ImageUpload is an image supplied with a submission.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// Submission is the input of the workflow. It's validated before anything is
// written.
type Submission struct {
	UserID         int          `json:"user_id" validate:"required,min=1"`
	Title          string       `json:"title" validate:"required,max=500"`
	Type           string       `json:"type" validate:"required,oneof=movie series anime game book"`
	Rating         int          `json:"rating" validate:"min=1,max=5"`
	Description    string       `json:"description" validate:"max=10000"`
	Comments       *string      `json:"comments" validate:"omitempty,max=10000"`
	Status         string       `json:"status" validate:"required,oneof=not_started in_progress completed paused dropped"`
	Date           string       `json:"date" validate:"date"`
	TotalSeasons   *int         `json:"total_seasons" validate:"omitempty,min=1"`
	CurrentSeason  *int         `json:"current_season" validate:"omitempty,min=0"`
	TotalEpisodes  *int         `json:"total_episodes" validate:"omitempty,min=1"`
	CurrentEpisode *int         `json:"current_episode" validate:"omitempty,min=0"`
	Genres         []string     `json:"genres" validate:"max=50,dive,max=100"`
	RelatedEntries []string     `json:"related_entries" validate:"max=50,dive,max=500"`
	Image          *ImageUpload `json:"-"`
}

// Notice is a non-fatal problem encountered while submitting.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Result describes a successful submission or reconciliation.
type Result struct {
	Entry           *models.Entry
	GenresLinked    int
	RelationsLinked int
	Notices         []Notice
}

type SubmitterOptions struct {
	ImageFailurePolicy string
	// Atomic wraps entry creation and linking in one transaction when the
	// store supports it.
	Atomic bool
	Now    func() time.Time
}

// Submitter persists one entry with its genre and related-entry links.
type Submitter struct {
	store   RecordStore
	objects storage.ObjectStore
	policy  string
	atomic  bool
	now     func() time.Time
}

func NewSubmitter(store RecordStore, objects storage.ObjectStore, opts SubmitterOptions) *Submitter {
	policy := opts.ImageFailurePolicy
	if policy != ImagePolicyAbort {
		policy = ImagePolicyProceed
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Submitter{
		store:   store,
		objects: objects,
		policy:  policy,
		atomic:  opts.Atomic,
		now:     now,
	}
}

// Submit validates the submission and then, in order: uploads the image,
// creates the entry, links each genre and links each related title. Any write
// failure stops the sequence and is returned as a *WriteError. Earlier writes
// stay committed unless the submitter is atomic.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*Result, error) {
	log := logger.FromContext(ctx)

	sub = s.normalize(sub)
	contentType, ext, err := s.validate(sub)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeValidationFailed)
		return nil, err
	}

	result := &Result{Notices: []Notice{}}

	var imageURL *string
	if sub.Image != nil {
		path := storage.ObjectPath(sub.UserID, ext, s.now())
		url, err := s.uploadImage(ctx, path, sub.Image.Data, contentType)
		if err != nil {
			metrics.RecordImageUploadFailure()
			if s.policy == ImagePolicyAbort {
				metrics.RecordSubmission(metrics.OutcomeUploadAborted)
				return nil, &UploadError{Path: path, Err: err}
			}
			log.Err(err).Warn("image upload failed, continuing without image", logger.Data{
				"user_id": sub.UserID,
				"path":    path,
			})
			result.Notices = append(result.Notices, Notice{
				Code:    NoticeImageDiscarded,
				Message: "The image couldn't be uploaded, so the entry was saved without it.",
				Value:   sub.Image.Filename,
			})
		} else {
			imageURL = &url
		}
	}

	entry := newEntry(sub, imageURL, s.now())

	if tx, ok := s.store.(Transactor); ok && s.atomic {
		err = tx.RunInTx(ctx, func(ctx context.Context, store RecordStore) error {
			// Counters are reset on every attempt so a rolled back run
			// doesn't report links that no longer exist.
			attempt := &Result{Notices: []Notice{}}
			if err := persist(ctx, store, entry, sub, attempt); err != nil {
				return err
			}
			result.GenresLinked = attempt.GenresLinked
			result.RelationsLinked = attempt.RelationsLinked
			result.Notices = append(result.Notices, attempt.Notices...)
			return nil
		})
		var writeErr *WriteError
		if errors.As(err, &writeErr) {
			writeErr.RolledBack = true
			writeErr.EntryID = 0
			writeErr.GenresLinked = 0
			writeErr.RelationsLinked = 0
		} else if err != nil {
			err = &WriteError{Step: StepCreateEntry, RolledBack: true, Err: errors.WithStack(err)}
		}
	} else {
		err = persist(ctx, s.store, entry, sub, result)
	}
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeWriteFailed)
		log.Err(err).Warn("entry submission failed", logger.Data{"user_id": sub.UserID})
		return nil, err
	}

	metrics.RecordSubmission(metrics.OutcomeCreated)
	result.Entry = entry
	log.Info("entry created", logger.Data{
		"user_id":          sub.UserID,
		"entry_id":         entry.ID,
		"genres_linked":    result.GenresLinked,
		"relations_linked": result.RelationsLinked,
	})
	return result, nil
}

// Relink runs the genre and relation steps again for an entry that already
// exists, e.g. after a submission failed partway through. Links that are
// already present are left alone, so it's safe to call repeatedly.
func (s *Submitter) Relink(ctx context.Context, entry *models.Entry, genres, relatedTitles []string) (*Result, error) {
	genres = dedupe(genres, false)
	relatedTitles = dedupe(relatedTitles, true)

	links := struct {
		Genres         []string `json:"genres" validate:"max=50,dive,max=100"`
		RelatedEntries []string `json:"related_entries" validate:"max=50,dive,max=500"`
	}{genres, relatedTitles}
	if err := binder.Validate(&links); err != nil {
		return nil, err
	}

	result := &Result{Entry: entry, Notices: []Notice{}}
	if err := linkAll(ctx, s.store, entry, genres, relatedTitles, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Submitter) uploadImage(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if s.objects == nil {
		return "", errors.New("no object store configured")
	}
	if err := s.objects.Upload(ctx, path, data, contentType); err != nil {
		return "", err
	}
	return s.objects.PublicURL(path), nil
}

// validate checks every precondition without touching any store. It returns
// the sniffed content type and extension of the image, if there is one.
func (s *Submitter) validate(sub Submission) (string, string, error) {
	if err := binder.Validate(&sub); err != nil {
		return "", "", err
	}
	if err := checkProgress("current_season", sub.CurrentSeason, "total_seasons", sub.TotalSeasons); err != nil {
		return "", "", err
	}
	if err := checkProgress("current_episode", sub.CurrentEpisode, "total_episodes", sub.TotalEpisodes); err != nil {
		return "", "", err
	}
	if sub.Image == nil {
		return "", "", nil
	}
	if len(sub.Image.Data) == 0 {
		return "", "", errcodes.ValidationError(`"image" is empty`)
	}
	contentType, ext, err := storage.DetectImage(sub.Image.Data)
	if err != nil {
		return "", "", errcodes.ValidationError(`"image" must be an image file`)
	}
	return contentType, ext, nil
}

func checkProgress(currentField string, current *int, totalField string, total *int) error {
	if current == nil || total == nil {
		return nil
	}
	if *current > *total {
		return errcodes.ValidationError(`"` + currentField + `" must be less than or equal to "` + totalField + `"`)
	}
	return nil
}

// normalize trims text, drops blank and repeated list items, clears progress
// counters for kinds that don't track them and fills in the date.
func (s *Submitter) normalize(sub Submission) Submission {
	sub.Title = strings.TrimSpace(sub.Title)
	sub.Type = strings.TrimSpace(sub.Type)
	sub.Status = strings.TrimSpace(sub.Status)
	sub.Date = strings.TrimSpace(sub.Date)
	if sub.Date == "" {
		sub.Date = s.now().UTC().Format(time.DateOnly)
	}
	if sub.Comments != nil && strings.TrimSpace(*sub.Comments) == "" {
		sub.Comments = nil
	}
	if !models.TracksProgress(sub.Type) {
		sub.TotalSeasons = nil
		sub.CurrentSeason = nil
		sub.TotalEpisodes = nil
		sub.CurrentEpisode = nil
	}
	sub.Genres = dedupe(sub.Genres, false)
	sub.RelatedEntries = dedupe(sub.RelatedEntries, true)
	return sub
}

// dedupe trims each item, drops blanks and keeps the first of any repeats.
// Related titles are compared ignoring case since that's how they resolve.
func dedupe(items []string, foldCase bool) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k := item
		if foldCase {
			k = strings.ToLower(item)
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

func newEntry(sub Submission, imageURL *string, now time.Time) *models.Entry {
	return &models.Entry{
		CreatedAt:      now,
		UpdatedAt:      now,
		UserID:         sub.UserID,
		Title:          sub.Title,
		Kind:           sub.Type,
		Rating:         sub.Rating,
		Description:    sub.Description,
		Comments:       sub.Comments,
		Status:         sub.Status,
		DateRecorded:   sub.Date,
		ImageURL:       imageURL,
		TotalSeasons:   sub.TotalSeasons,
		CurrentSeason:  sub.CurrentSeason,
		TotalEpisodes:  sub.TotalEpisodes,
		CurrentEpisode: sub.CurrentEpisode,
	}
}

func persist(ctx context.Context, store RecordStore, entry *models.Entry, sub Submission, result *Result) error {
	if err := store.CreateEntry(ctx, entry); err != nil {
		return &WriteError{Step: StepCreateEntry, Err: err}
	}
	return linkAll(ctx, store, entry, sub.Genres, sub.RelatedEntries, result)
}

func linkAll(ctx context.Context, store RecordStore, entry *models.Entry, genres, relatedTitles []string, result *Result) error {
	fail := func(step, item string, err error) error {
		return &WriteError{
			Step:            step,
			EntryID:         entry.ID,
			GenresLinked:    result.GenresLinked,
			RelationsLinked: result.RelationsLinked,
			Item:            item,
			Err:             err,
		}
	}

	for _, name := range genres {
		genre, err := store.GetOrCreateGenre(ctx, name)
		if err != nil {
			return fail(StepLinkGenres, name, err)
		}
		if err := store.LinkGenre(ctx, entry.ID, genre.ID); err != nil {
			return fail(StepLinkGenres, name, err)
		}
		result.GenresLinked++
	}

	for _, title := range relatedTitles {
		relatedID, err := store.ResolveTitle(ctx, entry.UserID, title, entry.ID)
		if err != nil {
			return fail(StepLinkRelations, title, err)
		}
		if err := store.LinkRelation(ctx, entry.ID, relatedID, title); err != nil {
			return fail(StepLinkRelations, title, err)
		}
		result.RelationsLinked++
		if relatedID == nil {
			metrics.RecordUnresolvedRelation()
			result.Notices = append(result.Notices, Notice{
				Code:    NoticeRelationNotFound,
				Message: "No entry with this title exists yet; the title was saved as written.",
				Value:   title,
			})
		}
	}

	return nil
}
