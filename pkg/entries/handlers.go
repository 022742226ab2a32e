package entries

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/watchlog/watchlog/pkg/auth"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/models"
	"github.com/watchlog/watchlog/pkg/viewcache"
)

const imageFormField = "image"

type handler struct {
	entryService  *Service
	submitter     *Submitter
	cache         viewcache.Cache
	imageMaxBytes int64
}

func currentUserID(c echo.Context) (int, error) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return 0, errcodes.Unauthorized("Authentication required")
	}
	return userID, nil
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	params := Criteria{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	views, err := h.loadViews(ctx, userID)
	if err != nil {
		return errors.WithStack(err)
	}

	filtered := Filter(views, params)
	return errors.WithStack(c.JSON(http.StatusOK, ListEntriesResponse{
		Entries: filtered,
		Genres:  KnownGenres(views),
		Total:   len(filtered),
	}))
}

// loadViews returns the user's whole mapped collection, newest first, from the
// cache when possible.
func (h *handler) loadViews(ctx context.Context, userID int) ([]EntryView, error) {
	log := logger.FromContext(ctx)

	if h.cache != nil {
		views := []EntryView{}
		found, err := h.cache.Get(ctx, userID, &views)
		if err != nil {
			log.Err(err).Warn("view cache read failed", logger.Data{"user_id": userID})
		} else if found {
			return views, nil
		}
	}

	list, err := h.entryService.ListEntries(ctx, ListEntriesOptions{UserID: userID})
	if err != nil {
		return nil, err
	}
	views := NewEntryViews(list)

	if h.cache != nil {
		if err := h.cache.Set(ctx, userID, views); err != nil {
			log.Err(err).Warn("view cache write failed", logger.Data{"user_id": userID})
		}
	}
	return views, nil
}

func (h *handler) invalidate(ctx context.Context, userID int) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, userID); err != nil {
		logger.FromContext(ctx).Err(err).Warn("view cache invalidation failed", logger.Data{"user_id": userID})
	}
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Entry")
	}

	entry, err := h.entryService.RetrieveEntry(ctx, RetrieveEntryOptions{ID: id, UserID: userID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, NewEntryView(entry)))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	params := CreateEntryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	image, err := h.readImage(params)
	if err != nil {
		return err
	}

	result, err := h.submitter.Submit(ctx, params.submission(userID, image))
	if err != nil {
		h.invalidateOnPartialWrite(ctx, userID, err)
		return toHTTPError(err)
	}
	h.invalidate(ctx, userID)

	entry, err := h.entryService.RetrieveEntry(ctx, RetrieveEntryOptions{ID: result.Entry.ID, UserID: userID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, CreateEntryResponse{
		Entry:   NewEntryView(entry),
		Notices: result.Notices,
	}))
}

// invalidateOnPartialWrite drops the cached list when a failed submission
// still left rows behind, so the partial entry shows up on the next read.
func (h *handler) invalidateOnPartialWrite(ctx context.Context, userID int, err error) {
	var writeErr *WriteError
	if errors.As(err, &writeErr) && writeErr.EntryID != 0 && !writeErr.RolledBack {
		h.invalidate(ctx, userID)
	}
}

func (h *handler) readImage(params CreateEntryPayload) (*ImageUpload, error) {
	fh, ok := params.FormFiles[imageFormField]
	if !ok || fh == nil {
		return nil, nil
	}
	if h.imageMaxBytes > 0 && fh.Size > h.imageMaxBytes {
		return nil, errcodes.PayloadTooLarge(h.imageMaxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.imageMaxBytes > 0 {
		r = io.LimitReader(f, h.imageMaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if h.imageMaxBytes > 0 && int64(len(data)) > h.imageMaxBytes {
		return nil, errcodes.PayloadTooLarge(h.imageMaxBytes)
	}

	return &ImageUpload{Filename: fh.Filename, Data: data}, nil
}

func (h *handler) links(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Entry")
	}

	params := LinksPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.entryService.RetrieveEntry(ctx, RetrieveEntryOptions{ID: id, UserID: userID})
	if err != nil {
		return errors.WithStack(err)
	}

	result, err := h.submitter.Relink(ctx, entry, params.Genres, params.RelatedEntries)
	h.invalidate(ctx, userID)
	if err != nil {
		return toHTTPError(err)
	}

	entry, err = h.entryService.RetrieveEntry(ctx, RetrieveEntryOptions{ID: id, UserID: userID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, LinksResponse{
		Entry:           NewEntryView(entry),
		GenresLinked:    result.GenresLinked,
		RelationsLinked: result.RelationsLinked,
		Notices:         result.Notices,
	}))
}

func (h *handler) options(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, OptionsResponse{
		Types:     models.MediaKinds,
		Statuses:  models.Statuses,
		MinRating: models.MinRating,
		MaxRating: models.MaxRating,
	}))
}
