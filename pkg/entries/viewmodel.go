package entries

import (
	"time"

	"github.com/watchlog/watchlog/pkg/models"
)

// EntryView is the flattened, display-ready shape of an entry. Genres and
// RelatedEntries are never nil so they always encode as JSON arrays.
type EntryView struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	Title          string    `json:"title"`
	Type           string    `json:"type"`
	Rating         int       `json:"rating"`
	Description    string    `json:"description"`
	Comments       *string   `json:"comments"`
	Status         string    `json:"status"`
	Date           string    `json:"date"`
	ImageURL       *string   `json:"image_url"`
	TotalSeasons   *int      `json:"total_seasons"`
	CurrentSeason  *int      `json:"current_season"`
	TotalEpisodes  *int      `json:"total_episodes"`
	CurrentEpisode *int      `json:"current_episode"`
	Genres         []string  `json:"genres"`
	RelatedEntries []string  `json:"related_entries"`
}

// NewEntryView maps an entry loaded with its genre and relation rows. Order
// follows the rows as loaded and duplicates are kept. A relation to an entry
// that still exists shows that entry's current title; otherwise the title
// recorded at write time is used.
func NewEntryView(e *models.Entry) EntryView {
	v := EntryView{
		ID:             e.ID,
		UserID:         e.UserID,
		CreatedAt:      e.CreatedAt,
		Title:          e.Title,
		Type:           e.Kind,
		Rating:         e.Rating,
		Description:    e.Description,
		Comments:       e.Comments,
		Status:         e.Status,
		Date:           e.DateRecorded,
		ImageURL:       e.ImageURL,
		TotalSeasons:   e.TotalSeasons,
		CurrentSeason:  e.CurrentSeason,
		TotalEpisodes:  e.TotalEpisodes,
		CurrentEpisode: e.CurrentEpisode,
		Genres:         make([]string, 0, len(e.EntryGenres)),
		RelatedEntries: make([]string, 0, len(e.Relations)),
	}

	for _, eg := range e.EntryGenres {
		if eg == nil || eg.Genre == nil {
			continue
		}
		v.Genres = append(v.Genres, eg.Genre.Name)
	}

	for _, rel := range e.Relations {
		if rel == nil {
			continue
		}
		if rel.RelatedEntry != nil && rel.RelatedEntry.Title != "" {
			v.RelatedEntries = append(v.RelatedEntries, rel.RelatedEntry.Title)
			continue
		}
		if rel.RelatedEntryTitle != "" {
			v.RelatedEntries = append(v.RelatedEntries, rel.RelatedEntryTitle)
		}
	}

	return v
}

// NewEntryViews maps a list of entries, keeping their order.
func NewEntryViews(list []*models.Entry) []EntryView {
	views := make([]EntryView, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		views = append(views, NewEntryView(e))
	}
	return views
}
