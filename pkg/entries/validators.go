package entries

import (
	"mime/multipart"
)

// CreateEntryPayload is the body of POST /entries, sent either as JSON or as a
// multipart form with an optional "image" file part. Repeated "genres" and
// "related_entries" form fields build the lists.
type CreateEntryPayload struct {
	Title          string   `form:"title" json:"title" mod:"trim" validate:"required,max=500"`
	Type           string   `form:"type" json:"type" mod:"trim" validate:"required,oneof=movie series anime game book"`
	Rating         int      `form:"rating" json:"rating" validate:"min=1,max=5"`
	Description    string   `form:"description" json:"description" validate:"max=10000"`
	Comments       *string  `form:"comments" json:"comments" validate:"omitempty,max=10000"`
	Status         string   `form:"status" json:"status" mod:"trim" validate:"required,oneof=not_started in_progress completed paused dropped"`
	Date           string   `form:"date" json:"date" mod:"trim" validate:"date"`
	TotalSeasons   *int     `form:"total_seasons" json:"total_seasons" validate:"omitempty,min=1"`
	CurrentSeason  *int     `form:"current_season" json:"current_season" validate:"omitempty,min=0"`
	TotalEpisodes  *int     `form:"total_episodes" json:"total_episodes" validate:"omitempty,min=1"`
	CurrentEpisode *int     `form:"current_episode" json:"current_episode" validate:"omitempty,min=0"`
	Genres         []string `form:"genres" json:"genres" validate:"max=50,dive,max=100"`
	RelatedEntries []string `form:"related_entries" json:"related_entries" validate:"max=50,dive,max=500"`

	FormFiles map[string]*multipart.FileHeader `form:"-" json:"-"`
}

// LinksPayload is the body of POST /entries/:id/links.
type LinksPayload struct {
	Genres         []string `json:"genres" validate:"max=50,dive,max=100"`
	RelatedEntries []string `json:"related_entries" validate:"max=50,dive,max=500"`
}

// CreateEntryResponse is returned when an entry is created.
type CreateEntryResponse struct {
	Entry   EntryView `json:"entry"`
	Notices []Notice  `json:"notices"`
}

// LinksResponse is returned after a reconciliation.
type LinksResponse struct {
	Entry           EntryView `json:"entry"`
	GenresLinked    int       `json:"genres_linked"`
	RelationsLinked int       `json:"relations_linked"`
	Notices         []Notice  `json:"notices"`
}

// ListEntriesResponse is the filtered list along with every genre present on
// the user's unfiltered collection.
type ListEntriesResponse struct {
	Entries []EntryView `json:"entries"`
	Genres  []string    `json:"genres"`
	Total   int         `json:"total"`
}

// OptionsResponse lists the values the entry form offers.
type OptionsResponse struct {
	Types     []string `json:"types"`
	Statuses  []string `json:"statuses"`
	MinRating int      `json:"min_rating"`
	MaxRating int      `json:"max_rating"`
}

func (p CreateEntryPayload) submission(userID int, image *ImageUpload) Submission {
	return Submission{
		UserID:         userID,
		Title:          p.Title,
		Type:           p.Type,
		Rating:         p.Rating,
		Description:    p.Description,
		Comments:       p.Comments,
		Status:         p.Status,
		Date:           p.Date,
		TotalSeasons:   p.TotalSeasons,
		CurrentSeason:  p.CurrentSeason,
		TotalEpisodes:  p.TotalEpisodes,
		CurrentEpisode: p.CurrentEpisode,
		Genres:         p.Genres,
		RelatedEntries: p.RelatedEntries,
		Image:          image,
	}
}
