package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Entry struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	ID             int       `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	UserID         int       `bun:",nullzero" json:"user_id"`
	Title          string    `bun:",nullzero" json:"title"`
	Kind           string    `bun:",nullzero" json:"type"`
	Rating         int       `json:"rating"`
	Description    string    `json:"description"`
	Comments       *string   `json:"comments"`
	Status         string    `bun:",nullzero" json:"status"`
	DateRecorded   string    `bun:",nullzero" json:"date_recorded"`
	ImageURL       *string   `json:"image_url"`
	TotalSeasons   *int      `json:"total_seasons,omitempty"`
	CurrentSeason  *int      `json:"current_season,omitempty"`
	TotalEpisodes  *int      `json:"total_episodes,omitempty"`
	CurrentEpisode *int      `json:"current_episode,omitempty"`

	// Relations
	EntryGenres []*EntryGenre    `bun:"rel:has-many,join:id=entry_id" json:"entry_genres,omitempty"`
	Relations   []*EntryRelation `bun:"rel:has-many,join:id=entry_id" json:"entry_relations,omitempty"`
}

type EntryGenre struct {
	bun.BaseModel `bun:"table:entry_genres,alias:eg"`

	ID      int    `bun:",pk,nullzero" json:"id"`
	EntryID int    `bun:",nullzero" json:"entry_id"`
	GenreID int    `bun:",nullzero" json:"genre_id"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id" json:"genre,omitempty"`
}

// EntryRelation is a directed link from an entry to another entry of the same
// user. The title is always recorded; RelatedEntryID is only set when the
// title matched an existing entry at write time.
type EntryRelation struct {
	bun.BaseModel `bun:"table:entry_relations,alias:er"`

	ID                int    `bun:",pk,nullzero" json:"id"`
	EntryID           int    `bun:",nullzero" json:"entry_id"`
	RelatedEntryID    *int   `json:"related_entry_id"`
	RelatedEntryTitle string `bun:",nullzero" json:"related_entry_title"`
	RelatedEntry      *Entry `bun:"rel:belongs-to,join:related_entry_id=id" json:"related_entry,omitempty"`
}
