package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Genre is shared by every user and unique by name.
type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID         int       `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Name       string    `bun:",nullzero" json:"name"`
	EntryCount int       `bun:",scanonly" json:"entry_count"`
}
