package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		pk := primaryKey(db)
		return execAll(ctx, db,
			`CREATE TABLE users (
				`+pk+`,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				email TEXT NOT NULL,
				password_hash TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_users_email ON users (LOWER(email))`,
			`CREATE TABLE entries (
				`+pk+`,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				user_id INTEGER REFERENCES users (id) ON DELETE CASCADE NOT NULL,
				title TEXT NOT NULL,
				kind TEXT NOT NULL CHECK (kind IN ('movie', 'series', 'anime', 'game', 'book')),
				rating INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 5),
				description TEXT NOT NULL DEFAULT '',
				comments TEXT,
				status TEXT NOT NULL CHECK (status IN ('not_started', 'in_progress', 'completed', 'paused', 'dropped')),
				date_recorded TEXT NOT NULL,
				image_url TEXT,
				total_seasons INTEGER,
				current_season INTEGER,
				total_episodes INTEGER,
				current_episode INTEGER,
				CHECK (current_season IS NULL OR total_seasons IS NULL OR current_season <= total_seasons),
				CHECK (current_episode IS NULL OR total_episodes IS NULL OR current_episode <= total_episodes)
			)`,
			`CREATE INDEX ix_entries_user_created ON entries (user_id, created_at)`,
			`CREATE TABLE genres (
				`+pk+`,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_genres_name ON genres (name)`,
			`CREATE TABLE entry_genres (
				`+pk+`,
				entry_id INTEGER REFERENCES entries (id) ON DELETE CASCADE NOT NULL,
				genre_id INTEGER REFERENCES genres (id) ON DELETE CASCADE NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_entry_genres ON entry_genres (entry_id, genre_id)`,
			`CREATE INDEX ix_entry_genres_genre_id ON entry_genres (genre_id)`,
			`CREATE TABLE entry_relations (
				`+pk+`,
				entry_id INTEGER REFERENCES entries (id) ON DELETE CASCADE NOT NULL,
				related_entry_id INTEGER REFERENCES entries (id) ON DELETE SET NULL,
				related_entry_title TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_entry_relations ON entry_relations (entry_id, LOWER(related_entry_title))`,
			`CREATE INDEX ix_entry_relations_related_entry_id ON entry_relations (related_entry_id)`,
		)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return execAll(ctx, db,
			`DROP TABLE IF EXISTS entry_relations`,
			`DROP TABLE IF EXISTS entry_genres`,
			`DROP TABLE IF EXISTS genres`,
			`DROP TABLE IF EXISTS entries`,
			`DROP TABLE IF EXISTS users`,
		)
	}

	Migrations.MustRegister(up, down)
}
