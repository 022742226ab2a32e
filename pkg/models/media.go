package models

// Media kinds an entry can track.
const (
	MediaKindMovie  = "movie"
	MediaKindSeries = "series"
	MediaKindAnime  = "anime"
	MediaKindGame   = "game"
	MediaKindBook   = "book"
)

// Entry statuses.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPaused     = "paused"
	StatusDropped    = "dropped"
)

var MediaKinds = []string{
	MediaKindMovie,
	MediaKindSeries,
	MediaKindAnime,
	MediaKindGame,
	MediaKindBook,
}

var Statuses = []string{
	StatusNotStarted,
	StatusInProgress,
	StatusCompleted,
	StatusPaused,
	StatusDropped,
}

// Ratings are stored in [UnratedRating, MaxRating] but a new entry must be
// rated at least MinRating.
const (
	UnratedRating = 0
	MinRating     = 1
	MaxRating     = 5
)

// TracksProgress reports whether season and episode counters are meaningful
// for the given media kind.
func TracksProgress(kind string) bool {
	return kind == MediaKindSeries || kind == MediaKindAnime
}
