package domain

import "context"

// SeriesAdder adds a TV series by free-text name. The message is user-facing.
type SeriesAdder interface {
	AddSeries(ctx context.Context, name string) (ok bool, message string)
}

// MovieAdder submits a movie identifier (IMDB id) for download.
type MovieAdder interface {
	AddMovie(ctx context.Context, id string) bool
}

// QueueReporter reports download queue status. Nil means the stats are unavailable.
type QueueReporter interface {
	QueueStats(ctx context.Context) *QueueStats
}

// QueueStats is the download queue status as the download manager formats it.
type QueueStats struct {
	Load     string `json:"loadavg"`
	State    string `json:"status"`
	DiskLeft string `json:"diskspace1_norm"`
	SizeLeft string `json:"sizeleft"`
	Speed    string `json:"speed"`
}
