package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dmcontrol/internal/domain"
	"dmcontrol/internal/metrics"
)

// Fixed replies.
const (
	ReplyUnknown   = "I'm not sure what I have to do"
	ReplyNoStats   = "I couldn't get the stats"
	movieSuccess   = "Movie success"
	movieFailure   = "Movie failure"
	statsHeaderRow = "--- Server Stats ---"
)

// Dispatcher maps a command name to a media action and renders the reply.
type Dispatcher struct {
	series domain.SeriesAdder
	movies domain.MovieAdder
	queue  domain.QueueReporter
	prefix string
	logger *slog.Logger
}

type DispatcherConfig struct {
	Series domain.SeriesAdder
	Movies domain.MovieAdder
	Queue  domain.QueueReporter
	Prefix string // command_start_character, shown in help
	Logger *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		series: cfg.Series,
		movies: cfg.Movies,
		queue:  cfg.Queue,
		prefix: cfg.Prefix,
		logger: cfg.Logger,
	}
}

// Dispatch runs cmd and returns exactly one reply. Downstream failures are
// already folded into reply text by the media services.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command) string {
	name := strings.ToLower(cmd.Name)
	args := cmd.Args
	d.logger.Debug("processing command", "command", name, "args", args)

	var reply string
	switch name {
	case "show", "series":
		ok, msg := d.series.AddSeries(ctx, args)
		d.logger.Debug("add show returned", "show", args, "ok", ok, "message", msg)
		reply = fmt.Sprintf("%s (%s)", msg, args)

	case "movie", "film":
		if d.movies.AddMovie(ctx, args) {
			d.logger.Debug("movie added", "movie", args)
			reply = fmt.Sprintf("%s (%s)", movieSuccess, args)
		} else {
			d.logger.Debug("movie failed to add", "movie", args)
			reply = fmt.Sprintf("%s (%s)", movieFailure, args)
		}

	case "stats", "status":
		stats := d.queue.QueueStats(ctx)
		if stats == nil {
			d.logger.Debug("failed to get stats")
			reply = ReplyNoStats
		} else {
			reply = formatStats(stats)
		}

	case "help":
		reply = helpText(d.prefix)

	default:
		name = "unknown"
		reply = ReplyUnknown
	}

	metrics.CommandCounter(name).Inc()
	return reply
}

func helpText(prefix string) string {
	return "[" + prefix + "] show|series: <name>, movie|film: <IMDB ID>, stats|status, help"
}

func formatStats(s *domain.QueueStats) string {
	var sb strings.Builder
	sb.WriteString(statsHeaderRow + "\n")
	sb.WriteString("Load: " + s.Load + "\n")
	sb.WriteString("Status: " + s.State + "\n")
	sb.WriteString("Disk Space Remaining: " + s.DiskLeft + "\n")
	sb.WriteString("Download Size Remaining: " + s.SizeLeft + "\n")
	sb.WriteString("Download Speed: " + s.Speed)
	return sb.String()
}
