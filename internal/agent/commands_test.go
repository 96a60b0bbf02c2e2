package agent

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"dmcontrol/internal/domain"
	"dmcontrol/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeSeries struct {
	calls []string
	ok    bool
	msg   string
}

func (f *fakeSeries) AddSeries(_ context.Context, name string) (bool, string) {
	f.calls = append(f.calls, name)
	return f.ok, f.msg
}

type fakeMovies struct {
	calls []string
	ok    bool
}

func (f *fakeMovies) AddMovie(_ context.Context, id string) bool {
	f.calls = append(f.calls, id)
	return f.ok
}

type fakeQueue struct {
	calls int
	stats *domain.QueueStats
}

func (f *fakeQueue) QueueStats(context.Context) *domain.QueueStats {
	f.calls++
	return f.stats
}

type fakeMedia struct {
	series *fakeSeries
	movies *fakeMovies
	queue  *fakeQueue
}

func newTestDispatcher() (*Dispatcher, *fakeMedia) {
	m := &fakeMedia{
		series: &fakeSeries{ok: true, msg: "Show added to my list"},
		movies: &fakeMovies{ok: true},
		queue: &fakeQueue{stats: &domain.QueueStats{
			Load:     "0.10 | 0.20 | 0.30 | V=100M R=50M",
			State:    "Downloading",
			DiskLeft: "120.5 G",
			SizeLeft: "1.2 GB",
			Speed:    "3.4 M",
		}},
	}
	d := NewDispatcher(DispatcherConfig{
		Series: m.series,
		Movies: m.movies,
		Queue:  m.queue,
		Prefix: "!",
		Logger: testLogger(),
	})
	return d, m
}

func TestDispatch_Show(t *testing.T) {
	d, m := newTestDispatcher()
	for _, name := range []string{"show", "series"} {
		reply := d.Dispatch(context.Background(), domain.Command{Name: name, Args: "Breaking Bad"})
		if reply != "Show added to my list (Breaking Bad)" {
			t.Errorf("%s: unexpected reply %q", name, reply)
		}
	}
	if len(m.series.calls) != 2 || m.series.calls[0] != "Breaking Bad" {
		t.Errorf("expected 2 series lookups for Breaking Bad, got %v", m.series.calls)
	}
}

func TestDispatch_ShowFailureMessage(t *testing.T) {
	d, m := newTestDispatcher()
	m.series.ok = false
	m.series.msg = "I couldn't find that show, sorry"
	reply := d.Dispatch(context.Background(), domain.Command{Name: "show", Args: "Nope"})
	if reply != "I couldn't find that show, sorry (Nope)" {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestDispatch_Movie(t *testing.T) {
	d, m := newTestDispatcher()
	if reply := d.Dispatch(context.Background(), domain.Command{Name: "movie", Args: "tt0111161"}); reply != "Movie success (tt0111161)" {
		t.Errorf("unexpected reply %q", reply)
	}

	m.movies.ok = false
	if reply := d.Dispatch(context.Background(), domain.Command{Name: "film", Args: "tt0111161"}); reply != "Movie failure (tt0111161)" {
		t.Errorf("unexpected reply %q", reply)
	}
	if len(m.movies.calls) != 2 {
		t.Errorf("expected 2 movie calls, got %d", len(m.movies.calls))
	}
}

func TestDispatch_Stats(t *testing.T) {
	d, m := newTestDispatcher()
	reply := d.Dispatch(context.Background(), domain.Command{Name: "status"})
	want := "--- Server Stats ---\n" +
		"Load: 0.10 | 0.20 | 0.30 | V=100M R=50M\n" +
		"Status: Downloading\n" +
		"Disk Space Remaining: 120.5 G\n" +
		"Download Size Remaining: 1.2 GB\n" +
		"Download Speed: 3.4 M"
	if reply != want {
		t.Errorf("unexpected stats reply:\n%s", reply)
	}
	if m.queue.calls != 1 {
		t.Errorf("expected 1 queue call, got %d", m.queue.calls)
	}
}

func TestDispatch_StatsUnavailable(t *testing.T) {
	d, m := newTestDispatcher()
	m.queue.stats = nil
	if reply := d.Dispatch(context.Background(), domain.Command{Name: "stats"}); reply != ReplyNoStats {
		t.Errorf("expected %q, got %q", ReplyNoStats, reply)
	}
}

func TestDispatch_Help(t *testing.T) {
	d, _ := newTestDispatcher()
	reply := d.Dispatch(context.Background(), domain.Command{Name: "help"})
	if !strings.HasPrefix(reply, "[!]") {
		t.Errorf("help should show the prefix, got %q", reply)
	}
	for _, word := range []string{"show", "movie", "stats"} {
		if !strings.Contains(reply, word) {
			t.Errorf("help should mention %s, got %q", word, reply)
		}
	}
}

func TestDispatch_UnknownMakesNoCalls(t *testing.T) {
	d, m := newTestDispatcher()
	before := metrics.CommandCounter("unknown").Value()

	for _, name := range []string{"reboot", ""} {
		if reply := d.Dispatch(context.Background(), domain.Command{Name: name, Args: "x"}); reply != ReplyUnknown {
			t.Errorf("%q: expected %q, got %q", name, ReplyUnknown, reply)
		}
	}
	if len(m.series.calls)+len(m.movies.calls)+m.queue.calls != 0 {
		t.Error("unknown command should not call any service")
	}
	if got := metrics.CommandCounter("unknown").Value() - before; got != 2 {
		t.Errorf("expected unknown counter +2, got +%d", got)
	}
}
