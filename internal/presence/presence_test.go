package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/pable/go-hll-metrics/internal/model"
)

var start = time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)

func closedGame(d time.Duration) *model.Game {
	end := start.Add(d)
	secs := int(d / time.Second)
	return &model.Game{Key: "1_1", Server: "1", Number: 1, StartTime: start, EndTime: &end, Ended: true, Duration: &secs}
}

func transitionEvent(id string, offset time.Duration, typ model.EventType) model.RawEvent {
	return model.RawEvent{
		EventTime: start.Add(offset),
		Type:      typ,
		Player1:   &model.Actor{ID: id, Name: id},
		Server:    "1",
	}
}

func find(t *testing.T, results []Result, id string) Result {
	t.Helper()
	for _, r := range results {
		if r.PlayerID == id {
			return r
		}
	}
	t.Fatalf("no presence for %s", id)
	return Result{}
}

func TestTrack_DisconnectFirstUsesWarmUp(t *testing.T) {
	g := closedGame(3600 * time.Second)
	events := []model.RawEvent{
		transitionEvent("p", 1200*time.Second, model.EventDisconnected),
		transitionEvent("p", 1500*time.Second, model.EventConnected),
	}

	r := find(t, Track(g, events), "p")
	if !r.Valid() {
		t.Fatalf("unexpected invalid presence: %v", r.Err)
	}
	if len(r.Intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(r.Intervals))
	}
	if want := start.Add(WarmUp); !r.Intervals[0].Connect.Equal(want) {
		t.Errorf("first connect = %v, want %v", r.Intervals[0].Connect, want)
	}
	if !r.Intervals[1].Disconnect.Equal(*g.EndTime) {
		t.Errorf("last disconnect = %v, want game end", r.Intervals[1].Disconnect)
	}
	// 300..1200 plus 1500..3600
	if r.Seconds != 900+2100 {
		t.Errorf("seconds = %v, want 3000", r.Seconds)
	}
}

func TestTrack_NoTransitionsFullPresenceMinusWarmUp(t *testing.T) {
	g := closedGame(1800 * time.Second)
	kill := model.RawEvent{
		EventTime: start.Add(60 * time.Second),
		Type:      model.EventKill,
		Player1:   &model.Actor{ID: "a"},
		Player2:   &model.Actor{ID: "b"},
	}

	results := Track(g, []model.RawEvent{kill})
	if len(results) != 2 {
		t.Fatalf("expected 2 players, got %d", len(results))
	}
	for _, r := range results {
		if r.Seconds != 1500 {
			t.Errorf("%s: seconds = %v, want 1500", r.PlayerID, r.Seconds)
		}
	}
}

func TestTrack_ShortGameClampsToZero(t *testing.T) {
	g := closedGame(120 * time.Second)
	r := find(t, Track(g, []model.RawEvent{{Type: model.EventKill, EventTime: start, Player1: &model.Actor{ID: "a"}}}), "a")
	if r.Seconds != 0 {
		t.Errorf("seconds = %v, want 0", r.Seconds)
	}
}

func TestTrack_ConnectedAtEndClosesAtGameEnd(t *testing.T) {
	g := closedGame(3600 * time.Second)
	r := find(t, Track(g, []model.RawEvent{transitionEvent("p", 600*time.Second, model.EventConnected)}), "p")
	if r.Seconds != 3000 {
		t.Errorf("seconds = %v, want 3000", r.Seconds)
	}
}

func TestTrack_OddParityIsInvalid(t *testing.T) {
	g := closedGame(3600 * time.Second)
	// CONNECTED, CONNECTED, DISCONNECTED cannot be paired.
	events := []model.RawEvent{
		transitionEvent("p", 400*time.Second, model.EventConnected),
		transitionEvent("p", 500*time.Second, model.EventConnected),
		transitionEvent("p", 900*time.Second, model.EventDisconnected),
	}
	r := find(t, Track(g, events), "p")
	if r.Valid() {
		t.Fatal("expected invalid presence")
	}
	if !errors.Is(r.Err, ErrUnpaired) {
		t.Errorf("err = %v, want ErrUnpaired", r.Err)
	}
	if len(r.Intervals) != 0 || r.Seconds != 0 {
		t.Errorf("invalid presence must carry no intervals")
	}
}

func TestTrack_MispairedIsInvalid(t *testing.T) {
	g := closedGame(3600 * time.Second)
	// After correction: C D | D C | C D(end), the second pair is reversed.
	events := []model.RawEvent{
		transitionEvent("p", 400*time.Second, model.EventConnected),
		transitionEvent("p", 500*time.Second, model.EventDisconnected),
		transitionEvent("p", 600*time.Second, model.EventDisconnected),
		transitionEvent("p", 700*time.Second, model.EventConnected),
		transitionEvent("p", 800*time.Second, model.EventConnected),
	}
	if r := find(t, Track(g, events), "p"); r.Valid() {
		t.Fatal("expected invalid presence")
	}
}

func TestTrack_UnorderedTransitions(t *testing.T) {
	g := closedGame(1800 * time.Second)
	ordered := []model.RawEvent{
		transitionEvent("p", 400*time.Second, model.EventDisconnected),
		transitionEvent("p", 1000*time.Second, model.EventConnected),
	}
	shuffled := []model.RawEvent{ordered[1], ordered[0]}

	want := find(t, Track(g, ordered), "p")
	got := find(t, Track(g, shuffled), "p")
	if !got.Valid() {
		t.Fatalf("unexpected invalid presence: %v", got.Err)
	}
	// 300..400 plus 1000..1800
	if got.Seconds != 900 || got.Seconds != want.Seconds {
		t.Errorf("presence = %v, want 900 (ordered input gave %v)", got.Seconds, want.Seconds)
	}
	if len(got.Intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(got.Intervals))
	}
}

func TestTrack_TotalNeverExceedsDuration(t *testing.T) {
	durations := []time.Duration{0, 60 * time.Second, 301 * time.Second, 3600 * time.Second}
	for _, d := range durations {
		g := closedGame(d)
		events := []model.RawEvent{
			transitionEvent("p", d/4, model.EventDisconnected),
			transitionEvent("p", d/3, model.EventConnected),
			transitionEvent("p", d/2, model.EventDisconnected),
			transitionEvent("q", d/2, model.EventConnected),
		}
		for _, r := range Track(g, events) {
			if r.Seconds > d.Seconds() {
				t.Errorf("duration %v: %s presence %v exceeds duration", d, r.PlayerID, r.Seconds)
			}
			for i := 1; i < len(r.Intervals); i++ {
				if r.Intervals[i].Connect.Before(r.Intervals[i-1].Disconnect) {
					t.Errorf("duration %v: %s intervals overlap", d, r.PlayerID)
				}
			}
		}
	}
}

func TestTrack_OpenGameYieldsNothing(t *testing.T) {
	g := &model.Game{Key: "1_1", StartTime: start}
	if got := Track(g, nil); got != nil {
		t.Errorf("expected nil for open game, got %v", got)
	}
}
