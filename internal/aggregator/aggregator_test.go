package aggregator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pable/go-hll-metrics/internal/model"
)

var start = time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)

const eps = 1e-9

func closedGame(d time.Duration) *model.Game {
	end := start.Add(d)
	secs := int(d / time.Second)
	return &model.Game{Key: "1_1", Server: "1", Number: 1, StartTime: start, EndTime: &end, Ended: true, Duration: &secs}
}

func killEvent(offset time.Duration, killer, victim string) model.RawEvent {
	w := "M1 GARAND"
	return model.RawEvent{
		EventTime: start.Add(offset),
		Type:      model.EventKill,
		Player1:   &model.Actor{ID: killer, Name: "name-" + killer},
		Player2:   &model.Actor{ID: victim, Name: "name-" + victim},
		Weapon:    &w,
	}
}

func statsFor(t *testing.T, res *Result, id string) model.PlayerGameStats {
	t.Helper()
	for _, s := range res.Stats {
		if s.PlayerID == id {
			return s
		}
	}
	t.Fatalf("no stats for %s", id)
	return model.PlayerGameStats{}
}

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

// ---- Rate tests ----

// TestAnalyze_Rates: 1800s connected, 10 kills, 5 deaths.
func TestAnalyze_Rates(t *testing.T) {
	// No transitions: presence = duration - warm-up = 1800s.
	g := closedGame(2100 * time.Second)
	var events []model.RawEvent
	for i := 0; i < 10; i++ {
		events = append(events, killEvent(time.Duration(400+i)*time.Second, "a", "b"))
	}
	for i := 0; i < 5; i++ {
		events = append(events, killEvent(time.Duration(600+i)*time.Second, "b", "a"))
	}

	res, err := Analyze(g, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := statsFor(t, res, "a")
	if a.ConnectedSeconds != 1800 {
		t.Fatalf("connected seconds = %v, want 1800", a.ConnectedSeconds)
	}
	if a.Kills != 10 || a.Deaths != 5 {
		t.Fatalf("kills/deaths = %d/%d, want 10/5", a.Kills, a.Deaths)
	}
	if !approx(a.KPM, 10.0/30.0) {
		t.Errorf("KPM = %v, want 0.3333", a.KPM)
	}
	if !approx(a.DPM, 5.0/30.0) {
		t.Errorf("DPM = %v, want 0.1667", a.DPM)
	}
	if a.Ratio != 2 {
		t.Errorf("ratio = %v, want 2", a.Ratio)
	}
	if a.Name != "name-a" {
		t.Errorf("name = %q, want name-a", a.Name)
	}

	wantGF := math.Pow(1800.0/2100.0, GrowthExponent) * a.KPM
	if !approx(a.GrowthFactor, wantGF) {
		t.Errorf("gf = %v, want %v", a.GrowthFactor, wantGF)
	}

	b := statsFor(t, res, "b")
	wantScore := math.Pow(b.GrowthFactor*10/10, ScoreExponent) * a.GrowthFactor
	if !approx(a.Score, wantScore) {
		t.Errorf("score = %v, want %v", a.Score, wantScore)
	}

	// Stats are ordered by kills descending.
	if res.Stats[0].PlayerID != "a" {
		t.Errorf("first player = %s, want a", res.Stats[0].PlayerID)
	}
}

func TestAnalyze_ZeroConnectedTimeGivesZeroRates(t *testing.T) {
	// Shorter than the warm-up: nobody is credited any presence.
	g := closedGame(200 * time.Second)
	res, err := Analyze(g, []model.RawEvent{killEvent(100*time.Second, "a", "b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := statsFor(t, res, "a")
	if a.Kills != 1 {
		t.Fatalf("kills = %d, want 1", a.Kills)
	}
	if a.KPM != 0 || a.DPM != 0 || a.GrowthFactor != 0 || a.Score != 0 {
		t.Errorf("expected zero rates, got KPM=%v DPM=%v gf=%v score=%v", a.KPM, a.DPM, a.GrowthFactor, a.Score)
	}
	if math.IsNaN(a.WeightedKPM) || math.IsInf(a.WeightedKPM, 0) {
		t.Errorf("weighted KPM is not finite: %v", a.WeightedKPM)
	}
}

func TestAnalyze_RatioWithoutDeathsIsKills(t *testing.T) {
	g := closedGame(time.Hour)
	res, err := Analyze(g, []model.RawEvent{
		killEvent(400*time.Second, "a", "b"),
		killEvent(500*time.Second, "a", "c"),
		killEvent(600*time.Second, "a", "d"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := statsFor(t, res, "a").Ratio; r != 3 {
		t.Errorf("ratio = %v, want 3", r)
	}
	if r := statsFor(t, res, "b").Ratio; r != 0 {
		t.Errorf("ratio = %v, want 0", r)
	}
}

// ---- Exclusion tests ----

func TestAnalyze_InvalidPresenceExcluded(t *testing.T) {
	g := closedGame(time.Hour)
	events := []model.RawEvent{
		{EventTime: start.Add(400 * time.Second), Type: model.EventConnected, Player1: &model.Actor{ID: "x", Name: "X"}},
		{EventTime: start.Add(500 * time.Second), Type: model.EventConnected, Player1: &model.Actor{ID: "x", Name: "X"}},
		{EventTime: start.Add(900 * time.Second), Type: model.EventDisconnected, Player1: &model.Actor{ID: "x", Name: "X"}},
		killEvent(1000*time.Second, "a", "x"),
	}
	res, err := Analyze(g, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Excluded) != 1 || res.Excluded[0].PlayerID != "x" {
		t.Fatalf("excluded = %+v, want x", res.Excluded)
	}
	for _, s := range res.Stats {
		if s.PlayerID == "x" {
			t.Error("excluded player must not have stats")
		}
	}
	// x has no gf, so a's kill of x scores nothing.
	if a := statsFor(t, res, "a"); a.Score != 0 {
		t.Errorf("score = %v, want 0", a.Score)
	}
}

func TestAnalyze_OpenGameRejected(t *testing.T) {
	g := &model.Game{Key: "1_1", StartTime: start}
	_, err := Analyze(g, nil)
	if !errors.Is(err, ErrOpenGame) {
		t.Errorf("err = %v, want ErrOpenGame", err)
	}
}

// ---- Formula tests ----

func TestWeightedKPM(t *testing.T) {
	kpms := []float64{0.1, 0.5, 1.0, 1.0}
	if r := RankPercentile(kpms, 1.0); r != 0.5 {
		t.Errorf("rank = %v, want 0.5", r)
	}
	if r := RankPercentile(kpms, 0.1); r != 0 {
		t.Errorf("rank = %v, want 0", r)
	}

	got := WeightedKPM(0.5, 20, 10, 1.0)
	want := (1 - (0.5-1)/100) * 2 * 1.0
	if !approx(got, want) {
		t.Errorf("weighted KPM = %v, want %v", got, want)
	}
	if WeightedKPM(0.5, 20, 0, 1.0) != 0 {
		t.Error("weighted KPM must be 0 when the kill average is 0")
	}
}

func TestGrowthFactor(t *testing.T) {
	if GrowthFactor(1800, 0, 1) != 0 {
		t.Error("gf must be 0 for zero duration")
	}
	if !approx(GrowthFactor(3600, 3600, 0.7), 0.7) {
		t.Error("full presence gf must equal KPM")
	}
}

func TestScore(t *testing.T) {
	gfs := map[string]float64{"b": 0.4, "c": 0.9}
	got := Score(map[string]int{"b": 2, "c": 1, "ghost": 1}, 4, gfs, 0.5)
	want := math.Pow((0.4*2+0.9)/4, ScoreExponent) * 0.5
	if !approx(got, want) {
		t.Errorf("score = %v, want %v", got, want)
	}
	if Score(nil, 0, gfs, 0.5) != 0 {
		t.Error("score must be 0 without kills")
	}
}

// ---- Summarize tests ----

func TestSummarize(t *testing.T) {
	stats := []model.PlayerGameStats{
		{PlayerID: "p", Name: "Old", Kills: 10, Deaths: 5, TeamKills: 1, ConnectedSeconds: 600, KPM: 1, DPM: 0.5, Score: 2},
		{PlayerID: "p", Name: "New", Kills: 20, Deaths: 0, ConnectedSeconds: 1200, KPM: 1, DPM: 0, Score: 4},
	}
	agg := Summarize(stats)
	if agg.Games != 2 || agg.Kills != 30 || agg.Deaths != 5 || agg.TeamKills != 1 {
		t.Fatalf("totals: %+v", agg)
	}
	if agg.Name != "New" {
		t.Errorf("Name = %q, want New", agg.Name)
	}
	if agg.AvgScore != 3 || agg.AvgDPM != 0.25 {
		t.Errorf("means: score=%v dpm=%v", agg.AvgScore, agg.AvgDPM)
	}
	if got := agg.OverallKPM(); got != 1 {
		t.Errorf("OverallKPM = %v, want 1", got)
	}
	if got := agg.KDRatio(); got != 6 {
		t.Errorf("KDRatio = %v, want 6", got)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if agg := Summarize(nil); agg.Games != 0 || agg.OverallKPM() != 0 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}
