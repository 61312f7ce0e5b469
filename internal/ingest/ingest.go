// Package ingest runs the batch pipeline: event files are decoded, merged
// with the resumable segmenter state, analyzed, and committed one batch per
// transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pable/go-hll-metrics/internal/aggregator"
	"github.com/pable/go-hll-metrics/internal/model"
	"github.com/pable/go-hll-metrics/internal/normalize"
	"github.com/pable/go-hll-metrics/internal/segmenter"
	"github.com/pable/go-hll-metrics/internal/storage"
)

// DefaultBatchSize is the number of files committed per transaction.
const DefaultBatchSize = 50

// ErrCommit is returned when a batch transaction fails; nothing of that batch is stored.
var ErrCommit = errors.New("batch commit failed")

// Options tunes a Pipeline.
type Options struct {
	BatchSize int
	// Now stamps processed-file markers; defaults to time.Now.
	Now func() time.Time
}

// Summary reports what a run did.
type Summary struct {
	RunID           string
	Files           int
	Skipped         int
	Failed          int
	Batches         int
	Rejected        int
	Events          int64
	Duplicates      int
	Orphans         int
	Opened          int
	Closed          int
	Abandoned       int
	ExcludedPlayers int
}

// Pipeline ingests event files into the store. A Pipeline is single-use and
// not safe for concurrent use.
type Pipeline struct {
	db      *storage.DB
	log     *slog.Logger
	metrics *Metrics
	opts    Options
	seg     *segmenter.Segmenter
	runID   string
}

// New returns a pipeline writing to db.
func New(db *storage.DB, log *slog.Logger, metrics *Metrics, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	runID := uuid.NewString()
	return &Pipeline{
		db:      db,
		log:     log.With("run", runID),
		metrics: metrics,
		opts:    opts,
		seg:     segmenter.New(),
		runID:   runID,
	}
}

// Run ingests files in the given order. Files already recorded as processed
// are skipped. On a commit failure the run stops; everything committed so far
// stays, and a later run resumes from there.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Summary, error) {
	sum := &Summary{RunID: p.runID}

	done, err := p.db.ProcessedFiles(ctx)
	if err != nil {
		return sum, err
	}
	var pending []string
	for _, f := range files {
		if done[filepath.Base(f)] {
			sum.Skipped++
			p.metrics.FilesSkipped.Inc()
			continue
		}
		pending = append(pending, f)
	}
	p.log.Info("ingest starting", "files", len(files), "pending", len(pending), "skipped", sum.Skipped)

	if err := p.restore(ctx); err != nil {
		return sum, err
	}

	for start := 0; start < len(pending); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		end := min(start+p.opts.BatchSize, len(pending))
		if err := p.runBatch(ctx, pending[start:end], sum); err != nil {
			return sum, err
		}
		sum.Batches++
	}

	p.metrics.LastSuccess.SetToCurrentTime()
	p.log.Info("ingest finished",
		"files", sum.Files, "failed", sum.Failed, "events", sum.Events,
		"closed", sum.Closed, "open", len(p.seg.OpenGames()))
	return sum, nil
}

// restore re-seeds the segmenter from the store: sequence numbers and the
// newest open game of each server with its stored events.
func (p *Pipeline) restore(ctx context.Context) error {
	nums, err := p.db.LastGameNumbers(ctx)
	if err != nil {
		return err
	}
	for server, n := range nums {
		p.seg.SetLastNumber(server, n)
	}

	open, err := p.db.OpenGames(ctx)
	if err != nil {
		return err
	}
	// Only the newest game of a server can still be in progress; any older
	// open row was abandoned by a later MATCH START.
	for _, g := range open {
		if g.Number != nums[g.Server] {
			continue
		}
		events, err := p.db.GameEvents(ctx, g.Key)
		if err != nil {
			return err
		}
		if err := p.seg.Restore(&g, events); err != nil {
			return err
		}
		p.log.Debug("restored open game", "game", g.Key, "events", len(events))
	}
	return nil
}

type loaded struct {
	name   string
	events []model.RawEvent
}

func (p *Pipeline) runBatch(ctx context.Context, files []string, sum *Summary) error {
	began := time.Now()

	// ---- Load and decode; a bad file is skipped, not fatal. ----

	var ok []loaded
	for _, f := range files {
		events, rejected, err := normalize.LoadFile(f)
		if err != nil {
			sum.Failed++
			p.metrics.FilesFailed.Inc()
			p.log.Warn("skipping unreadable file", "file", f, "err", err)
			continue
		}
		for _, r := range rejected {
			p.log.Debug("rejected record", "file", f, "index", r.Index, "id", r.ID, "err", r.Err)
		}
		if len(rejected) > 0 {
			p.log.Warn("records rejected", "file", f, "count", len(rejected))
		}
		sum.Rejected += len(rejected)
		p.metrics.RecordsRejected.Add(float64(len(rejected)))
		ok = append(ok, loaded{name: filepath.Base(f), events: events})
	}

	// ---- Merge and drop events whose ids are already known. ----

	var merged []model.RawEvent
	for _, l := range ok {
		merged = append(merged, l.events...)
	}
	normalize.Sort(merged)

	ids := make([]int64, len(merged))
	for i := range merged {
		ids[i] = merged[i].ID
	}
	known, err := p.db.KnownEventIDs(ctx, ids)
	if err != nil {
		return err
	}
	fresh := merged[:0]
	for _, e := range merged {
		if known[e.ID] {
			continue
		}
		known[e.ID] = true
		fresh = append(fresh, e)
	}
	dups := len(merged) - len(fresh)

	// ---- Segment and analyze closed games. ----

	res := p.seg.Feed(fresh)

	type gameStats struct {
		key   string
		stats []model.PlayerGameStats
	}
	var computed []gameStats
	excluded := 0
	for _, c := range res.Closed {
		out, err := aggregator.Analyze(c.Game, c.Events)
		if err != nil {
			return err
		}
		for _, x := range out.Excluded {
			p.log.Warn("player excluded from game stats",
				"game", c.Game.Key, "player", x.PlayerID, "name", x.Name, "err", x.Err)
		}
		excluded += len(out.Excluded)
		computed = append(computed, gameStats{key: c.Game.Key, stats: out.Stats})
	}
	for _, g := range res.Abandoned {
		p.log.Warn("game abandoned without MATCH ENDED", "game", g.Key, "server", g.Server)
	}

	players, names := sightings(res.Events)
	members := membership(res.Events)
	now := p.opts.Now().UTC()
	marks := make([]model.ProcessedFile, len(ok))
	for i, l := range ok {
		marks[i] = model.ProcessedFile{Name: l.name, RunID: p.runID, IngestedAt: now}
	}

	// ---- Commit everything as one unit. ----

	var stored int64
	err = p.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.UpsertGames(ctx, res.Touched()); err != nil {
			return err
		}
		if err := tx.UpsertPlayers(ctx, players); err != nil {
			return err
		}
		if err := tx.InsertPlayerNames(ctx, names); err != nil {
			return err
		}
		n, err := tx.InsertEvents(ctx, res.Events)
		if err != nil {
			return err
		}
		stored = n
		for _, key := range sortedKeys(members) {
			if err := tx.InsertGamePlayers(ctx, key, members[key]); err != nil {
				return err
			}
		}
		for _, gs := range computed {
			if err := tx.ReplaceGameStats(ctx, gs.key, gs.stats); err != nil {
				return err
			}
		}
		return tx.MarkProcessed(ctx, marks)
	})
	if err != nil {
		p.log.Error("batch commit failed, stopping run", "files", len(files), "err", err)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	// ---- Account only after a successful commit. ----

	sum.Files += len(ok)
	sum.Events += stored
	sum.Duplicates += dups
	sum.Orphans += res.Orphans
	sum.Opened += len(res.Opened)
	sum.Closed += len(res.Closed)
	sum.Abandoned += len(res.Abandoned)
	sum.ExcludedPlayers += excluded

	p.metrics.FilesProcessed.Add(float64(len(ok)))
	p.metrics.EventsStored.Add(float64(stored))
	p.metrics.EventsDuplicate.Add(float64(dups))
	p.metrics.EventsOrphaned.Add(float64(res.Orphans))
	p.metrics.Games.WithLabelValues("opened").Add(float64(len(res.Opened)))
	p.metrics.Games.WithLabelValues("closed").Add(float64(len(res.Closed)))
	p.metrics.Games.WithLabelValues("abandoned").Add(float64(len(res.Abandoned)))
	p.metrics.PlayersExcluded.Add(float64(excluded))
	p.metrics.BatchDuration.Observe(time.Since(began).Seconds())

	p.log.Info("batch committed",
		"files", len(ok), "events", stored, "duplicates", dups,
		"opened", len(res.Opened), "closed", len(res.Closed), "abandoned", len(res.Abandoned))
	return nil
}

// sightings derives player rows and name history from time-ordered events.
func sightings(events []model.RawEvent) ([]model.Player, []storage.PlayerName) {
	players := make(map[string]*model.Player)
	type nameKey struct{ id, name string }
	names := make(map[nameKey]time.Time)

	for i := range events {
		e := &events[i]
		for _, a := range []*model.Actor{e.Player1, e.Player2} {
			if a == nil {
				continue
			}
			p, ok := players[a.ID]
			if !ok {
				p = &model.Player{ID: a.ID, FirstSeen: e.EventTime}
				players[a.ID] = p
			}
			p.LastSeen = e.EventTime
			if a.Name == "" {
				continue
			}
			p.CurrentName = a.Name
			k := nameKey{a.ID, a.Name}
			if _, seen := names[k]; !seen {
				names[k] = e.EventTime
			}
		}
	}

	outP := make([]model.Player, 0, len(players))
	for _, p := range players {
		outP = append(outP, *p)
	}
	sort.Slice(outP, func(i, j int) bool { return outP[i].ID < outP[j].ID })

	outN := make([]storage.PlayerName, 0, len(names))
	for k, t := range names {
		outN = append(outN, storage.PlayerName{PlayerID: k.id, Name: k.name, FirstSeen: t})
	}
	sort.Slice(outN, func(i, j int) bool {
		if outN[i].PlayerID != outN[j].PlayerID {
			return outN[i].PlayerID < outN[j].PlayerID
		}
		return outN[i].Name < outN[j].Name
	})
	return outP, outN
}

// membership lists the players referenced by each game's events.
func membership(events []model.RawEvent) map[string][]string {
	sets := make(map[string]map[string]bool)
	for i := range events {
		e := &events[i]
		if e.GameKey == nil {
			continue
		}
		set, ok := sets[*e.GameKey]
		if !ok {
			set = make(map[string]bool)
			sets[*e.GameKey] = set
		}
		for _, id := range []string{e.Player1ID(), e.Player2ID()} {
			if id != "" {
				set[id] = true
			}
		}
	}
	out := make(map[string][]string, len(sets))
	for key, set := range sets {
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[key] = ids
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
