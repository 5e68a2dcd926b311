// internal/syncer/syncer.go
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github-commit-tracker/internal/model"
)

const (
	// MaxBatchSize bounds how many commits are announced per mapping per cycle.
	MaxBatchSize = 5
)

// CommitLister is the part of the repository client the engine depends on.
type CommitLister interface {
	ListRecentCommits(ctx context.Context, owner, repo, branch, sinceSHA string) model.CommitPage
}

// Result describes the outcome of syncing one mapping.
type Result struct {
	// Commits to announce, oldest first, at most MaxBatchSize.
	Commits []model.Commit
	// Found is the number of new commits seen, before the cap.
	Found int
	// Dropped is the number of new commits that will never be announced.
	Dropped int
	// Baseline is set when the watermark was captured without announcing anything.
	Baseline bool
	// HistoryIncomplete is set when the previous watermark was not in the fetched page.
	HistoryIncomplete bool
}

// Changed reports whether the mapping was updated.
func (r Result) Changed() bool {
	return r.Baseline || r.Found > 0
}

// Engine computes which commits are new for a mapping and advances its watermark.
type Engine struct {
	lister        CommitLister
	logger        *slog.Logger
	defaultBranch string
	now           func() time.Time
}

// NewEngine creates a new Engine instance.
func NewEngine(lister CommitLister, logger *slog.Logger, defaultBranch string) *Engine {
	return &Engine{
		lister:        lister,
		logger:        logger,
		defaultBranch: defaultBranch,
		now:           time.Now,
	}
}

// DefaultBranch returns the branch used for mappings that do not name one.
func (e *Engine) DefaultBranch() string {
	return e.defaultBranch
}

// SyncOne fetches the newest page of history for m and returns the commits to announce
// along with the updated mapping. An empty page leaves the mapping untouched.
func (e *Engine) SyncOne(ctx context.Context, m model.ChannelMapping) (Result, model.ChannelMapping) {
	branch := m.EffectiveBranch(e.defaultBranch)
	logger := e.logger.With("channel_id", m.ChannelID, "owner", m.Owner, "repo", m.Repo, "branch", branch)

	page := e.lister.ListRecentCommits(ctx, m.Owner, m.Repo, branch, m.Watermark())
	if len(page.Commits) == 0 {
		logger.Debug("No new commits found")
		return Result{}, m
	}

	head := page.Commits[0].SHA
	m.LastCheckedAt = model.TimePtr(e.now())

	// An empty sha counts as never synced.
	if m.Watermark() == "" {
		m.LastCommitSHA = model.StringPtr(head)
		logger.Info("Captured baseline", "sha", head)
		return Result{Baseline: true}, m
	}
	m.LastCommitSHA = model.StringPtr(head)

	batch := chronological(page.Commits)
	dropped := 0
	if len(batch) > MaxBatchSize {
		dropped = len(batch) - MaxBatchSize
		batch = batch[dropped:]
	}

	logger.Info("Found new commits", "count", len(page.Commits), "announcing", len(batch), "head", head)
	if page.WatermarkMissing {
		logger.Warn("Previous watermark not found in fetched page; history may be incomplete")
	}

	return Result{
		Commits:           batch,
		Found:             len(page.Commits),
		Dropped:           dropped,
		HistoryIncomplete: page.WatermarkMissing,
	}, m
}

// SyncAll runs SyncOne for every mapping in enumeration order, one at a time,
// handing each outcome to visit.
func (e *Engine) SyncAll(ctx context.Context, set model.MappingSet, visit func(Result, model.ChannelMapping)) {
	for _, m := range set.Sorted() {
		if ctx.Err() != nil {
			return
		}
		result, updated := e.SyncOne(ctx, m)
		visit(result, updated)
	}
}

// chronological returns a reversed copy of a newest-first slice.
func chronological(newestFirst []model.Commit) []model.Commit {
	out := make([]model.Commit, len(newestFirst))
	for i, c := range newestFirst {
		out[len(newestFirst)-1-i] = c
	}
	return out
}
