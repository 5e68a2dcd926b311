// internal/tracker/tracker.go
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	custom_errors "github-commit-tracker/internal/errors"
	"github-commit-tracker/internal/metrics"
	"github-commit-tracker/internal/model"
	"github-commit-tracker/internal/store"
	"github-commit-tracker/internal/syncer"
)

// Repositories is the read-only view of the source host the tracker needs.
type Repositories interface {
	syncer.CommitLister
	VerifyRepository(ctx context.Context, owner, repo string) bool
	GetAuthenticatedIdentity(ctx context.Context) *model.Identity
}

// Notifier delivers announcements to chat channels.
type Notifier interface {
	NotifyNewCommit(ctx context.Context, channelID string, m model.ChannelMapping, c model.Commit) error
	NotifyHistoryGap(ctx context.Context, channelID string, m model.ChannelMapping, gap model.HistoryGap) error
	ChannelExists(ctx context.Context, channelID string) bool
}

// Summary reports what a sync-all cycle did.
type Summary struct {
	Channels  int `json:"channels"`
	Announced int `json:"announced"`
	Baselines int `json:"baselines"`
	Pruned    int `json:"pruned"`
}

// Tracker owns the channel mapping set.
//
// Every sync and every mutation runs under work, so scheduled and manual syncs never
// interleave. mu only guards the map itself so reads stay cheap while a cycle is running.
type Tracker struct {
	work sync.Mutex

	mu       sync.RWMutex
	mappings model.MappingSet
	dirty    bool

	store    store.Store
	repos    Repositories
	notifier Notifier
	engine   *syncer.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Tracker. Call Load before serving requests.
func New(st store.Store, repos Repositories, notifier Notifier, engine *syncer.Engine, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		mappings: model.MappingSet{},
		store:    st,
		repos:    repos,
		notifier: notifier,
		engine:   engine,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Load replaces the in-memory set with the persisted one.
// Load failures are logged and leave the tracker with an empty set.
func (t *Tracker) Load(ctx context.Context) {
	t.work.Lock()
	defer t.work.Unlock()

	set, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Error("Failed to load channel mappings, starting empty", "error", err)
		set = model.MappingSet{}
	}

	t.mu.Lock()
	t.mappings = set
	t.dirty = false
	t.mu.Unlock()

	t.metrics.TrackedChannels.Set(float64(len(set)))
	t.logger.Info("Loaded channel mappings", "count", len(set))
}

// Link starts tracking owner/repo on branch for channelID, replacing any previous link.
// The current head is captured as the baseline; nothing is announced.
func (t *Tracker) Link(ctx context.Context, channelID, owner, repo, branch string) (model.ChannelMapping, error) {
	owner, repo, branch = strings.TrimSpace(owner), strings.TrimSpace(repo), strings.TrimSpace(branch)
	if owner == "" || repo == "" || strings.Contains(owner, "/") || strings.Contains(repo, "/") {
		return model.ChannelMapping{}, &custom_errors.ErrInvalidRepoFormat{Repo: owner + "/" + repo}
	}
	if branch == "" {
		branch = t.engine.DefaultBranch()
	}

	t.work.Lock()
	defer t.work.Unlock()

	logger := t.logger.With("channel_id", channelID, "owner", owner, "repo", repo, "branch", branch)

	if !t.repos.VerifyRepository(ctx, owner, repo) {
		return model.ChannelMapping{}, fmt.Errorf("%s/%s: %w", owner, repo, custom_errors.ErrRepositoryNotFound)
	}

	mapping := model.ChannelMapping{
		ChannelID: channelID,
		Owner:     owner,
		Repo:      repo,
		Branch:    branch,
		LinkedAt:  model.TimePtr(t.now()),
	}

	result, mapping := t.engine.SyncOne(ctx, mapping)
	if result.Baseline {
		t.metrics.BaselinesCaptured.Inc()
	} else {
		logger.Warn("Could not capture baseline at link time; the next sync will capture it")
	}

	t.put(mapping)
	logger.Info("Linked channel to repository", "baseline", mapping.Watermark())
	t.persist(ctx)

	return mapping, nil
}

// Unlink stops tracking for channelID and returns the removed mapping.
func (t *Tracker) Unlink(ctx context.Context, channelID string) (model.ChannelMapping, error) {
	t.work.Lock()
	defer t.work.Unlock()

	mapping, ok := t.Get(channelID)
	if !ok {
		return model.ChannelMapping{}, custom_errors.ErrNotLinked
	}
	t.remove(channelID)

	t.logger.Info("Unlinked channel", "channel_id", channelID, "owner", mapping.Owner, "repo", mapping.Repo)
	t.persist(ctx)

	return mapping, nil
}

// Get returns the mapping for channelID.
func (t *Tracker) Get(channelID string) (model.ChannelMapping, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.mappings[channelID]
	if ok {
		m.ChannelID = channelID
	}
	return m, ok
}

// List returns every mapping ordered by channel id.
func (t *Tracker) List() []model.ChannelMapping {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.mappings.Sorted()
}

// Identity returns the account behind the configured API credential, if any.
func (t *Tracker) Identity(ctx context.Context) *model.Identity {
	return t.repos.GetAuthenticatedIdentity(ctx)
}

// TriggerSyncOne syncs a single channel immediately.
func (t *Tracker) TriggerSyncOne(ctx context.Context, channelID string) (syncer.Result, error) {
	t.work.Lock()
	defer t.work.Unlock()

	mapping, ok := t.Get(channelID)
	if !ok {
		return syncer.Result{}, custom_errors.ErrNotLinked
	}

	result, updated := t.engine.SyncOne(ctx, mapping)
	t.apply(ctx, result, updated, &Summary{})
	t.persist(ctx)

	return result, nil
}

// TriggerSyncAll syncs every linked channel, one at a time.
func (t *Tracker) TriggerSyncAll(ctx context.Context) Summary {
	t.work.Lock()
	defer t.work.Unlock()

	start := t.now()
	t.mu.RLock()
	snapshot := t.mappings.Clone()
	t.mu.RUnlock()

	logger := t.logger.With("cycle_id", uuid.New().String())
	logger.Info("Starting new sync cycle", "channels", len(snapshot))

	summary := Summary{Channels: len(snapshot)}
	t.engine.SyncAll(ctx, snapshot, func(result syncer.Result, updated model.ChannelMapping) {
		t.apply(ctx, result, updated, &summary)
	})
	t.persist(ctx)

	elapsed := t.now().Sub(start)
	t.metrics.SyncCycles.Inc()
	t.metrics.SyncCycleDuration.Observe(elapsed.Seconds())
	logger.Info("Sync cycle finished",
		"announced", summary.Announced,
		"baselines", summary.Baselines,
		"pruned", summary.Pruned,
		"duration", elapsed.String(),
	)
	return summary
}

// apply records one sync outcome: announcements go out, the mapping is updated, and a
// mapping whose channel disappeared is removed. Callers hold t.work.
func (t *Tracker) apply(ctx context.Context, result syncer.Result, updated model.ChannelMapping, summary *Summary) {
	if !result.Changed() {
		return
	}
	channelID := updated.ChannelID
	logger := t.logger.With("channel_id", channelID, "owner", updated.Owner, "repo", updated.Repo)

	if result.Baseline {
		t.metrics.BaselinesCaptured.Inc()
		summary.Baselines++
		t.put(updated)
		return
	}

	if !t.notifier.ChannelExists(ctx, channelID) {
		logger.Warn("Channel not found, removing mapping")
		t.remove(channelID)
		t.metrics.PrunedChannels.Inc()
		summary.Pruned++
		return
	}

	for _, commit := range result.Commits {
		if err := t.notifier.NotifyNewCommit(ctx, channelID, updated, commit); err != nil {
			logger.Error("Failed to announce commit", "sha", commit.SHA, "error", err)
			continue
		}
		t.metrics.CommitsAnnounced.Inc()
		summary.Announced++
	}

	if result.Dropped > 0 || result.HistoryIncomplete {
		t.metrics.CommitsUnannounced.Add(float64(result.Dropped))
		if err := t.notifier.NotifyHistoryGap(ctx, channelID, updated, model.HistoryGap{
			Unannounced: result.Dropped,
			Incomplete:  result.HistoryIncomplete,
		}); err != nil {
			logger.Error("Failed to announce history gap", "error", err)
		}
	}

	t.put(updated)
}

func (t *Tracker) put(m model.ChannelMapping) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mappings[m.ChannelID] = m
	t.dirty = true
	t.metrics.TrackedChannels.Set(float64(len(t.mappings)))
}

func (t *Tracker) remove(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.mappings, channelID)
	t.dirty = true
	t.metrics.TrackedChannels.Set(float64(len(t.mappings)))
}

// persist saves the set if it changed since the last successful save.
// A failed save leaves it dirty so the next mutation or cycle retries. Callers hold t.work.
func (t *Tracker) persist(ctx context.Context) {
	t.mu.RLock()
	dirty := t.dirty
	snapshot := t.mappings.Clone()
	t.mu.RUnlock()

	if !dirty {
		return
	}

	if err := t.store.Save(ctx, snapshot); err != nil {
		t.metrics.StoreSaveFailures.Inc()
		t.logger.Error("Failed to save channel mappings; keeping in-memory state", "error", err)
		return
	}

	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()
}
