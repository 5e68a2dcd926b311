// internal/model/models.go
package model

import (
	"sort"
	"strings"
	"time"

	custom_errors "github-commit-tracker/internal/errors"
)

// ChannelMapping links one chat channel to a tracked repository branch.
// The channel id is the key of the persisted set and is not part of the stored value.
type ChannelMapping struct {
	ChannelID     string     `json:"-"`
	Owner         string     `json:"owner"`
	Repo          string     `json:"repo"`
	Branch        string     `json:"branch"`
	LastCommitSHA *string    `json:"lastCommitSha"`
	LastCheckedAt *time.Time `json:"lastChecked"`
	LinkedAt      *time.Time `json:"linkedAt,omitempty"`
}

// FullName returns "owner/repo".
func (m ChannelMapping) FullName() string {
	return m.Owner + "/" + m.Repo
}

// EffectiveBranch returns the mapping's branch, or def when none is set.
func (m ChannelMapping) EffectiveBranch(def string) string {
	if m.Branch != "" {
		return m.Branch
	}
	return def
}

// Watermark returns the last processed commit sha, or "" if the mapping was never synced.
func (m ChannelMapping) Watermark() string {
	if m.LastCommitSHA == nil {
		return ""
	}
	return *m.LastCommitSHA
}

// MappingSet is the whole persisted state, keyed by channel id.
type MappingSet map[string]ChannelMapping

// Clone returns a shallow copy of the set.
func (s MappingSet) Clone() MappingSet {
	out := make(MappingSet, len(s))
	for id, m := range s {
		out[id] = m
	}
	return out
}

// Sorted returns the mappings ordered by channel id, which is the set's enumeration order.
func (s MappingSet) Sorted() []ChannelMapping {
	out := make([]ChannelMapping, 0, len(s))
	for id, m := range s {
		m.ChannelID = id
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Commit is a single commit as reported by the repository host.
type Commit struct {
	SHA             string
	AuthorName      string
	AuthoredAt      time.Time
	Message         string
	URL             string
	AuthorAvatarURL string
}

// ShortSHA returns the abbreviated 7 character sha.
func (c Commit) ShortSHA() string {
	if len(c.SHA) <= 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// CommitPage is the newest-first result of scanning one page of history.
// WatermarkMissing is set when a watermark was given but not found in the page.
type CommitPage struct {
	Commits          []Commit
	WatermarkMissing bool
}

// HistoryGap describes commits that a sync could not announce.
type HistoryGap struct {
	// Unannounced counts new commits left out by the per-cycle cap.
	Unannounced int
	// Incomplete is set when the previous watermark was not in the fetched page.
	Incomplete bool
}

// Identity describes the account behind the configured API credential.
type Identity struct {
	Login       string
	Name        string
	Type        string
	AvatarURL   string
	Bio         string
	PublicRepos int
}

// ParseRepository splits an "owner/repo" reference.
func ParseRepository(ref string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: ref}
	}
	return parts[0], parts[1], nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
