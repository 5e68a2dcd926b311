// internal/discord/router_test.go
package discord

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-commit-tracker/internal/errors"
	"github-commit-tracker/internal/model"
	"github-commit-tracker/internal/syncer"
)

// MockService is a mock of the Service interface.
type MockService struct {
	mock.Mock
}

func (m *MockService) Link(ctx context.Context, channelID, owner, repo, branch string) (model.ChannelMapping, error) {
	args := m.Called(ctx, channelID, owner, repo, branch)
	return args.Get(0).(model.ChannelMapping), args.Error(1)
}

func (m *MockService) Unlink(ctx context.Context, channelID string) (model.ChannelMapping, error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(model.ChannelMapping), args.Error(1)
}

func (m *MockService) Get(channelID string) (model.ChannelMapping, bool) {
	args := m.Called(channelID)
	return args.Get(0).(model.ChannelMapping), args.Bool(1)
}

func (m *MockService) TriggerSyncOne(ctx context.Context, channelID string) (syncer.Result, error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(syncer.Result), args.Error(1)
}

func (m *MockService) Identity(ctx context.Context) *model.Identity {
	args := m.Called(ctx)
	id, _ := args.Get(0).(*model.Identity)
	return id
}

func newTestRouter(svc Service) *Router {
	return NewRouter(svc, "!", "@every 10m", discardLogger())
}

func TestRouter_Parse(t *testing.T) {
	r := newTestRouter(new(MockService))

	name, args, ok := r.Parse("!Link octo/hello dev")
	assert.True(t, ok)
	assert.Equal(t, "link", name)
	assert.Equal(t, []string{"octo/hello", "dev"}, args)

	_, _, ok = r.Parse("hello there")
	assert.False(t, ok)

	_, _, ok = r.Parse("!   ")
	assert.False(t, ok)
}

func TestRouter_Dispatch_IgnoresUnknownCommands(t *testing.T) {
	r := newTestRouter(new(MockService))

	_, handled := r.Dispatch(context.Background(), "chan", "user", "!dance")

	assert.False(t, handled)
}

func TestRouter_Link(t *testing.T) {
	ctx := context.Background()

	t.Run("links with an explicit branch", func(t *testing.T) {
		svc := new(MockService)
		r := newTestRouter(svc)
		mapping := model.ChannelMapping{ChannelID: "chan", Owner: "octo", Repo: "hello", Branch: "dev"}
		svc.On("Link", mock.Anything, "chan", "octo", "hello", "dev").Return(mapping, nil).Once()

		resp, handled := r.Dispatch(ctx, "chan", "user", "!link octo/hello dev")

		require.True(t, handled)
		require.NotNil(t, resp.Embed)
		assert.Contains(t, resp.Embed.Description, "**octo/hello** (dev branch)")
		svc.AssertExpectations(t)
	})

	t.Run("leaves the branch to the service when omitted", func(t *testing.T) {
		svc := new(MockService)
		r := newTestRouter(svc)
		svc.On("Link", mock.Anything, "chan", "octo", "hello", "").
			Return(model.ChannelMapping{Owner: "octo", Repo: "hello", Branch: "main"}, nil).Once()

		_, handled := r.Dispatch(ctx, "chan", "user", "!link octo/hello")

		assert.True(t, handled)
		svc.AssertExpectations(t)
	})

	t.Run("shows usage without arguments", func(t *testing.T) {
		svc := new(MockService)
		r := newTestRouter(svc)

		resp, _ := r.Dispatch(ctx, "chan", "user", "!link")

		assert.Contains(t, resp.Content, "Usage: `!link <owner/repo> [branch]`")
		svc.AssertNotCalled(t, "Link")
	})

	t.Run("rejects a malformed repository", func(t *testing.T) {
		svc := new(MockService)
		r := newTestRouter(svc)

		resp, _ := r.Dispatch(ctx, "chan", "user", "!link justaname")

		assert.Contains(t, resp.Content, "Invalid repository format")
		svc.AssertNotCalled(t, "Link")
	})

	t.Run("reports an unknown repository", func(t *testing.T) {
		svc := new(MockService)
		r := newTestRouter(svc)
		svc.On("Link", mock.Anything, "chan", "octo", "nope", "").
			Return(model.ChannelMapping{}, fmt.Errorf("octo/nope: %w", custom_errors.ErrRepositoryNotFound)).Once()

		resp, _ := r.Dispatch(ctx, "chan", "user", "!link octo/nope")

		assert.Contains(t, resp.Content, "Repository not found")
	})
}

func TestRouter_Unlink(t *testing.T) {
	svc := new(MockService)
	r := newTestRouter(svc)
	svc.On("Unlink", mock.Anything, "chan").Return(model.ChannelMapping{Owner: "octo", Repo: "hello"}, nil).Once()
	svc.On("Unlink", mock.Anything, "other").Return(model.ChannelMapping{}, custom_errors.ErrNotLinked).Once()

	resp, _ := r.Dispatch(context.Background(), "chan", "user", "!unlink")
	assert.Equal(t, "✅ Unlinked **octo/hello** from this channel.", resp.Content)

	resp, _ = r.Dispatch(context.Background(), "other", "user", "!unlink")
	assert.Contains(t, resp.Content, "not linked")
	svc.AssertExpectations(t)
}

func TestRouter_List(t *testing.T) {
	svc := new(MockService)
	r := newTestRouter(svc)
	svc.On("Get", "chan").Return(model.ChannelMapping{Owner: "octo", Repo: "hello", Branch: "main"}, true)
	svc.On("Get", "other").Return(model.ChannelMapping{}, false)

	resp, _ := r.Dispatch(context.Background(), "chan", "user", "!list")
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "octo/hello", resp.Embed.Fields[0].Value)
	assert.Equal(t, "Never", resp.Embed.Fields[2].Value)

	resp, _ = r.Dispatch(context.Background(), "other", "user", "!list")
	assert.Contains(t, resp.Content, "not linked")
}

func TestRouter_Check(t *testing.T) {
	tests := []struct {
		name   string
		result syncer.Result
		err    error
		want   string
	}{
		{name: "new commits", result: syncer.Result{Found: 3}, want: "Found 3 new commit(s)"},
		{name: "nothing new", result: syncer.Result{}, want: "No new commits"},
		{name: "baseline", result: syncer.Result{Baseline: true}, want: "Started tracking"},
		{name: "not linked", err: custom_errors.ErrNotLinked, want: "not linked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			r := newTestRouter(svc)
			svc.On("TriggerSyncOne", mock.Anything, "chan").Return(tt.result, tt.err).Once()

			resp, _ := r.Dispatch(context.Background(), "chan", "user", "!check")

			assert.Contains(t, resp.Content, tt.want)
		})
	}
}

func TestRouter_TokenAndWhoami(t *testing.T) {
	svc := new(MockService)
	r := newTestRouter(svc)
	svc.On("Identity", mock.Anything).Return(&model.Identity{Login: "octocat", PublicRepos: 4}).Once()
	svc.On("Identity", mock.Anything).Return(nil).Once()

	resp, _ := r.Dispatch(context.Background(), "chan", "user", "!token")
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "Authenticated as **octocat**", resp.Embed.Description)

	resp, _ = r.Dispatch(context.Background(), "chan", "user", "!whoami")
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "⚠️ No GitHub Token", resp.Embed.Title)
}

func TestRouter_Help(t *testing.T) {
	r := NewRouter(new(MockService), "?", "@every 5m", discardLogger())

	resp, handled := r.Dispatch(context.Background(), "chan", "user", "?help")

	require.True(t, handled)
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "?link <owner/repo> [branch]", resp.Embed.Fields[0].Name)
	assert.Contains(t, resp.Embed.Footer.Text, "@every 5m")
}

func TestRouter_RecoversFromHandlerPanic(t *testing.T) {
	r := newTestRouter(new(MockService))
	r.Register("boom", func(context.Context, Request) Response { panic("kaboom") })

	resp, handled := r.Dispatch(context.Background(), "chan", "user", "!boom")

	assert.True(t, handled)
	assert.Contains(t, resp.Content, "An error occurred")
}

func TestRouter_HandleMessage(t *testing.T) {
	svc := new(MockService)
	r := newTestRouter(svc)
	svc.On("Get", "chan").Return(model.ChannelMapping{}, false)

	t.Run("replies to users", func(t *testing.T) {
		sender := newFakeSender()
		msg := &discordgo.Message{ID: "m1", ChannelID: "chan", Content: "!list", Author: &discordgo.User{ID: "user"}}

		r.handleMessage(context.Background(), sender, "bot", msg)

		require.Len(t, sender.sent["chan"], 1)
		assert.Contains(t, sender.sent["chan"][0].Content, "not linked")
		assert.Equal(t, "m1", sender.sent["chan"][0].Reference.MessageID)
	})

	t.Run("ignores bots and itself", func(t *testing.T) {
		sender := newFakeSender()

		r.handleMessage(context.Background(), sender, "bot", &discordgo.Message{ChannelID: "chan", Content: "!list", Author: &discordgo.User{ID: "other", Bot: true}})
		r.handleMessage(context.Background(), sender, "bot", &discordgo.Message{ChannelID: "chan", Content: "!list", Author: &discordgo.User{ID: "bot"}})

		assert.Empty(t, sender.sent)
	})

	t.Run("ignores plain chatter", func(t *testing.T) {
		sender := newFakeSender()

		r.handleMessage(context.Background(), sender, "bot", &discordgo.Message{ChannelID: "chan", Content: "hello", Author: &discordgo.User{ID: "user"}})

		assert.Empty(t, sender.sent)
	})
}
