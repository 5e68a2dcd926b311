// internal/discord/router.go
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	custom_errors "github-commit-tracker/internal/errors"
	"github-commit-tracker/internal/model"
	"github-commit-tracker/internal/syncer"
)

// Service is the tracker surface the chat commands drive.
type Service interface {
	Link(ctx context.Context, channelID, owner, repo, branch string) (model.ChannelMapping, error)
	Unlink(ctx context.Context, channelID string) (model.ChannelMapping, error)
	Get(channelID string) (model.ChannelMapping, bool)
	TriggerSyncOne(ctx context.Context, channelID string) (syncer.Result, error)
	Identity(ctx context.Context) *model.Identity
}

// Request is one parsed chat command.
type Request struct {
	ChannelID string
	AuthorID  string
	Args      []string
}

// Response is what the bot replies with. An empty Response sends nothing.
type Response struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// HandlerFunc handles one command.
type HandlerFunc func(ctx context.Context, req Request) Response

// Router maps command names to handlers.
type Router struct {
	prefix   string
	schedule string
	service  Service
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	timeout  time.Duration
}

// NewRouter creates a Router with the built-in commands registered.
// schedule is only shown in the help text.
func NewRouter(service Service, prefix, schedule string, logger *slog.Logger) *Router {
	if prefix == "" {
		prefix = "!"
	}
	r := &Router{
		prefix:   prefix,
		schedule: schedule,
		service:  service,
		handlers: map[string]HandlerFunc{},
		logger:   logger,
		timeout:  2 * time.Minute,
	}

	r.Register("link", r.handleLink)
	r.Register("unlink", r.handleUnlink)
	r.Register("list", r.handleList)
	r.Register("check", r.handleCheck)
	r.Register("help", r.handleHelp)
	r.Register("token", r.handleToken)
	r.Register("whoami", r.handleToken)
	return r
}

// Register adds or replaces the handler for name.
func (r *Router) Register(name string, h HandlerFunc) {
	r.handlers[strings.ToLower(name)] = h
}

// Parse splits a message into a command name and arguments. ok is false when the
// message does not start with the prefix.
func (r *Router) Parse(content string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(content, r.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs the handler for content. handled is false for non-commands and unknown commands.
func (r *Router) Dispatch(ctx context.Context, channelID, authorID, content string) (resp Response, handled bool) {
	name, args, ok := r.Parse(content)
	if !ok {
		return Response{}, false
	}
	h, ok := r.handlers[name]
	if !ok {
		return Response{}, false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Error handling command", "command", name, "panic", rec)
			resp, handled = Response{Content: "❌ An error occurred while processing your command."}, true
		}
	}()

	r.logger.Debug("Handling command", "command", name, "channel_id", channelID, "author_id", authorID)
	return h(ctx, Request{ChannelID: channelID, AuthorID: authorID, Args: args}), true
}

// MessageCreate is the discordgo handler for incoming messages.
func (r *Router) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	r.handleMessage(context.Background(), s, botID, m.Message)
}

func (r *Router) handleMessage(ctx context.Context, sender Sender, botID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, handled := r.Dispatch(ctx, m.ChannelID, m.Author.ID, m.Content)
	if !handled || (resp.Content == "" && resp.Embed == nil) {
		return
	}

	send := &discordgo.MessageSend{
		Content:   resp.Content,
		Reference: m.Reference(),
	}
	if resp.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{resp.Embed}
	}
	if _, err := sender.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
		r.logger.Error("Failed to send reply", "channel_id", m.ChannelID, "error", err)
	}
}

func (r *Router) handleLink(ctx context.Context, req Request) Response {
	if len(req.Args) < 1 {
		return Response{Content: fmt.Sprintf("❌ Usage: `%slink <owner/repo> [branch]`\nExample: `%slink facebook/react main`", r.prefix, r.prefix)}
	}

	owner, repo, err := model.ParseRepository(req.Args[0])
	if err != nil {
		return Response{Content: "❌ Invalid repository format. Use: `owner/repo`"}
	}
	branch := ""
	if len(req.Args) > 1 {
		branch = req.Args[1]
	}

	mapping, err := r.service.Link(ctx, req.ChannelID, owner, repo, branch)
	switch {
	case errors.Is(err, custom_errors.ErrRepositoryNotFound):
		return Response{Content: "❌ Repository not found or is private. Make sure it exists and the bot's token can read it."}
	case err != nil:
		r.logger.Error("Failed to link repository", "channel_id", req.ChannelID, "error", err)
		return Response{Content: "❌ An error occurred while processing your command."}
	}
	return Response{Embed: linkedEmbed(mapping)}
}

func (r *Router) handleUnlink(ctx context.Context, req Request) Response {
	mapping, err := r.service.Unlink(ctx, req.ChannelID)
	if errors.Is(err, custom_errors.ErrNotLinked) {
		return Response{Content: "❌ This channel is not linked to any repository."}
	}
	if err != nil {
		r.logger.Error("Failed to unlink repository", "channel_id", req.ChannelID, "error", err)
		return Response{Content: "❌ An error occurred while processing your command."}
	}
	return Response{Content: fmt.Sprintf("✅ Unlinked **%s** from this channel.", mapping.FullName())}
}

func (r *Router) handleList(_ context.Context, req Request) Response {
	mapping, ok := r.service.Get(req.ChannelID)
	if !ok {
		return Response{Content: "❌ This channel is not linked to any repository."}
	}
	return Response{Embed: mappingEmbed(mapping)}
}

func (r *Router) handleCheck(ctx context.Context, req Request) Response {
	result, err := r.service.TriggerSyncOne(ctx, req.ChannelID)
	if errors.Is(err, custom_errors.ErrNotLinked) {
		return Response{Content: "❌ This channel is not linked to any repository."}
	}
	if err != nil {
		r.logger.Error("Manual check failed", "channel_id", req.ChannelID, "error", err)
		return Response{Content: "❌ An error occurred while processing your command."}
	}

	switch {
	case result.Baseline:
		return Response{Content: "🔍 Started tracking from the latest commit. New commits will be announced here."}
	case result.Found == 0:
		return Response{Content: "🔍 No new commits since the last check."}
	default:
		return Response{Content: fmt.Sprintf("🔍 Found %d new commit(s).", result.Found)}
	}
}

func (r *Router) handleHelp(context.Context, Request) Response {
	return Response{Embed: helpEmbed(r.prefix, r.schedule)}
}

func (r *Router) handleToken(ctx context.Context, _ Request) Response {
	id := r.service.Identity(ctx)
	if id == nil {
		return Response{Embed: noTokenEmbed()}
	}
	return Response{Embed: identityEmbed(id)}
}
