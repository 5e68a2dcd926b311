// internal/discord/notifier.go
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github-commit-tracker/internal/model"
)

// Sender is the subset of *discordgo.Session used to talk to channels.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Notifier posts commit announcements as embeds.
type Notifier struct {
	sender Sender
	webURL string
	logger *slog.Logger
}

// NewNotifier creates a Notifier that sends through sender. webURL is the browser base URL
// of the repository host, used for links to branch history.
func NewNotifier(sender Sender, webURL string, logger *slog.Logger) *Notifier {
	if webURL == "" {
		webURL = "https://github.com"
	}
	return &Notifier{sender: sender, webURL: strings.TrimRight(webURL, "/"), logger: logger}
}

// NotifyNewCommit announces c in channelID.
func (n *Notifier) NotifyNewCommit(ctx context.Context, channelID string, m model.ChannelMapping, c model.Commit) error {
	_, err := n.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{commitEmbed(m, c)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending commit %s: %w", c.ShortSHA(), err)
	}
	return nil
}

// NotifyHistoryGap tells channelID that some commits were not announced.
func (n *Notifier) NotifyHistoryGap(ctx context.Context, channelID string, m model.ChannelMapping, gap model.HistoryGap) error {
	_, err := n.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{historyGapEmbed(n.webURL, m, gap)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending history notice: %w", err)
	}
	return nil
}

// ChannelExists reports false only when Discord says the channel is gone.
// Any other failure is treated as transient and the channel is assumed to exist.
func (n *Notifier) ChannelExists(ctx context.Context, channelID string) bool {
	_, err := n.sender.Channel(channelID, discordgo.WithContext(ctx))
	if err == nil {
		return true
	}
	if isUnknownChannel(err) {
		return false
	}
	n.logger.Warn("Could not look up channel, assuming it still exists", "channel_id", channelID, "error", err)
	return true
}

func isUnknownChannel(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
