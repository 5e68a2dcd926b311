// internal/discord/embeds.go
package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github-commit-tracker/internal/model"
)

const (
	colorCommit  = 0x6e5494
	colorSuccess = 0x00ff00
	colorInfo    = 0x0099ff
	colorWarn    = 0xffa500

	// maxDescription stays under Discord's 4096 character embed description limit.
	maxDescription = 4000
)

func commitEmbed(m model.ChannelMapping, c model.Commit) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📝 New Commit to %s", m.FullName()),
		URL:         c.URL,
		Description: truncate(c.Message, maxDescription),
		Color:       colorCommit,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Author", Value: orDefault(c.AuthorName, "Unknown"), Inline: true},
			{Name: "Branch", Value: orDefault(m.Branch, "default"), Inline: true},
			{Name: "SHA", Value: "`" + c.ShortSHA() + "`", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: m.FullName()},
	}
	if !c.AuthoredAt.IsZero() {
		embed.Timestamp = c.AuthoredAt.Format(time.RFC3339)
	}
	if c.AuthorAvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.AuthorAvatarURL}
	}
	return embed
}

func historyGapEmbed(webURL string, m model.ChannelMapping, gap model.HistoryGap) *discordgo.MessageEmbed {
	var parts []string
	if gap.Incomplete {
		parts = append(parts, "The previously announced commit was not found in recent history "+
			"(force-push, rebase, or more commits than one page). Some commits may not have been announced.")
	}
	if gap.Unannounced > 0 {
		parts = append(parts, fmt.Sprintf("%d more new commit(s) were not announced to keep this channel readable.", gap.Unannounced))
	}

	historyURL := fmt.Sprintf("%s/%s/%s/commits", webURL, m.Owner, m.Repo)
	if m.Branch != "" {
		historyURL += "/" + m.Branch
	}
	return &discordgo.MessageEmbed{
		Title:       "⚠️ History may be incomplete",
		URL:         historyURL,
		Description: strings.Join(parts, "\n\n"),
		Color:       colorWarn,
		Footer:      &discordgo.MessageEmbedFooter{Text: m.FullName()},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func linkedEmbed(m model.ChannelMapping) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ Repository Linked",
		Description: fmt.Sprintf("This channel is now tracking:\n**%s** (%s branch)", m.FullName(), m.Branch),
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func mappingEmbed(m model.ChannelMapping) *discordgo.MessageEmbed {
	lastChecked := "Never"
	if m.LastCheckedAt != nil {
		lastChecked = fmt.Sprintf("<t:%d:f>", m.LastCheckedAt.Unix())
	}
	return &discordgo.MessageEmbed{
		Title: "📚 Repository Information",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Repository", Value: m.FullName(), Inline: true},
			{Name: "Branch", Value: orDefault(m.Branch, "default"), Inline: true},
			{Name: "Last Checked", Value: lastChecked},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func helpEmbed(prefix, schedule string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🤖 GitHub Commit Tracker Bot - Help",
		Description: "Track GitHub repository commits in your Discord channels!",
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: prefix + "link <owner/repo> [branch]", Value: "Link a GitHub repository to this channel\nExample: `" + prefix + "link facebook/react main`"},
			{Name: prefix + "unlink", Value: "Unlink the repository from this channel"},
			{Name: prefix + "list", Value: "Show the repository linked to this channel"},
			{Name: prefix + "check", Value: "Manually check for new commits now"},
			{Name: prefix + "token (or " + prefix + "whoami)", Value: "Check which GitHub account is authenticated"},
			{Name: prefix + "help", Value: "Show this help message"},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "The bot checks for commits automatically (" + schedule + ")"},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func noTokenEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚠️ No GitHub Token",
		Description: "No GitHub token is configured or it was rejected. The bot is using unauthenticated requests.",
		Color:       colorWarn,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Rate Limit", Value: "60 requests/hour", Inline: true},
			{Name: "Access", Value: "Public repos only", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Set GITHUB_TOKEN for private repo access and higher rate limits"},
	}
}

func identityEmbed(id *model.Identity) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "✅ GitHub Authentication",
		Description: fmt.Sprintf("Authenticated as **%s**", id.Login),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Name", Value: orDefault(id.Name, "Not set"), Inline: true},
			{Name: "Account Type", Value: orDefault(id.Type, "Unknown"), Inline: true},
			{Name: "Public Repos", Value: strconv.Itoa(id.PublicRepos), Inline: true},
			{Name: "Rate Limit", Value: "5,000 requests/hour", Inline: true},
			{Name: "Access", Value: "Public + Private repos", Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if id.AvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: id.AvatarURL}
	}
	if id.Bio != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: id.Bio}
	}
	return embed
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
