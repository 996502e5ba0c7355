package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"polyleader/clients/notifier"
	"polyleader/config"
)

// DiscordClient sends alerts to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// SendLeaderAlert sends a rich embedded leader alert.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendLeaderAlert(alert notifier.LeaderAlert) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	var embed *discordgo.MessageEmbed
	switch alert.Kind {
	case notifier.AlertKindReport:
		embed = dc.buildReportEmbed(alert)
	case notifier.AlertKindCopyCandidate:
		embed = dc.buildCandidateEmbed(alert)
	default:
		dc.logger.Warn("unknown alert kind", zap.String("kind", string(alert.Kind)))
		return
	}

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord leader alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("leader", alert.LeaderAddress),
	)
}

func (dc *DiscordClient) buildReportEmbed(alert notifier.LeaderAlert) *discordgo.MessageEmbed {
	title := "🐋 Whale Leaders Found"
	color := 0x3498DB // Blue
	if alert.Tier == "qualified" {
		title = "⭐ Qualified Leaders Found"
		color = 0x9B59B6 // Purple
	}

	description := fmt.Sprintf(
		"Top leader: %s\nVolume: $%.2f across %d markets (%d trades)",
		leaderDisplay(alert), alert.Volume, alert.MarketCount, alert.TradeCount,
	)

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Leaders",
			Value:  fmt.Sprintf("%d", alert.LeaderTotal),
			Inline: true,
		},
		{
			Name:   "Trades Scanned",
			Value:  fmt.Sprintf("%d", alert.TradesScanned),
			Inline: true,
		},
		{
			Name:   "Unique Wallets",
			Value:  fmt.Sprintf("%d", alert.UniqueWallets),
			Inline: true,
		},
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		URL:         alert.LeaderURL,
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer:      dc.footer(alert.Timestamp),
		Timestamp:   alertTime(alert.Timestamp).Format(time.RFC3339),
	}
}

func (dc *DiscordClient) buildCandidateEmbed(alert notifier.LeaderAlert) *discordgo.MessageEmbed {
	// Choose color based on side
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	}

	title := "📋 Copy Candidate"
	if alert.Tier == "whale" {
		title = "🐋 Whale Copy Candidate"
	}

	description := fmt.Sprintf("**%s**\nOutcome: %s", alert.MarketTitle, alert.Outcome)
	if alert.Category != "" {
		description += fmt.Sprintf("\nCategory: %s", alert.Category)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Leader",
			Value:  leaderDisplay(alert),
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  fmt.Sprintf("%s %s", sideEmoji, alert.Side),
			Inline: true,
		},
		{
			Name:   "Trade",
			Value:  fmt.Sprintf("%.2f shares @ $%.3f", alert.Shares, alert.Price),
			Inline: true,
		},
		{
			Name:   "Notional",
			Value:  fmt.Sprintf("$%.2f", alert.Notional),
			Inline: true,
		},
		{
			Name:   "Copy Size",
			Value:  fmt.Sprintf("%.2f shares", alert.CopyShares),
			Inline: true,
		},
		{
			Name:   "Leader 24h Volume",
			Value:  fmt.Sprintf("$%.2f", alert.Volume),
			Inline: true,
		},
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		URL:         alert.MarketURL,
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer:      dc.footer(alert.Timestamp),
		Timestamp:   alertTime(alert.Timestamp).Format(time.RFC3339),
	}
}

func (dc *DiscordClient) footer(ts time.Time) *discordgo.MessageEmbedFooter {
	pst, _ := time.LoadLocation("America/Los_Angeles")
	t := alertTime(ts)
	return &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("polyleader * %s", t.In(pst).Format("1/2/2006, 3:04:05PM (MST)")),
	}
}

func alertTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

func leaderDisplay(alert notifier.LeaderAlert) string {
	display := shortAddress(alert.LeaderAddress)
	if alert.LeaderURL != "" {
		display = fmt.Sprintf("[%s](%s)", display, alert.LeaderURL)
	}
	return display
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
