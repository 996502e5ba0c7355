package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"polyleader/clients/notifier"
	"polyleader/config"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// TelegramClient sends alerts to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	isProd   bool
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return &TelegramClient{
			logger: logger,
			chatID: chatID,
			isProd: cfg.IsProd,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		isProd:   cfg.IsProd,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendLeaderAlert sends a leader alert notification.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendLeaderAlert(alert notifier.LeaderAlert) {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return
	}

	var message string
	switch alert.Kind {
	case notifier.AlertKindReport:
		message = tc.buildReportMessage(alert)
	case notifier.AlertKindCopyCandidate:
		message = tc.buildCandidateMessage(alert)
	default:
		tc.logger.Warn("unknown alert kind", zap.String("kind", string(alert.Kind)))
		return
	}

	if err := tc.sendMessage(message); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram leader alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("leader", alert.LeaderAddress),
	)
}

func (tc *TelegramClient) buildReportMessage(alert notifier.LeaderAlert) string {
	var sb strings.Builder

	title := "🐋 Whale Leaders Found"
	if alert.Tier == "qualified" {
		title = "⭐ Qualified Leaders Found"
	}
	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(title)))

	sb.WriteString(fmt.Sprintf("*Leaders:* %d\n", alert.LeaderTotal))
	sb.WriteString(fmt.Sprintf("*Trades scanned:* %d\n", alert.TradesScanned))
	sb.WriteString(fmt.Sprintf("*Unique wallets:* %d\n\n", alert.UniqueWallets))

	sb.WriteString(fmt.Sprintf("*Top leader:* %s\n", tc.leaderLine(alert)))
	sb.WriteString(fmt.Sprintf("*Volume:* $%.2f across %d markets (%d trades)\n",
		alert.Volume, alert.MarketCount, alert.TradeCount))

	sb.WriteString(tc.footer(alert.Timestamp))
	return sb.String()
}

func (tc *TelegramClient) buildCandidateMessage(alert notifier.LeaderAlert) string {
	var sb strings.Builder

	title := "📋 Copy Candidate"
	if alert.Tier == "whale" {
		title = "🐋 Whale Copy Candidate"
	}
	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(title)))

	if alert.MarketURL != "" {
		sb.WriteString(fmt.Sprintf("*Market:* [%s](%s)\n", escapeMarkdown(alert.MarketTitle), alert.MarketURL))
	} else {
		sb.WriteString(fmt.Sprintf("*Market:* %s\n", escapeMarkdown(alert.MarketTitle)))
	}
	sb.WriteString(fmt.Sprintf("*Outcome:* %s\n", escapeMarkdown(alert.Outcome)))
	if alert.Category != "" {
		sb.WriteString(fmt.Sprintf("*Category:* %s\n", escapeMarkdown(alert.Category)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("*Leader:* %s\n", tc.leaderLine(alert)))

	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		sideEmoji = "🔴"
	}
	sb.WriteString(fmt.Sprintf("*Side:* %s %s\n", sideEmoji, alert.Side))
	sb.WriteString(fmt.Sprintf("*Trade:* %.2f shares @ $%.3f\n", alert.Shares, alert.Price))
	sb.WriteString(fmt.Sprintf("*Notional:* $%.2f\n", alert.Notional))
	sb.WriteString(fmt.Sprintf("*Copy size:* %.2f shares\n", alert.CopyShares))

	sb.WriteString(tc.footer(alert.Timestamp))
	return sb.String()
}

func (tc *TelegramClient) leaderLine(alert notifier.LeaderAlert) string {
	display := shortAddress(alert.LeaderAddress)
	if alert.LeaderURL != "" {
		return fmt.Sprintf("[%s](%s)", escapeMarkdown(display), alert.LeaderURL)
	}
	return escapeMarkdown(display)
}

func (tc *TelegramClient) footer(ts time.Time) string {
	pst, _ := time.LoadLocation("America/Los_Angeles")
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("\n_polyleader • %s_", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)"))
}

func (tc *TelegramClient) sendMessage(text string) error {
	url := fmt.Sprintf(telegramAPIURL, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    tc.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
