package clients

import (
	"fmt"

	"go.uber.org/zap"

	"polyleader/clients/discord"
	"polyleader/clients/natspub"
	"polyleader/clients/notifier"
	"polyleader/clients/polymarketapi"
	"polyleader/clients/signer"
	"polyleader/clients/telegram"
	"polyleader/config"
)

type Clients struct {
	Logger *zap.Logger

	Discord    *discord.DiscordClient
	Telegram   *telegram.TelegramClient
	Notifier   notifier.Notifier // Combined notifier for all channels
	Polymarket *polymarketapi.PolymarketApiClient
	Candidates *natspub.Publisher
	Signer     *signer.Signer
}

func NewClients(logger *zap.Logger, cfg *config.Config) (*Clients, error) {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	// Create combined notifier for all channels
	multiNotifier := notifier.NewMultiNotifier(discordClient, telegramClient)

	candidates, err := natspub.NewPublisher(logger, cfg.NATS.URL, cfg.NATS.Subject)
	if err != nil {
		return nil, fmt.Errorf("create candidate publisher: %w", err)
	}

	sg, err := signer.New(logger, cfg.Signer.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	return &Clients{
		Logger:     logger,
		Discord:    discordClient,
		Telegram:   telegramClient,
		Notifier:   multiNotifier,
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
		Candidates: candidates,
		Signer:     sg,
	}, nil
}

// Close releases client resources.
func (c *Clients) Close() error {
	var lastErr error
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			lastErr = err
		}
	}
	if c.Candidates != nil {
		if err := c.Candidates.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
