package discordhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// SessionHandler is the subset of the Discord REST API the client uses.
// It exists so tests can substitute a stub and so callers can wrap the
// session (for instrumentation, retries, etc).
type SessionHandler interface {
	// User fetches a user; called with "@me" at startup to identify
	// the bot.
	User(userID string, options ...discordgo.RequestOption) (
		*discordgo.User,
		error,
	)

	// ApplicationCommandBulkOverwrite replaces the application's
	// registered commands. An empty guildID targets global commands.
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionResponse fetches the original response to an
	// interaction.
	InteractionResponse(
		interaction *discordgo.Interaction,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// InteractionResponseEdit edits the original response.
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// InteractionResponseDelete deletes the original response.
	InteractionResponseDelete(
		interaction *discordgo.Interaction,
		options ...discordgo.RequestOption,
	) error

	// FollowupMessageCreate sends a followup message for an
	// interaction.
	FollowupMessageCreate(
		interaction *discordgo.Interaction,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// restSession implements SessionHandler on a discordgo.Session. The
// session never opens a gateway connection; only the REST client is used.
type restSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// newSession builds the REST-only discordgo session from the client
// config. Gateway intents stay at none since Open is never called.
func newSession(config *Config, logger *slog.Logger) (*restSession, error) {
	session, err := discordgo.New(fmt.Sprintf("Bot %s", config.Token))
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsNone
	session.ShouldRetryOnRateLimit = true

	if config.HTTPClient != nil {
		session.Client = config.HTTPClient
	} else {
		session.Client = &http.Client{Timeout: DefaultRequestTimeout}
	}

	if config.DiscordGoLogLevel != nil {
		session.LogLevel = discordgoLogLevel(config.DiscordGoLogLevel.Level())
	}
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		logger.Handler(),
	)

	return &restSession{session: session, logger: logger}, nil
}

func (d *restSession) User(
	userID string,
	options ...discordgo.RequestOption,
) (*discordgo.User, error) {
	return d.session.User(userID, options...)
}

func (d *restSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
}

func (d *restSession) InteractionResponse(
	interaction *discordgo.Interaction,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponse(interaction, options...)
}

func (d *restSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d *restSession) InteractionResponseDelete(
	interaction *discordgo.Interaction,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionResponseDelete(interaction, options...)
}

func (d *restSession) FollowupMessageCreate(
	interaction *discordgo.Interaction,
	wait bool,
	data *discordgo.WebhookParams,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.FollowupMessageCreate(interaction, wait, data, options...)
}
