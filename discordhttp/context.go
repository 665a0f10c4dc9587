package discordhttp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Context carries a single incoming interaction through checks, handlers,
// and followup calls. It wraps the raw discordgo payload with accessors
// for the places Discord scatters data (options dug out of subcommand
// groups, modal inputs nested in action rows), and exposes the REST
// followup methods scoped to this interaction's token.
type Context struct {
	ctx         context.Context
	client      *Client
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger

	// options is the leaf option list after digging through any
	// subcommand groups; nil for non-command interactions.
	options []*discordgo.ApplicationCommandInteractionDataOption

	// commandPath is the full invoked name, e.g. "config get".
	commandPath string

	requestID string

	// receivedAt is when the HTTP request reached the dispatch handler,
	// for measuring dispatch latency.
	receivedAt time.Time
}

// Context returns the request-scoped context.Context, which is canceled
// when the HTTP request finishes.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Logger returns a logger annotated with the interaction's identifiers.
func (c *Context) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Interaction returns the raw interaction payload.
func (c *Context) Interaction() *discordgo.InteractionCreate {
	return c.interaction
}

// ID returns the interaction's snowflake ID.
func (c *Context) ID() string {
	return c.interaction.ID
}

// Token returns the interaction token used for followup calls.
func (c *Context) Token() string {
	return c.interaction.Token
}

// RequestID returns the server-assigned ID of the HTTP request that
// delivered this interaction.
func (c *Context) RequestID() string {
	return c.requestID
}

// User returns the invoking user, whether the interaction came from a
// guild (member) or a DM.
func (c *Context) User() *discordgo.User {
	return interactionUser(c.interaction)
}

// Member returns the invoking guild member, or nil outside a guild.
func (c *Context) Member() *discordgo.Member {
	return c.interaction.Member
}

func (c *Context) GuildID() string {
	return c.interaction.GuildID
}

func (c *Context) ChannelID() string {
	return c.interaction.ChannelID
}

// Locale returns the invoking user's client locale.
func (c *Context) Locale() discordgo.Locale {
	return c.interaction.Locale
}

// CommandPath returns the fully qualified command name that was invoked,
// with subcommand groups joined by spaces. Empty for non-command
// interactions.
func (c *Context) CommandPath() string {
	return c.commandPath
}

// Options maps the invoked (sub)command's options by name.
func (c *Context) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	return interactionOptions(c.options)
}

// Option returns the named option, or nil if the user didn't supply it.
func (c *Context) Option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, option := range c.options {
		if option.Name == name {
			return option
		}
	}
	return nil
}

// StringOption returns the named option's string value, or fallback when
// absent.
func (c *Context) StringOption(name string, fallback string) string {
	option := c.Option(name)
	if option == nil {
		return fallback
	}
	return option.StringValue()
}

// CustomID returns the component or modal custom ID, or "" for other
// interaction types.
func (c *Context) CustomID() string {
	switch c.interaction.Type {
	case discordgo.InteractionMessageComponent:
		return c.interaction.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		return c.interaction.ModalSubmitData().CustomID
	default:
		return ""
	}
}

// ComponentValues returns the selected values of a select-menu component
// interaction, or nil for other types.
func (c *Context) ComponentValues() []string {
	if c.interaction.Type != discordgo.InteractionMessageComponent {
		return nil
	}
	return c.interaction.MessageComponentData().Values
}

// Message returns the message the component is attached to, or nil for
// non-component interactions.
func (c *Context) Message() *discordgo.Message {
	return c.interaction.Message
}

// ModalValue returns the text entered into the modal input with the given
// custom ID. The second return is false if the interaction isn't a modal
// submission or has no such input.
func (c *Context) ModalValue(customID string) (string, bool) {
	if c.interaction.Type != discordgo.InteractionModalSubmit {
		return "", false
	}
	data := c.interaction.ModalSubmitData()
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, ok := component.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == customID {
				return input.Value, true
			}
		}
	}
	return "", false
}

// TargetUser returns the user a user context-menu command was invoked on,
// or nil for other interactions.
func (c *Context) TargetUser() *discordgo.User {
	if c.interaction.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := c.interaction.ApplicationCommandData()
	if data.TargetID == "" || data.Resolved == nil {
		return nil
	}
	return data.Resolved.Users[data.TargetID]
}

// TargetMessage returns the message a message context-menu command was
// invoked on, or nil for other interactions.
func (c *Context) TargetMessage() *discordgo.Message {
	if c.interaction.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := c.interaction.ApplicationCommandData()
	if data.TargetID == "" || data.Resolved == nil {
		return nil
	}
	return data.Resolved.Messages[data.TargetID]
}

// CreatedAt returns the interaction's creation time, derived from its
// snowflake ID.
func (c *Context) CreatedAt() time.Time {
	return snowflakeTime(c.interaction.ID)
}

// ExpiresAt returns when the interaction token stops being usable for
// followups.
func (c *Context) ExpiresAt() time.Time {
	return c.CreatedAt().Add(discordInteractionTokenLifespan)
}

// IsExpired reports whether the interaction token has already lapsed.
// Followup calls after this point will fail.
func (c *Context) IsExpired() bool {
	return time.Now().After(c.ExpiresAt())
}

// Followup sends a followup message for this interaction. Only valid
// after the handler responded (typically with a deferral).
func (c *Context) Followup(params *discordgo.WebhookParams) (
	*discordgo.Message,
	error,
) {
	if c.IsExpired() {
		return nil, fmt.Errorf(
			"interaction token expired at %s",
			c.ExpiresAt(),
		)
	}
	return c.client.session.FollowupMessageCreate(
		c.interaction.Interaction,
		true,
		params,
		discordgo.WithContext(c.Context()),
	)
}

// FollowupMessage is shorthand for a content-only followup.
func (c *Context) FollowupMessage(content string) (*discordgo.Message, error) {
	return c.Followup(
		&discordgo.WebhookParams{
			Content: truncate(content, discordMaxMessageLength),
		},
	)
}

// OriginalResponse fetches the original interaction response message.
func (c *Context) OriginalResponse() (*discordgo.Message, error) {
	if c.IsExpired() {
		return nil, fmt.Errorf(
			"interaction token expired at %s",
			c.ExpiresAt(),
		)
	}
	return c.client.session.InteractionResponse(
		c.interaction.Interaction,
		discordgo.WithContext(c.Context()),
	)
}

// EditOriginal edits the original interaction response, usually to
// replace a deferred "thinking" placeholder.
func (c *Context) EditOriginal(edit *discordgo.WebhookEdit) (
	*discordgo.Message,
	error,
) {
	if c.IsExpired() {
		return nil, fmt.Errorf(
			"interaction token expired at %s",
			c.ExpiresAt(),
		)
	}
	return c.client.session.InteractionResponseEdit(
		c.interaction.Interaction,
		edit,
		discordgo.WithContext(c.Context()),
	)
}

// EditOriginalMessage is shorthand for replacing the original response's
// content.
func (c *Context) EditOriginalMessage(content string) (
	*discordgo.Message,
	error,
) {
	content = truncate(content, discordMaxMessageLength)
	return c.EditOriginal(&discordgo.WebhookEdit{Content: &content})
}

// DeleteOriginal deletes the original interaction response.
func (c *Context) DeleteOriginal() error {
	if c.IsExpired() {
		return fmt.Errorf("interaction token expired at %s", c.ExpiresAt())
	}
	return c.client.session.InteractionResponseDelete(
		c.interaction.Interaction,
		discordgo.WithContext(c.Context()),
	)
}
