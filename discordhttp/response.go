package discordhttp

import (
	"github.com/bwmarrin/discordgo"
)

// Response is anything that can be serialized as the immediate JSON reply
// to a Discord interaction POST. Command and component handlers return one
// of the implementations below; the server writes it straight back on the
// incoming HTTP request, so no extra round-trip to Discord is needed.
type Response interface {
	interactionResponse() *discordgo.InteractionResponse
}

type pongResponse struct{}

func (pongResponse) interactionResponse() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
}

// Pong returns the response to Discord's endpoint-verification ping.
// The dispatcher sends this automatically; it's exported for custom
// ping listeners that want to reply themselves.
func Pong() Response {
	return pongResponse{}
}

// MessageResponse replies to an interaction with a channel message.
// When Update is set (only meaningful for component interactions), the
// message the component is attached to is edited instead.
type MessageResponse struct {
	Content         string
	Embeds          []*discordgo.MessageEmbed
	Components      []discordgo.MessageComponent
	AllowedMentions *discordgo.MessageAllowedMentions
	TTS             bool
	Ephemeral       bool
	Update          bool
}

func (r *MessageResponse) interactionResponse() *discordgo.InteractionResponse {
	responseType := discordgo.InteractionResponseChannelMessageWithSource
	if r.Update {
		responseType = discordgo.InteractionResponseUpdateMessage
	}
	var flags discordgo.MessageFlags
	if r.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: responseType,
		Data: &discordgo.InteractionResponseData{
			Content:         r.Content,
			Embeds:          r.Embeds,
			Components:      r.Components,
			AllowedMentions: r.AllowedMentions,
			TTS:             r.TTS,
			Flags:           flags,
		},
	}
}

// Message is shorthand for a plain content-only reply.
func Message(content string) *MessageResponse {
	return &MessageResponse{Content: content}
}

// EphemeralMessage is shorthand for a content-only reply visible only to
// the invoking user.
func EphemeralMessage(content string) *MessageResponse {
	return &MessageResponse{Content: content, Ephemeral: true}
}

// DeferResponse acknowledges the interaction without a visible reply,
// buying up to 15 minutes to finish via followup edits. Thinking shows
// the "is thinking..." placeholder; without it, component interactions
// are deferred as a silent message update.
type DeferResponse struct {
	Thinking  bool
	Ephemeral bool
}

func (r *DeferResponse) interactionResponse() *discordgo.InteractionResponse {
	responseType := discordgo.InteractionResponseDeferredMessageUpdate
	if r.Thinking {
		responseType = discordgo.InteractionResponseDeferredChannelMessageWithSource
	}
	var flags discordgo.MessageFlags
	if r.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: responseType,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}
}

// Defer returns a "thinking" acknowledgement.
func Defer(ephemeral bool) *DeferResponse {
	return &DeferResponse{Thinking: true, Ephemeral: ephemeral}
}

// ModalResponse opens a modal for the invoking user. The modal's
// submission arrives as a new interaction matched by CustomID.
type ModalResponse struct {
	CustomID   string
	Title      string
	Components []discordgo.MessageComponent
}

func (r *ModalResponse) interactionResponse() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   r.CustomID,
			Title:      r.Title,
			Components: r.Components,
		},
	}
}

// TextInputModal builds a single-paragraph-input modal, the most common
// modal shape.
func TextInputModal(
	customID string,
	title string,
	label string,
	placeholder string,
	minLength int,
	maxLength int,
) *ModalResponse {
	return &ModalResponse{
		CustomID: customID,
		Title:    title,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    customID,
						Label:       label,
						Style:       discordgo.TextInputParagraph,
						Placeholder: placeholder,
						Required:    true,
						MinLength:   minLength,
						MaxLength:   maxLength,
					},
				},
			},
		},
	}
}

// ActionRows arranges components into action rows, five per row, for use
// in [MessageResponse.Components]. Discord rejects rows with more than
// five components.
func ActionRows(
	components ...discordgo.MessageComponent,
) []discordgo.MessageComponent {
	chunks := chunkItems(maxComponentsPerRow, components...)
	rows := make([]discordgo.MessageComponent, 0, len(chunks))
	for _, chunk := range chunks {
		rows = append(rows, discordgo.ActionsRow{Components: chunk})
	}
	return rows
}

// AutocompleteResponse replies to an autocomplete interaction with
// suggested choices. Discord caps suggestions at 25; extra choices are
// silently dropped.
type AutocompleteResponse struct {
	Choices []*discordgo.ApplicationCommandOptionChoice
}

func (r *AutocompleteResponse) interactionResponse() *discordgo.InteractionResponse {
	choices := r.Choices
	if len(choices) > maxAutocompleteChoices {
		choices = choices[:maxAutocompleteChoices]
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}
}
