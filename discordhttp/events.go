package discordhttp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Ping describes an endpoint-verification ping received from Discord.
type Ping struct {
	// ID is the ping interaction's snowflake ID.
	ID string

	// ApplicationID of the application being verified.
	ApplicationID string

	// Version is the interaction version Discord sent.
	Version int

	ReceivedAt time.Time
}

// CreatedAt returns the ping's creation time per its snowflake ID.
func (p Ping) CreatedAt() time.Time {
	return snowflakeTime(p.ID)
}

func (p Ping) String() string {
	return fmt.Sprintf("Ping(id=%s, application_id=%s)", p.ID, p.ApplicationID)
}

// ReadyHandler runs once startup finishes, with the bot's own user.
type ReadyHandler func(ctx context.Context, user *discordgo.User)

// PingHandler runs for each endpoint-verification ping. The pong reply is
// sent regardless.
type PingHandler func(ctx context.Context, ping Ping)

// RawInteractionHandler sees every verified interaction before routing,
// including types the client has no handler for.
type RawInteractionHandler func(
	ctx context.Context,
	interaction *discordgo.InteractionCreate,
)

// EventErrorHandler is notified when a listener (ready, ping, raw) panics
// or when background work fails outside any specific interaction.
type EventErrorHandler func(ctx context.Context, event string, err error)

// InteractionErrorHandler is notified when dispatching an interaction
// fails: handler error, handler panic, or an unroutable payload.
type InteractionErrorHandler func(ctx *Context, err error)

// eventHandlers holds the client's registered listeners. Listener slices
// are only mutated before Run, so dispatch reads them without locking.
type eventHandlers struct {
	ready            []ReadyHandler
	ping             []PingHandler
	rawInteraction   []RawInteractionHandler
	eventError       []EventErrorHandler
	interactionError []InteractionErrorHandler

	logger *slog.Logger
}

// dispatchEventError fans an error out to the event-error listeners. Used
// for failures that aren't tied to one interaction.
func (e *eventHandlers) dispatchEventError(
	ctx context.Context,
	event string,
	err error,
) {
	e.logger.ErrorContext(ctx, "event error", "event", event, tint.Err(err))
	for _, handler := range e.eventError {
		handler := handler
		e.safeDispatch(
			ctx, "event_error", func() {
				handler(ctx, event, err)
			},
		)
	}
}

// dispatchInteractionError fans a dispatch failure out to the
// interaction-error listeners, falling back to the event-error listeners
// when none are registered so errors are never silently dropped.
func (e *eventHandlers) dispatchInteractionError(ctx *Context, err error) {
	ctx.Logger().Error(
		"interaction error",
		tint.Err(err),
		"interaction_id", ctx.ID(),
	)
	if len(e.interactionError) == 0 {
		for _, handler := range e.eventError {
			handler := handler
			e.safeDispatch(
				ctx.Context(), "event_error", func() {
					handler(ctx.Context(), "interaction", err)
				},
			)
		}
		return
	}
	for _, handler := range e.interactionError {
		handler := handler
		e.safeDispatch(
			ctx.Context(), "interaction_error", func() {
				handler(ctx, err)
			},
		)
	}
}

func (e *eventHandlers) dispatchReady(
	ctx context.Context,
	user *discordgo.User,
) {
	for _, handler := range e.ready {
		handler := handler
		e.safeDispatch(
			ctx, "ready", func() {
				handler(ctx, user)
			},
		)
	}
}

func (e *eventHandlers) dispatchPing(ctx context.Context, ping Ping) {
	for _, handler := range e.ping {
		handler := handler
		e.safeDispatch(
			ctx, "ping", func() {
				handler(ctx, ping)
			},
		)
	}
}

func (e *eventHandlers) dispatchRawInteraction(
	ctx context.Context,
	interaction *discordgo.InteractionCreate,
) {
	for _, handler := range e.rawInteraction {
		handler := handler
		e.safeDispatch(
			ctx, "raw_interaction", func() {
				handler(ctx, interaction)
			},
		)
	}
}

// safeDispatch runs fn, recovering panics so a misbehaving listener can't
// take the request (or process) down with it. Panics from error listeners
// themselves are only logged, to avoid recursion.
func (e *eventHandlers) safeDispatch(
	ctx context.Context,
	event string,
	fn func(),
) {
	defer func() {
		rc := recover()
		if rc == nil {
			return
		}
		err := fmt.Errorf("%s listener panic: %v", event, rc)
		e.logger.ErrorContext(
			ctx,
			"listener panicked",
			"event", event,
			tint.Err(err),
			"stack", string(debug.Stack()),
		)
		if event != "event_error" && event != "interaction_error" {
			e.dispatchEventError(ctx, event, err)
		}
	}()
	fn()
}
