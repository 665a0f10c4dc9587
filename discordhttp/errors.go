package discordhttp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotReady indicates the client hasn't finished startup yet -
	// the bot user hasn't been fetched, so status/followup calls
	// would be meaningless.
	ErrNotReady = errors.New("bot is not ready yet")

	// ErrUnknownCommand indicates an interaction referenced a command
	// name that isn't in the local registry.
	ErrUnknownCommand = errors.New("command not found")

	// ErrUnknownInteraction indicates a component/modal custom ID
	// didn't match any registered handler.
	ErrUnknownInteraction = errors.New("interaction not found")
)

// CheckError is returned by command checks to reject an interaction with a
// user-visible reason. The dispatcher turns it into an ephemeral message
// rather than an HTTP error, so the user sees why the command was refused.
type CheckError struct {
	Reason string
}

func (e *CheckError) Error() string {
	return e.Reason
}

// NewCheckError creates a CheckError with the given user-visible reason.
func NewCheckError(format string, args ...any) *CheckError {
	return &CheckError{Reason: fmt.Sprintf(format, args...)}
}

// CooldownError indicates a command was invoked again before its cooldown
// bucket refilled. It unwraps to a CheckError so the dispatcher surfaces
// it to the user as an ephemeral message.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf(
		"command on cooldown, try again in %.2fs",
		e.RetryAfter.Seconds(),
	)
}

func (e *CooldownError) Unwrap() error {
	return &CheckError{Reason: e.Error()}
}
