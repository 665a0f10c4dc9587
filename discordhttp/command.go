package discordhttp

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// CommandHandler is the function signature for slash command, component,
// and modal handlers. The returned Response is serialized as the HTTP
// reply to Discord's interaction POST.
type CommandHandler func(ctx *Context) (Response, error)

// AutocompleteHandler produces suggestions for the focused option of an
// autocomplete interaction.
type AutocompleteHandler func(
	ctx *Context,
	focused *discordgo.ApplicationCommandInteractionDataOption,
) (*AutocompleteResponse, error)

// CheckFunc runs before a command handler. Returning a *CheckError (or an
// error wrapping one) rejects the interaction with an ephemeral message;
// any other error is treated as an internal failure.
type CheckFunc func(ctx *Context) error

// Command describes one application command: either a leaf with a
// Handler, or a group containing subcommands (in which case the
// dispatcher digs through the interaction's option tree to find the
// leaf to run).
type Command struct {
	// Name as registered with Discord. Required, and unique per registry.
	Name string

	// Description shown in the Discord client. Required for chat
	// commands; Discord rejects it on user/message commands.
	Description string

	// Type defaults to [discordgo.ChatApplicationCommand].
	Type discordgo.ApplicationCommandType

	// Options for leaf chat commands. Ignored on groups - their options
	// are generated from Subcommands.
	Options []*discordgo.ApplicationCommandOption

	// Contexts and IntegrationTypes control where the command can be
	// installed and invoked. Nil leaves them to Discord's defaults.
	Contexts         []discordgo.InteractionContextType
	IntegrationTypes []discordgo.ApplicationIntegrationType

	DefaultMemberPermissions *int64
	NSFW                     bool

	// GuildOnly rejects invocations outside a guild with a check failure.
	GuildOnly bool

	// Checks run in order before the handler; the first failure wins.
	Checks []CheckFunc

	// Cooldown, if set, rate-limits invocations per bucket.
	Cooldown *Cooldown

	Handler CommandHandler

	// Autocomplete maps option names to suggestion handlers.
	Autocomplete map[string]AutocompleteHandler

	subcommands map[string]*Command
	cooldowns   *cooldownCache
}

// NewGroup creates a command group. Add leaves with [Command.Subcommand];
// the dispatcher routes nested invocations automatically.
func NewGroup(name string, description string) *Command {
	return &Command{
		Name:        name,
		Description: description,
		subcommands: map[string]*Command{},
	}
}

// NewUserCommand creates a context-menu command shown on user profiles.
// The target user is available through [Context.TargetUser].
func NewUserCommand(name string, handler CommandHandler) *Command {
	return &Command{
		Name:    name,
		Type:    discordgo.UserApplicationCommand,
		Handler: handler,
	}
}

// NewMessageCommand creates a context-menu command shown on messages.
// The target message is available through [Context.TargetMessage].
func NewMessageCommand(name string, handler CommandHandler) *Command {
	return &Command{
		Name:    name,
		Type:    discordgo.MessageApplicationCommand,
		Handler: handler,
	}
}

// Subcommand registers sub under the group, replacing any previous
// subcommand with the same name. Calling this on a leaf converts it
// into a group (its own Handler is then unreachable).
func (c *Command) Subcommand(sub *Command) *Command {
	if c.subcommands == nil {
		c.subcommands = map[string]*Command{}
	}
	c.subcommands[sub.Name] = sub
	return c
}

// IsGroup reports whether the command routes to subcommands instead of
// its own handler.
func (c *Command) IsGroup() bool {
	return len(c.subcommands) > 0
}

// Mention returns the chat mention for a registered command, given its
// Discord-assigned ID.
func (c *Command) Mention(commandID string) string {
	return fmt.Sprintf("</%s:%s>", c.Name, commandID)
}

// applicationCommand builds the discordgo representation sent to the
// bulk-overwrite endpoint. Groups are flattened into subcommand /
// subcommand-group options.
func (c *Command) applicationCommand() *discordgo.ApplicationCommand {
	commandType := c.Type
	if commandType == 0 {
		commandType = discordgo.ChatApplicationCommand
	}

	cmd := &discordgo.ApplicationCommand{
		Name:                     c.Name,
		Description:              c.Description,
		Type:                     commandType,
		DefaultMemberPermissions: c.DefaultMemberPermissions,
		NSFW:                     &c.NSFW,
	}
	if c.Contexts != nil {
		contexts := make([]discordgo.InteractionContextType, len(c.Contexts))
		copy(contexts, c.Contexts)
		cmd.Contexts = &contexts
	}
	if c.IntegrationTypes != nil {
		integrationTypes := make(
			[]discordgo.ApplicationIntegrationType,
			len(c.IntegrationTypes),
		)
		copy(integrationTypes, c.IntegrationTypes)
		cmd.IntegrationTypes = &integrationTypes
	}

	if c.IsGroup() {
		cmd.Options = c.groupOptions()
	} else {
		cmd.Options = c.Options
	}
	return cmd
}

// groupOptions converts subcommands into option entries: leaves become
// SubCommand options, nested groups become SubCommandGroup options.
func (c *Command) groupOptions() []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(c.subcommands))
	for _, sub := range c.subcommands {
		option := &discordgo.ApplicationCommandOption{
			Name:        sub.Name,
			Description: sub.Description,
		}
		if sub.IsGroup() {
			option.Type = discordgo.ApplicationCommandOptionSubCommandGroup
			option.Options = sub.groupOptions()
		} else {
			option.Type = discordgo.ApplicationCommandOptionSubCommand
			option.Options = sub.Options
		}
		options = append(options, option)
	}
	return options
}

// runChecks evaluates guild-only, user checks, and the cooldown, in that
// order.
func (c *Command) runChecks(ctx *Context) error {
	if c.GuildOnly && ctx.GuildID() == "" {
		return &CheckError{Reason: "this command can only be used in a server"}
	}
	for _, check := range c.Checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	if c.cooldowns != nil {
		if err := c.cooldowns.check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// digSubcommand walks the interaction's option tree through subcommand
// groups until it reaches the leaf command, returning the leaf, the
// options belonging to it, and the names dug through. Mirrors how
// Discord nests the invoked subcommand inside the payload.
func digSubcommand(
	cmd *Command,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (
	*Command,
	[]*discordgo.ApplicationCommandInteractionDataOption,
	[]string,
	error,
) {
	var path []string
	for cmd.IsGroup() {
		var next *discordgo.ApplicationCommandInteractionDataOption
		for _, option := range options {
			if option.Type == discordgo.ApplicationCommandOptionSubCommand ||
				option.Type == discordgo.ApplicationCommandOptionSubCommandGroup {
				next = option
				break
			}
		}
		if next == nil {
			return nil, nil, path, fmt.Errorf(
				"invalid command: no subcommand option",
			)
		}

		sub, ok := cmd.subcommands[next.Name]
		if !ok {
			return nil, nil, path, fmt.Errorf(
				"%w: unhandled subcommand %q",
				ErrUnknownCommand, next.Name,
			)
		}
		cmd = sub
		options = next.Options
		path = append(path, next.Name)
	}
	return cmd, options, path, nil
}

// commandRegistry is the client's routing table for application commands.
type commandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

func newCommandRegistry() *commandRegistry {
	return &commandRegistry{commands: map[string]*Command{}}
}

func (r *commandRegistry) add(cmd *Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if !cmd.IsGroup() && cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}

	initCooldowns(cmd)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// initCooldowns builds cooldown caches for the command and every leaf
// below it.
func initCooldowns(cmd *Command) {
	if cmd.Cooldown != nil && cmd.cooldowns == nil {
		cmd.cooldowns = newCooldownCache(*cmd.Cooldown)
	}
	for _, sub := range cmd.subcommands {
		initCooldowns(sub)
	}
}

func (r *commandRegistry) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.commands[name]
	delete(r.commands, name)
	return exists
}

func (r *commandRegistry) get(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

func (r *commandRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// applicationCommands builds the full payload for the bulk overwrite
// endpoint.
func (r *commandRegistry) applicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	commands := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		commands = append(commands, cmd.applicationCommand())
	}
	return commands
}
