package discordhttp

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistry(t *testing.T) {
	r := newCommandRegistry()

	cmd := &Command{
		Name:        "hello",
		Description: "Say hello",
		Handler: func(*Context) (Response, error) {
			return Message("hi"), nil
		},
	}
	require.NoError(t, r.add(cmd))
	assert.Equal(t, 1, r.len())

	got, ok := r.get("hello")
	assert.True(t, ok)
	assert.Same(t, cmd, got)

	err := r.add(cmd)
	assert.Error(t, err, "duplicate name should be rejected")

	assert.True(t, r.remove("hello"))
	assert.False(t, r.remove("hello"))
	_, ok = r.get("hello")
	assert.False(t, ok)
}

func TestCommandRegistryValidation(t *testing.T) {
	r := newCommandRegistry()

	assert.Error(t, r.add(&Command{Description: "no name"}))
	assert.Error(
		t,
		r.add(&Command{Name: "nohandler", Description: "no handler"}),
	)
}

func TestApplicationCommandLeaf(t *testing.T) {
	cmd := &Command{
		Name:        "echo",
		Description: "Echoes back the given message",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "message",
				Description: "What to echo",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
		},
		Handler: func(*Context) (Response, error) {
			return Message(""), nil
		},
	}

	ac := cmd.applicationCommand()
	assert.Equal(t, "echo", ac.Name)
	assert.Equal(t, discordgo.ChatApplicationCommand, ac.Type)
	require.Len(t, ac.Options, 1)
	assert.Equal(t, "message", ac.Options[0].Name)
}

func TestApplicationCommandGroup(t *testing.T) {
	group := NewGroup("config", "Configuration commands")
	group.Subcommand(
		&Command{
			Name:        "get",
			Description: "Get a value",
			Handler: func(*Context) (Response, error) {
				return Message(""), nil
			},
		},
	)
	nested := NewGroup("alerts", "Alert settings")
	nested.Subcommand(
		&Command{
			Name:        "enable",
			Description: "Enable alerts",
			Handler: func(*Context) (Response, error) {
				return Message(""), nil
			},
		},
	)
	group.Subcommand(nested)

	ac := group.applicationCommand()
	require.Len(t, ac.Options, 2)

	byName := map[string]*discordgo.ApplicationCommandOption{}
	for _, option := range ac.Options {
		byName[option.Name] = option
	}
	assert.Equal(
		t,
		discordgo.ApplicationCommandOptionSubCommand,
		byName["get"].Type,
	)
	assert.Equal(
		t,
		discordgo.ApplicationCommandOptionSubCommandGroup,
		byName["alerts"].Type,
	)
	require.Len(t, byName["alerts"].Options, 1)
	assert.Equal(
		t,
		discordgo.ApplicationCommandOptionSubCommand,
		byName["alerts"].Options[0].Type,
	)
}

func TestDigSubcommand(t *testing.T) {
	leaf := &Command{
		Name:        "enable",
		Description: "Enable alerts",
		Handler: func(*Context) (Response, error) {
			return Message(""), nil
		},
	}
	nested := NewGroup("alerts", "Alert settings")
	nested.Subcommand(leaf)
	group := NewGroup("config", "Configuration commands")
	group.Subcommand(nested)

	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{
			Name: "alerts",
			Type: discordgo.ApplicationCommandOptionSubCommandGroup,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{
					Name: "enable",
					Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandInteractionDataOption{
						{
							Name:  "channel",
							Type:  discordgo.ApplicationCommandOptionString,
							Value: "general",
						},
					},
				},
			},
		},
	}

	got, leafOptions, path, err := digSubcommand(group, options)
	require.NoError(t, err)
	assert.Same(t, leaf, got)
	assert.Equal(t, []string{"alerts", "enable"}, path)
	require.Len(t, leafOptions, 1)
	assert.Equal(t, "channel", leafOptions[0].Name)
}

func TestDigSubcommandErrors(t *testing.T) {
	group := NewGroup("config", "Configuration commands")
	group.Subcommand(
		&Command{
			Name:        "get",
			Description: "Get a value",
			Handler: func(*Context) (Response, error) {
				return Message(""), nil
			},
		},
	)

	_, _, _, err := digSubcommand(group, nil)
	assert.Error(t, err, "group invoked with no subcommand option")

	_, _, _, err = digSubcommand(
		group, []*discordgo.ApplicationCommandInteractionDataOption{
			{
				Name: "set",
				Type: discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestCommandMention(t *testing.T) {
	cmd := &Command{Name: "hello"}
	assert.Equal(t, "</hello:1234>", cmd.Mention("1234"))
}

func TestContextMenuCommandBuilders(t *testing.T) {
	handler := func(*Context) (Response, error) { return Message("ok"), nil }

	user := NewUserCommand("Report User", handler)
	assert.Equal(t, discordgo.UserApplicationCommand, user.Type)
	assert.Equal(
		t,
		discordgo.UserApplicationCommand,
		user.applicationCommand().Type,
	)
	assert.Empty(t, user.applicationCommand().Description)

	msg := NewMessageCommand("Pin Message", handler)
	assert.Equal(t, discordgo.MessageApplicationCommand, msg.Type)
	assert.False(t, msg.IsGroup())
}
