// Package discordhttp implements Discord's HTTP interactions model:
// instead of a gateway websocket, Discord POSTs each interaction to a
// configured endpoint URL, signed with the application's ed25519 key.
//
// A [Client] hosts that endpoint. It verifies request signatures,
// answers Discord's verification pings, routes slash commands,
// message components, autocomplete, and modal submissions to registered
// handlers, and serializes each handler's [Response] as the HTTP reply.
// The bot token is only used for REST calls: syncing the command
// registry, and followup messages after a deferred response.
package discordhttp

var (
	// When building, set these like:
	// -ldflags "-X github.com/joyn-gg/discord.http/discordhttp.Version=$(git describe --tags)"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)
