package discordhttp

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// freshSnowflake returns a snowflake ID with the current timestamp, for
// interactions whose token must still be valid.
func freshSnowflake() string {
	ms := time.Now().UnixMilli() - discordEpoch
	return strconv.FormatInt(ms<<22, 10)
}

// generateDiscordKey creates an ed25519 public/private key pair to be
// used when testing the interaction endpoint
func generateDiscordKey(t testing.TB) (string, ed25519.PrivateKey) {
	t.Helper()
	pubkey, privkey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("error generating key pair: %v", err)
	}
	return hex.EncodeToString(pubkey), privkey
}

// mockSession implements SessionHandler without touching the network.
type mockSession struct {
	mu sync.Mutex

	user    *discordgo.User
	userErr error

	syncedCommands []*discordgo.ApplicationCommand
	syncErr        error

	followups []*discordgo.WebhookParams
	edits     []*discordgo.WebhookEdit
	deletes   int
}

func (m *mockSession) User(
	_ string,
	_ ...discordgo.RequestOption,
) (*discordgo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, m.userErr
}

func (m *mockSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	m.syncedCommands = commands
	return commands, nil
}

func (m *mockSession) InteractionResponse(
	_ *discordgo.Interaction,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (m *mockSession) InteractionResponseEdit(
	_ *discordgo.Interaction,
	edit *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	return &discordgo.Message{}, nil
}

func (m *mockSession) InteractionResponseDelete(
	_ *discordgo.Interaction,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	return nil
}

func (m *mockSession) FollowupMessageCreate(
	_ *discordgo.Interaction,
	_ bool,
	data *discordgo.WebhookParams,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followups = append(m.followups, data)
	return &discordgo.Message{}, nil
}

// newTestClient builds a client with a generated key and a mock session,
// with its server engine ready for httptest requests.
func newTestClient(t testing.TB) (*Client, ed25519.PrivateKey) {
	t.Helper()

	publicKey, privateKey := generateDiscordKey(t)
	config := DefaultConfig()
	config.Token = "test-token"
	config.ApplicationID = "123456789"
	config.PublicKey = publicKey
	config.Metrics.Enabled = true

	c, err := New(config)
	require.NoError(t, err)
	c.session = &mockSession{
		user: &discordgo.User{ID: "bot-id", Username: t.Name()},
	}
	c.ready.Store(true)

	server, err := newInteractionServer(c, c.publicKey, c.registry)
	require.NoError(t, err)
	c.server = server

	return c, privateKey
}

// signedRequest builds a POST / request with valid signature headers.
func signedRequest(
	t testing.TB,
	privateKey ed25519.PrivateKey,
	payload any,
) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature := ed25519.Sign(
		privateKey,
		append([]byte(timestamp), body...),
	)

	req := httptest.NewRequest(
		http.MethodPost,
		"/",
		bytes.NewReader(body),
	)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Timestamp", timestamp)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signature))
	return req
}

// doInteraction sends the payload through the full middleware chain and
// returns the recorded response.
func doInteraction(
	t testing.TB,
	c *Client,
	privateKey ed25519.PrivateKey,
	payload any,
) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c.server.engine.ServeHTTP(w, signedRequest(t, privateKey, payload))
	return w
}

func commandInteraction(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "1303386266245398528",
			AppID:     "123456789",
			Type:      discordgo.InteractionApplicationCommand,
			ChannelID: "channel-1",
			Token:     "interaction-token",
			Version:   1,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "user-1", Username: "someone"},
			},
			GuildID: "guild-1",
			Data: discordgo.ApplicationCommandInteractionData{
				ID:      "cmd-id",
				Name:    name,
				Options: options,
			},
		},
	}
}

func componentInteraction(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "1303386266245398529",
			AppID:     "123456789",
			Type:      discordgo.InteractionMessageComponent,
			ChannelID: "channel-1",
			Token:     "interaction-token",
			Version:   1,
			User:      &discordgo.User{ID: "user-1", Username: "someone"},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

func pingInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "1303386266245398530",
			AppID:   "123456789",
			Type:    discordgo.InteractionPing,
			Version: 1,
		},
	}
}
