package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdhuman/stdhuman/internal/auth"
	"github.com/stdhuman/stdhuman/internal/common/config"
	apperrors "github.com/stdhuman/stdhuman/internal/common/errors"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

// fakeBotAPI is an httptest stand-in for the Telegram Bot API that records
// every sendMessage payload.
type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []map[string]interface{}
	failSend bool
	server   *httptest.Server
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/bottest-token/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)
		f.mu.Lock()
		f.sent = append(f.sent, payload)
		f.mu.Unlock()
		if f.failSend {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})
	mux.HandleFunc("/bottest-token/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBotAPI) sentMessages() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeBotAPI) lastText(t *testing.T) string {
	t.Helper()
	msgs := f.sentMessages()
	require.NotEmpty(t, msgs)
	text, _ := msgs[len(msgs)-1]["text"].(string)
	return text
}

func testClient(t *testing.T, api *fakeBotAPI) *Client {
	t.Helper()
	cfg := config.TelegramConfig{
		BotToken:    "test-token",
		APIBaseURL:  api.server.URL,
		SendTimeout: 5,
	}
	return NewClient(cfg, logger.Default())
}

func testFixture(t *testing.T, operator string) (*fakeBotAPI, *Inbound, *decision.Service, *auth.UserStore, *auth.Pairing) {
	t.Helper()
	api := newFakeBotAPI(t)
	client := testClient(t, api)

	dataDir := t.TempDir()
	users, err := auth.NewUserStore(dataDir)
	require.NoError(t, err)
	pairing, err := auth.NewPairing(dataDir)
	require.NoError(t, err)

	log := logger.Default()
	notifier := NewNotifier(client, users, nil, log)
	svc := decision.NewService(decision.NewSlot(), notifier, bus.NewMemoryEventBus(log), time.Minute, log)

	inbound := NewInbound(client, users, pairing, svc, operator, log)
	inbound.startDelay = 0
	return api, inbound, svc, users, pairing
}

func TestRenderPrompt(t *testing.T) {
	text := RenderPrompt("Deploy to prod?", []string{"Yes", "No"})
	assert.Contains(t, text, "Summary: Deploy to prod?")
	assert.Contains(t, text, "1) Yes")
	assert.Contains(t, text, "2) No")
	assert.Contains(t, text, "Reply with plain text.")

	bare := RenderPrompt("Proceed?", nil)
	assert.NotContains(t, bare, "Options:")
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"yes", "yes"},
		{"  2  ", "2"},
		{"/answer go ahead", "go ahead"},
		{"/a 1", "1"},
		{"/answer", ""},
		{"/a", ""},
		{"/another thing", "/another thing"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseReply(tc.in), "input %q", tc.in)
	}
}

func TestClientSendMessage(t *testing.T) {
	api := newFakeBotAPI(t)
	client := testClient(t, api)

	err := client.SendMessage(context.Background(), 42, "hello")
	require.NoError(t, err)
	msgs := api.sentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(42), msgs[0]["chat_id"])
	assert.Equal(t, "hello", msgs[0]["text"])

	api.failSend = true
	err = client.SendMessage(context.Background(), 42, "hello again")
	assert.Error(t, err)
}

func TestNotifierRequiresPairedChat(t *testing.T) {
	api := newFakeBotAPI(t)
	client := testClient(t, api)
	users, err := auth.NewUserStore(t.TempDir())
	require.NoError(t, err)

	notifier := NewNotifier(client, users, nil, logger.Default())
	err = notifier.DeliverPrompt(context.Background(), "Proceed?", nil)
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeBadRequest, appErr.Code)
	assert.Empty(t, api.sentMessages())
}

func TestNotifierDeliversToPairedChat(t *testing.T) {
	api := newFakeBotAPI(t)
	client := testClient(t, api)
	users, err := auth.NewUserStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, users.Remember(7))

	notifier := NewNotifier(client, users, nil, logger.Default())
	require.NoError(t, notifier.DeliverPrompt(context.Background(), "Proceed?", []string{"Yes"}))

	assert.Contains(t, api.lastText(t), "Proceed?")
	assert.Contains(t, api.lastText(t), "1) Yes")
}

func TestNotifierReportsDeliveryFailure(t *testing.T) {
	api := newFakeBotAPI(t)
	api.failSend = true
	client := testClient(t, api)
	users, err := auth.NewUserStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, users.Remember(7))

	notifier := NewNotifier(client, users, nil, logger.Default())
	err = notifier.DeliverPrompt(context.Background(), "Proceed?", nil)
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDeliveryFailed, appErr.Code)
}

func TestStartPairingFlow(t *testing.T) {
	api, inbound, _, users, pairing := testFixture(t, "")
	ctx := context.Background()

	inbound.HandleMessage(ctx, 100, "alice", "/start")
	assert.Equal(t, msgCodeRequired, api.lastText(t))

	inbound.HandleMessage(ctx, 100, "alice", "/start wrong-code")
	assert.Equal(t, msgCodeMismatch, api.lastText(t))
	_, paired := users.ChatID()
	assert.False(t, paired)

	code, err := pairing.StartCode()
	require.NoError(t, err)
	inbound.HandleMessage(ctx, 100, "alice", "/start "+code)
	assert.Equal(t, msgPaired, api.lastText(t))

	chatID, paired := users.ChatID()
	require.True(t, paired)
	assert.Equal(t, int64(100), chatID)

	// A second chat with the right code is still refused.
	inbound.HandleMessage(ctx, 200, "mallory", "/start "+code)
	assert.Equal(t, msgChatMismatch, api.lastText(t))
	chatID, _ = users.ChatID()
	assert.Equal(t, int64(100), chatID)
}

func TestStartEnforcesOperatorUsername(t *testing.T) {
	api, inbound, _, users, pairing := testFixture(t, "@alice")
	ctx := context.Background()

	code, err := pairing.StartCode()
	require.NoError(t, err)

	inbound.HandleMessage(ctx, 100, "mallory", "/start "+code)
	assert.Equal(t, msgUsernameRequired, api.lastText(t))
	_, paired := users.ChatID()
	assert.False(t, paired)

	// Username comparison ignores case and the '@' prefix.
	inbound.HandleMessage(ctx, 100, "Alice", "/start "+code)
	assert.Equal(t, msgPaired, api.lastText(t))
}

func TestReplyResolvesPendingDecision(t *testing.T) {
	api, inbound, svc, users, _ := testFixture(t, "")
	ctx := context.Background()
	require.NoError(t, users.Remember(100))

	id, err := svc.AskAsync(ctx, "Which color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	inbound.HandleMessage(ctx, 100, "alice", "/answer 2")

	answer, status := svc.Poll(id)
	assert.Equal(t, decision.StatusAnswered, status)
	assert.Equal(t, "Blue", answer)
	// The prompt went out when the decision was created.
	assert.NotEmpty(t, api.sentMessages())
}

func TestUnauthorizedChatCannotResolve(t *testing.T) {
	api, inbound, svc, users, _ := testFixture(t, "")
	ctx := context.Background()
	require.NoError(t, users.Remember(100))

	id, err := svc.AskAsync(ctx, "Which color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	inbound.HandleMessage(ctx, 999, "mallory", "1")
	assert.Equal(t, msgNotAuthorized, api.lastText(t))

	_, status := svc.Poll(id)
	assert.Equal(t, decision.StatusPending, status)
}

func TestEmptyReplyIsIgnored(t *testing.T) {
	_, inbound, svc, users, _ := testFixture(t, "")
	ctx := context.Background()
	require.NoError(t, users.Remember(100))

	id, err := svc.AskAsync(ctx, "Which color?", nil)
	require.NoError(t, err)

	inbound.HandleMessage(ctx, 100, "alice", "/answer")

	_, status := svc.Poll(id)
	assert.Equal(t, decision.StatusPending, status)
}
