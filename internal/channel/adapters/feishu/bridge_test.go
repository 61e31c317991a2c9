package feishu

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/larkhook/internal/channel"
)

type fakeRoutes struct {
	decision *channel.RouteDecision
	err      error
	queries  []channel.RouteQuery
}

func (r *fakeRoutes) ResolveAgentRoute(_ context.Context, query channel.RouteQuery) (*channel.RouteDecision, error) {
	r.queries = append(r.queries, query)
	return r.decision, r.err
}

type fakeDispatcher struct {
	calls  []channel.InboundContext
	opts   []channel.ReplyOptions
	blocks []channel.ReplyBlock
	final  *channel.ReplyBlock
	err    error
}

func (d *fakeDispatcher) DispatchReply(ctx context.Context, inbound channel.InboundContext, sink channel.ReplySink, opts channel.ReplyOptions) error {
	d.calls = append(d.calls, inbound)
	d.opts = append(d.opts, opts)
	for _, block := range d.blocks {
		if err := sink.SendBlockReply(ctx, block); err != nil {
			return err
		}
	}
	if d.final != nil {
		if err := sink.SendFinalReply(ctx, *d.final); err != nil {
			return err
		}
	}
	return d.err
}

// stubTransfer serves downloads from a fixed map and never uploads.
type stubTransfer struct {
	paths map[string]string
}

func (s *stubTransfer) Download(_ context.Context, mediaKey, _ string) (string, bool) {
	path, ok := s.paths[mediaKey]
	return path, ok
}

func (s *stubTransfer) Upload(context.Context, string) (string, bool) {
	return "", false
}

var testAccount = Account{AccountID: "default", AppID: "cli_1", AppSecret: "secret", Region: regionFeishu}

func newTestBridge(platform *fakePlatform, transfer mediaTransfer, routes *fakeRoutes, dispatcher *fakeDispatcher) *Bridge {
	b := NewBridge(discardLogger(), testAccount, platform, transfer, routes, dispatcher)
	b.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return b
}

func TestBridgeHandleMessageGroupText(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{}
	routes := &fakeRoutes{decision: &channel.RouteDecision{SessionKey: "sess-1", AgentID: "agent-1", AccountID: "routed"}}
	dispatcher := &fakeDispatcher{
		blocks: []channel.ReplyBlock{{Text: "first"}, {Text: "  "}},
		final:  &channel.ReplyBlock{Markdown: "last"},
	}
	bridge := newTestBridge(platform, &stubTransfer{}, routes, dispatcher)

	err := bridge.HandleMessage(context.Background(), InboundEvent{
		SenderID:    "ou_sender",
		ChatID:      "oc_group",
		ChatType:    channel.ChatTypeGroup,
		MessageID:   "om_1",
		MessageType: "text",
		Content:     `{"text":"hello agent"}`,
	})
	require.NoError(t, err)

	require.Len(t, routes.queries, 1)
	assert.Equal(t, channel.RouteQuery{
		Channel:   "lark",
		AccountID: "default",
		ChatType:  channel.ChatTypeGroup,
		ChatID:    "oc_group",
		SenderID:  "ou_sender",
	}, routes.queries[0])

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, channel.InboundContext{
		Body:               "hello agent",
		RawBody:            "hello agent",
		CommandBody:        "hello agent",
		From:               "lark:default:ou_sender",
		To:                 "lark:default:oc_group",
		SessionKey:         "sess-1",
		AccountID:          "routed",
		ChatType:           channel.ChatTypeGroup,
		GroupSubject:       "oc_group",
		SenderName:         "ou_sender",
		SenderID:           "ou_sender",
		Provider:           "lark",
		Surface:            "lark",
		MessageSid:         "om_1",
		Timestamp:          1_700_000_000_000,
		WasMentioned:       false,
		CommandAuthorized:  true,
		OriginatingChannel: "lark",
		OriginatingTo:      "lark:default:oc_group",
	}, dispatcher.calls[0])
	assert.Equal(t, channel.ReplyOptions{AgentID: "agent-1", Channel: "lark", AccountID: "default"}, dispatcher.opts[0])

	sent := platform.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, `{"text":"first"}`, sent[0].content)
	assert.Equal(t, `{"text":"last"}`, sent[1].content)
	assert.Equal(t, "chat_id", sent[0].receiveIDType)
}

func TestBridgeImageOnlyMessage(t *testing.T) {
	t.Parallel()

	routes := &fakeRoutes{decision: &channel.RouteDecision{SessionKey: "s", AgentID: "a", AccountID: "default"}}
	dispatcher := &fakeDispatcher{}
	transfer := &stubTransfer{paths: map[string]string{"img_1": "/tmp/lark-images/om_2_img_1.png"}}
	bridge := newTestBridge(&fakePlatform{}, transfer, routes, dispatcher)

	require.NoError(t, bridge.HandleMessage(context.Background(), InboundEvent{
		SenderID:    "ou_sender",
		ChatID:      "oc_dm",
		ChatType:    channel.ChatTypeDirect,
		MessageID:   "om_2",
		MessageType: "image",
		Content:     `{"image_key":"img_1"}`,
	}))

	require.Len(t, dispatcher.calls, 1)
	got := dispatcher.calls[0]
	assert.Equal(t, "[User sent an image]", got.Body)
	assert.Empty(t, got.GroupSubject)
	assert.Equal(t, []channel.Attachment{{Path: "/tmp/lark-images/om_2_img_1.png", Type: "image"}}, got.Attachments)
}

func TestBridgeDropsEmptyAndUnrouted(t *testing.T) {
	t.Parallel()

	routes := &fakeRoutes{}
	dispatcher := &fakeDispatcher{}
	bridge := newTestBridge(&fakePlatform{}, &stubTransfer{}, routes, dispatcher)

	// Image whose download fails leaves nothing to route.
	require.NoError(t, bridge.HandleMessage(context.Background(), InboundEvent{MessageID: "om_1", MessageType: "image", Content: `{"image_key":"gone"}`}))
	require.NoError(t, bridge.HandleMessage(context.Background(), InboundEvent{MessageID: "om_2", MessageType: "text", Content: `{"text":"   "}`}))
	assert.Empty(t, routes.queries)

	// No route configured.
	require.NoError(t, bridge.HandleMessage(context.Background(), InboundEvent{MessageID: "om_3", MessageType: "text", Content: `{"text":"hi"}`}))
	assert.Len(t, routes.queries, 1)
	assert.Empty(t, dispatcher.calls)
}

func TestBridgePropagatesErrors(t *testing.T) {
	t.Parallel()

	routes := &fakeRoutes{err: errors.New("gateway down")}
	bridge := newTestBridge(&fakePlatform{}, &stubTransfer{}, routes, &fakeDispatcher{})
	err := bridge.HandleMessage(context.Background(), InboundEvent{MessageType: "text", Content: `{"text":"hi"}`})
	assert.ErrorContains(t, err, "gateway down")

	routes = &fakeRoutes{decision: &channel.RouteDecision{AgentID: "a"}}
	bridge = newTestBridge(&fakePlatform{}, &stubTransfer{}, routes, &fakeDispatcher{err: errors.New("agent failed")})
	err = bridge.HandleMessage(context.Background(), InboundEvent{MessageType: "text", Content: `{"text":"hi"}`})
	assert.ErrorContains(t, err, "agent failed")
}

func TestBridgeLogsReceiveTime(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	routes := &fakeRoutes{decision: &channel.RouteDecision{SessionKey: "sess-9", AgentID: "agent-1"}}
	bridge := newTestBridge(&fakePlatform{}, &stubTransfer{}, routes, &fakeDispatcher{})
	bridge.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := bridge.HandleMessage(context.Background(), InboundEvent{
		SenderID:    "ou_sender",
		ChatID:      "ou_sender",
		ChatType:    channel.ChatTypeDirect,
		MessageID:   "om_9",
		MessageType: "text",
		Content:     `{"text":"ping"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "session_key=sess-9")
	assert.Contains(t, buf.String(), "received_at=2023-11-14T22:13:20.000Z")
}
