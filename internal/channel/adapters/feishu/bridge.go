package feishu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/larkhook/internal/channel"
)

const imageOnlyBody = "[User sent an image]"

type mediaTransfer interface {
	mediaDownloader
	mediaUploader
}

// Bridge routes normalized inbound messages to the agent dispatcher and
// wires a reply sink for the originating chat.
type Bridge struct {
	logger     *slog.Logger
	account    Account
	client     platformClient
	media      mediaTransfer
	normalizer *ContentNormalizer
	routes     channel.RouteResolver
	dispatcher channel.ReplyDispatcher
	now        func() time.Time
}

// NewBridge creates a bridge for account.
func NewBridge(log *slog.Logger, account Account, client platformClient, media mediaTransfer, routes channel.RouteResolver, dispatcher channel.ReplyDispatcher) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "lark_bridge"), slog.String("account_id", account.AccountID))
	return &Bridge{
		logger:     log,
		account:    account,
		client:     client,
		media:      media,
		normalizer: NewContentNormalizer(log, media),
		routes:     routes,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// HandleMessage processes one im.message.receive_v1 event. A message with no
// usable content or no configured route is dropped without error.
func (b *Bridge) HandleMessage(ctx context.Context, ev InboundEvent) error {
	content := b.normalizer.Normalize(ctx, ev.Content, ev.MessageType, ev.MessageID)
	if content.Empty() {
		b.logger.Debug("skip empty message", slog.String("message_id", ev.MessageID), slog.String("message_type", ev.MessageType))
		return nil
	}

	b.logger.Info("inbound message",
		slog.String("sender_id", ev.SenderID),
		slog.String("chat_type", string(ev.ChatType)),
		slog.String("chat_id", ev.ChatID),
		slog.Int("images", len(content.Images)),
	)

	route, err := b.routes.ResolveAgentRoute(ctx, channel.RouteQuery{
		Channel:   Type,
		AccountID: b.account.AccountID,
		ChatType:  ev.ChatType,
		ChatID:    ev.ChatID,
		SenderID:  ev.SenderID,
	})
	if err != nil {
		return fmt.Errorf("resolve agent route: %w", err)
	}
	if route == nil {
		b.logger.Warn("no route found for message", slog.String("chat_id", ev.ChatID), slog.String("sender_id", ev.SenderID))
		return nil
	}

	inbound := b.buildContext(ev, content, route)
	b.logger.Debug("dispatch reply",
		slog.String("message_id", ev.MessageID),
		slog.String("session_key", inbound.SessionKey),
		slog.Time("received_at", inbound.ReceivedAt().UTC()),
	)
	sink := newReplySink(b.logger, b.client, b.media, ev.ChatID)
	opts := channel.ReplyOptions{
		AgentID:   route.AgentID,
		Channel:   Type,
		AccountID: b.account.AccountID,
	}
	if err := b.dispatcher.DispatchReply(ctx, inbound, sink, opts); err != nil {
		return fmt.Errorf("dispatch reply: %w", err)
	}
	return nil
}

func (b *Bridge) buildContext(ev InboundEvent, content NormalizedContent, route *channel.RouteDecision) channel.InboundContext {
	body := content.Text
	if len(content.Images) > 0 && strings.TrimSpace(body) == "" {
		body = imageOnlyBody
	}
	from := channel.Address(Type, b.account.AccountID, ev.SenderID)
	to := channel.Address(Type, b.account.AccountID, ev.ChatID)

	inbound := channel.InboundContext{
		Body:               body,
		RawBody:            body,
		CommandBody:        body,
		From:               from,
		To:                 to,
		SessionKey:         route.SessionKey,
		AccountID:          route.AccountID,
		ChatType:           ev.ChatType,
		SenderName:         ev.SenderID,
		SenderID:           ev.SenderID,
		Provider:           Type.String(),
		Surface:            Type.String(),
		MessageSid:         ev.MessageID,
		Timestamp:          b.now().UnixMilli(),
		WasMentioned:       false,
		CommandAuthorized:  true,
		OriginatingChannel: Type.String(),
		OriginatingTo:      to,
	}
	if ev.ChatType == channel.ChatTypeGroup {
		inbound.GroupSubject = ev.ChatID
	}
	for _, path := range content.Images {
		inbound.Attachments = append(inbound.Attachments, channel.Attachment{Path: path, Type: channel.AttachmentImage})
	}
	return inbound
}
