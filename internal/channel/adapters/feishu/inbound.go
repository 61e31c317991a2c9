package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/larkhook/internal/channel"
)

const (
	msgTypeSticker   = "sticker"
	msgTypeShareChat = "share_chat"
	msgTypeShareUser = "share_user"

	chatTypeGroup = "group"
)

// InboundEvent is the subset of an im.message.receive_v1 event used for
// routing and normalization.
type InboundEvent struct {
	SenderID    string
	ChatID      string
	ChatType    channel.ChatType
	MessageID   string
	MessageType string
	Content     string
}

// ParseInboundEvent decodes the `event` object of a message-receive callback.
func ParseInboundEvent(raw json.RawMessage) (InboundEvent, error) {
	var data larkim.P2MessageReceiveV1Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return InboundEvent{}, fmt.Errorf("decode message event: %w", err)
	}
	return inboundFromData(&data), nil
}

func inboundFromData(data *larkim.P2MessageReceiveV1Data) InboundEvent {
	var ev InboundEvent
	if data == nil {
		return ev
	}
	if data.Sender != nil && data.Sender.SenderId != nil {
		ev.SenderID = strings.TrimSpace(deref(data.Sender.SenderId.OpenId))
	}
	ev.ChatType = channel.ChatTypeDirect
	if msg := data.Message; msg != nil {
		ev.MessageID = strings.TrimSpace(deref(msg.MessageId))
		ev.ChatID = strings.TrimSpace(deref(msg.ChatId))
		ev.MessageType = strings.TrimSpace(deref(msg.MessageType))
		ev.Content = deref(msg.Content)
		if strings.TrimSpace(deref(msg.ChatType)) == chatTypeGroup {
			ev.ChatType = channel.ChatTypeGroup
		}
	}
	return ev
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// NormalizedContent is the text and downloaded images of one message.
type NormalizedContent struct {
	Text   string
	Images []string
}

// Empty reports whether there is nothing worth routing.
func (c NormalizedContent) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && len(c.Images) == 0
}

type mediaDownloader interface {
	Download(ctx context.Context, mediaKey, messageID string) (string, bool)
}

// ContentNormalizer turns a message payload into plain text plus local image
// paths.
type ContentNormalizer struct {
	logger *slog.Logger
	media  mediaDownloader
}

// NewContentNormalizer creates a normalizer that downloads images via media.
func NewContentNormalizer(log *slog.Logger, media mediaDownloader) *ContentNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &ContentNormalizer{
		logger: log.With(slog.String("component", "lark_inbound")),
		media:  media,
	}
}

// Normalize never fails: content that is not a JSON object is returned as
// text unchanged.
func (n *ContentNormalizer) Normalize(ctx context.Context, content, messageType, messageID string) NormalizedContent {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed == nil {
		n.logger.Warn("parse content failed",
			slog.String("message_id", messageID),
			slog.String("message_type", messageType),
			slog.Any("error", err),
		)
		return NormalizedContent{Text: content}
	}

	switch messageType {
	case larkim.MsgTypeText:
		return NormalizedContent{Text: stringValue(parsed["text"])}
	case larkim.MsgTypeImage:
		out := NormalizedContent{}
		if key := stringValue(parsed["image_key"]); key != "" {
			out.Images = n.download(ctx, out.Images, key, messageID)
		}
		return out
	case larkim.MsgTypePost:
		return n.normalizePost(ctx, parsed, messageID)
	case larkim.MsgTypeFile:
		return NormalizedContent{Text: fmt.Sprintf("[file: %s]", orDefault(stringValue(parsed["file_name"]), "attachment"))}
	case larkim.MsgTypeAudio:
		return NormalizedContent{Text: "[voice message]"}
	case larkim.MsgTypeMedia:
		return NormalizedContent{Text: fmt.Sprintf("[video: %s]", orDefault(stringValue(parsed["file_name"]), "video"))}
	case msgTypeSticker:
		return NormalizedContent{Text: "[sticker]"}
	case msgTypeShareChat, msgTypeShareUser:
		return NormalizedContent{Text: "[shared content]"}
	default:
		return NormalizedContent{Text: fmt.Sprintf("[%s message]", messageType)}
	}
}

// normalizePost flattens the run matrix of a post. Text runs are joined with
// no separator; img runs are downloaded in order.
func (n *ContentNormalizer) normalizePost(ctx context.Context, parsed map[string]any, messageID string) NormalizedContent {
	var (
		text   strings.Builder
		images []string
	)
	lines, _ := parsed["content"].([]any)
	for _, rawLine := range lines {
		var line []any
		switch v := rawLine.(type) {
		case []any:
			line = v
		case map[string]any:
			// a bare run outside any line
			line = []any{v}
		default:
			continue
		}
		for _, rawPart := range line {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			switch stringValue(part["tag"]) {
			case "text":
				text.WriteString(stringValue(part["text"]))
			case "img":
				if key := stringValue(part["image_key"]); key != "" {
					images = n.download(ctx, images, key, messageID)
				}
			}
		}
	}
	out := NormalizedContent{Text: text.String(), Images: images}
	if out.Text == "" {
		out.Text = stringValue(parsed["title"])
	}
	return out
}

func (n *ContentNormalizer) download(ctx context.Context, images []string, key, messageID string) []string {
	if n.media == nil {
		return images
	}
	n.logger.Info("received image", slog.String("message_id", messageID), slog.String("image_key", key))
	if path, ok := n.media.Download(ctx, key, messageID); ok {
		images = append(images, path)
	}
	return images
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func stringValue(raw any) string {
	if raw == nil {
		return ""
	}
	value, ok := raw.(string)
	if ok {
		return value
	}
	return fmt.Sprint(raw)
}
