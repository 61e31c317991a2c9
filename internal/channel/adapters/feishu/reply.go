package feishu

import (
	"context"
	"log/slog"
	"os"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/larkhook/internal/channel"
)

type mediaUploader interface {
	Upload(ctx context.Context, path string) (string, bool)
}

// receiveIDType picks the id namespace for replying into chatID.
func receiveIDType(chatID string) string {
	if strings.HasPrefix(chatID, "oc_") {
		return larkim.ReceiveIdTypeChatId
	}
	return larkim.ReceiveIdTypeOpenId
}

// replySink sends agent output into one chat. It keeps no queue, so every
// block is delivered before SendBlockReply returns.
type replySink struct {
	logger *slog.Logger
	client platformClient
	media  mediaUploader
	chatID string
	idType string
}

var _ channel.ReplySink = (*replySink)(nil)

func newReplySink(log *slog.Logger, client platformClient, media mediaUploader, chatID string) *replySink {
	return &replySink{
		logger: log.With(slog.String("chat_id", chatID)),
		client: client,
		media:  media,
		chatID: chatID,
		idType: receiveIDType(chatID),
	}
}

// SendBlockReply sends an image when the block references an existing local
// file and the upload succeeds; otherwise it sends the block's text, if any.
func (s *replySink) SendBlockReply(ctx context.Context, block channel.ReplyBlock) error {
	if path := block.MediaPath(); path != "" && fileExists(path) {
		if key, ok := s.media.Upload(ctx, path); ok {
			content, err := imageContent(key)
			if err != nil {
				return err
			}
			return s.client.SendMessage(ctx, s.idType, s.chatID, larkim.MsgTypeImage, content)
		}
		s.logger.Warn("image reply upload failed, sending text", slog.String("path", path))
	}

	text := block.ReplyText()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	content, err := textContent(text)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, s.idType, s.chatID, larkim.MsgTypeText, content)
}

// SendFinalReply behaves exactly like SendBlockReply.
func (s *replySink) SendFinalReply(ctx context.Context, block channel.ReplyBlock) error {
	return s.SendBlockReply(ctx, block)
}

func (s *replySink) WaitForIdle(context.Context) error {
	return nil
}

func (s *replySink) QueuedCounts() channel.QueuedCounts {
	return channel.QueuedCounts{}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
