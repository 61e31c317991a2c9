package feishu

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/memohai/larkhook/internal/media"
)

const resourceTypeImage = "image"

// cacheFileName names a downloaded resource. Every download gets a .png
// suffix regardless of the real image format.
func cacheFileName(messageID, mediaKey string) string {
	return messageID + "_" + mediaKey + ".png"
}

// MediaTransfer moves images between Lark and the local cache. Failures are
// logged and reported as ok=false; they never abort message handling.
type MediaTransfer struct {
	logger   *slog.Logger
	client   platformClient
	cache    *media.Cache
	maxBytes int64
}

// NewMediaTransfer creates a transfer backed by client and cache.
func NewMediaTransfer(log *slog.Logger, client platformClient, cache *media.Cache) *MediaTransfer {
	if log == nil {
		log = slog.Default()
	}
	return &MediaTransfer{
		logger:   log.With(slog.String("component", "lark_media")),
		client:   client,
		cache:    cache,
		maxBytes: media.MaxAssetBytes,
	}
}

// Download fetches the image resource mediaKey of messageID into the cache
// and returns its local path.
func (m *MediaTransfer) Download(ctx context.Context, mediaKey, messageID string) (string, bool) {
	mediaKey = strings.TrimSpace(mediaKey)
	messageID = strings.TrimSpace(messageID)
	if mediaKey == "" || messageID == "" {
		return "", false
	}
	reader, err := m.client.DownloadResource(ctx, messageID, mediaKey, resourceTypeImage)
	if err != nil {
		m.logger.Warn("download image failed",
			slog.String("message_id", messageID),
			slog.String("image_key", mediaKey),
			slog.Any("error", err),
		)
		return "", false
	}
	if closer, ok := reader.(interface{ Close() error }); ok {
		defer func() {
			_ = closer.Close()
		}()
	}
	path, err := m.cache.Put(cacheFileName(messageID, mediaKey), reader, m.maxBytes)
	if err != nil {
		m.logger.Warn("store image failed",
			slog.String("message_id", messageID),
			slog.String("image_key", mediaKey),
			slog.Any("error", err),
		)
		return "", false
	}
	m.logger.Debug("image downloaded", slog.String("message_id", messageID), slog.String("path", path))
	return path, true
}

// Upload sends the local file at path to Lark and returns its image_key.
func (m *MediaTransfer) Upload(ctx context.Context, path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Warn("open image failed", slog.String("path", path), slog.Any("error", err))
		return "", false
	}
	defer func() {
		_ = f.Close()
	}()
	key, err := m.client.UploadImage(ctx, f)
	if err != nil {
		m.logger.Warn("upload image failed", slog.String("path", path), slog.Any("error", err))
		return "", false
	}
	return key, true
}
