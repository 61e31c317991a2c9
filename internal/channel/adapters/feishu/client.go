package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// platformClient is the subset of the Lark open API this gateway uses.
type platformClient interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) error
	UploadImage(ctx context.Context, image io.Reader) (string, error)
	DownloadResource(ctx context.Context, messageID, fileKey, resourceType string) (io.Reader, error)
}

type messageCreateAPI interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

type imageCreateAPI interface {
	Create(ctx context.Context, req *larkim.CreateImageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateImageResp, error)
}

type messageResourceAPI interface {
	Get(ctx context.Context, req *larkim.GetMessageResourceReq, options ...larkcore.RequestOptionFunc) (*larkim.GetMessageResourceResp, error)
}

// Client sends messages and moves images through the Lark im/v1 API.
type Client struct {
	logger    *slog.Logger
	accountID string
	messages  messageCreateAPI
	images    imageCreateAPI
	resources messageResourceAPI
	newUUID   func() string
}

// NewClient creates an SDK-backed client for account.
func NewClient(log *slog.Logger, account Account) *Client {
	if log == nil {
		log = slog.Default()
	}
	sdk := lark.NewClient(account.AppID, account.AppSecret,
		lark.WithOpenBaseUrl(account.openBaseURL()),
		lark.WithLogger(newSDKLogger(log)),
	)
	return &Client{
		logger:    log.With(slog.String("component", "lark_client")),
		accountID: account.AccountID,
		messages:  sdk.Im.V1.Message,
		images:    sdk.Im.V1.Image,
		resources: sdk.Im.V1.MessageResource,
		newUUID:   uuid.NewString,
	}
}

// SendMessage creates a message of msgType with a JSON content string.
func (c *Client) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) error {
	if strings.TrimSpace(receiveID) == "" {
		return fmt.Errorf("lark receive id is required")
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(messageBody(receiveID, msgType, content, c.newUUID())).
		Build()
	resp, err := c.messages.Create(ctx, req)
	if err != nil {
		c.logger.Error("send failed", slog.String("account_id", c.accountID), slog.Any("error", err))
		return err
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		c.logger.Error("send failed", slog.String("account_id", c.accountID), slog.Int("code", code), slog.String("msg", msg))
		return fmt.Errorf("lark send failed: %s (code: %d)", msg, code)
	}
	c.logger.Debug("send success", slog.String("account_id", c.accountID), slog.String("msg_type", msgType))
	return nil
}

// UploadImage uploads image for use in a message and returns its image_key.
func (c *Client) UploadImage(ctx context.Context, image io.Reader) (string, error) {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(image).
			Build()).
		Build()
	resp, err := c.images.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		return "", fmt.Errorf("upload image: %s (code: %d)", msg, code)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil || strings.TrimSpace(*resp.Data.ImageKey) == "" {
		return "", fmt.Errorf("upload image: empty image key")
	}
	return strings.TrimSpace(*resp.Data.ImageKey), nil
}

// DownloadResource fetches a resource attached to a user-sent message.
func (c *Client) DownloadResource(ctx context.Context, messageID, fileKey, resourceType string) (io.Reader, error) {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(fileKey).
		Type(resourceType).
		Build()
	resp, err := c.resources.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("download lark resource: %w", err)
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		return nil, fmt.Errorf("download lark resource: %s (code: %d)", msg, code)
	}
	if resp.File == nil {
		return nil, fmt.Errorf("download lark resource: empty payload")
	}
	return resp.File, nil
}

// messageBody builds the create-message payload. The uuid makes a retried
// send idempotent on the Lark side.
func messageBody(receiveID, msgType, content, id string) *larkim.CreateMessageReqBody {
	return larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(receiveID).
		MsgType(msgType).
		Content(content).
		Uuid(id).
		Build()
}

func textContent(text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal text content: %w", err)
	}
	return string(payload), nil
}

func imageContent(imageKey string) (string, error) {
	payload, err := json.Marshal(map[string]string{"image_key": imageKey})
	if err != nil {
		return "", fmt.Errorf("marshal image content: %w", err)
	}
	return string(payload), nil
}
