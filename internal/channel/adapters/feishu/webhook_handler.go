package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
)

const (
	webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

	eventTypeMessageReceive = "im.message.receive_v1"
)

type messageHandler interface {
	HandleMessage(ctx context.Context, ev InboundEvent) error
}

type callbackHeader struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Token     string `json:"token"`
}

// callbackBody covers the plain, encrypted and challenge callback shapes.
// Type, Challenge and Token are loosely typed so that odd senders are
// answered instead of rejected; the challenge is echoed back untouched.
type callbackBody struct {
	Encrypt   string          `json:"encrypt"`
	Type      any             `json:"type"`
	Challenge any             `json:"challenge"`
	Token     any             `json:"token"`
	Header    *callbackHeader `json:"header"`
	Event     json.RawMessage `json:"event"`
}

func (b callbackBody) isChallenge() bool {
	return larkevent.ReqType(stringValue(b.Type)) == larkevent.ReqTypeChallenge
}

func (b callbackBody) isEvent() bool {
	return b.Header != nil && len(b.Event) > 0 && string(b.Event) != "null"
}

// WebhookHandler receives Lark/Feishu event-subscription callbacks and acks
// message events before they are processed.
type WebhookHandler struct {
	logger  *slog.Logger
	account Account
	handler messageHandler
	wg      sync.WaitGroup
}

// NewWebhookHandler creates the callback endpoint for account.
func NewWebhookHandler(log *slog.Logger, account Account, handler messageHandler) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "lark_webhook"), slog.String("account_id", account.AccountID)),
		account: account,
		handler: handler,
	}
}

// Register serves every path with the callback handler.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.Any("/", h.Handle)
	e.Any("/*", h.Handle)
}

// Wait blocks until all in-flight message handling has finished.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}

// Handle processes one callback request.
func (h *WebhookHandler) Handle(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("webhook handler panic", slog.Any("panic", r))
			err = internalError(c)
		}
	}()

	if c.Request().Method != http.MethodPost {
		return c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		h.logger.Warn("read body failed", slog.Any("error", err))
		return internalError(c)
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}

	body, err := h.decodeBody(payload)
	if err != nil {
		h.logger.Error("decode callback failed", slog.Any("error", err))
		return internalError(c)
	}

	if err := h.validateToken(body); err != nil {
		return err
	}

	if body.isChallenge() {
		h.logger.Info("url verification received")
		return c.JSON(http.StatusOK, map[string]any{"challenge": body.Challenge})
	}

	if body.isEvent() {
		if body.Header.EventType == eventTypeMessageReceive {
			h.dispatch(c.Request().Context(), body.Header.EventID, body.Event)
		} else {
			h.logger.Debug("ignore event", slog.String("event_type", body.Header.EventType))
		}
		return c.JSON(http.StatusOK, map[string]int{"code": 0})
	}

	return c.String(http.StatusOK, "OK")
}

func (h *WebhookHandler) decodeBody(payload []byte) (callbackBody, error) {
	var body callbackBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return body, fmt.Errorf("parse body: %w", err)
	}
	if body.Encrypt == "" || h.account.EncryptKey == "" {
		return body, nil
	}
	plain, err := Decrypt(body.Encrypt, h.account.EncryptKey)
	if err != nil {
		return body, err
	}
	var decrypted callbackBody
	if err := json.Unmarshal([]byte(plain), &decrypted); err != nil {
		return body, fmt.Errorf("parse decrypted body: %w", err)
	}
	return decrypted, nil
}

// validateToken checks the verification token of non-challenge callbacks
// when the account has one configured. Schema 2.0 events carry it in the
// header; older callbacks at the top level.
func (h *WebhookHandler) validateToken(body callbackBody) error {
	expected := h.account.VerificationToken
	if expected == "" || body.isChallenge() {
		return nil
	}
	token := strings.TrimSpace(stringValue(body.Token))
	if body.Header != nil && strings.TrimSpace(body.Header.Token) != "" {
		token = strings.TrimSpace(body.Header.Token)
	}
	if token != expected {
		h.logger.Warn("reject callback with invalid token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid verification token")
	}
	return nil
}

// dispatch hands the event to the bridge on its own goroutine, detached from
// the request lifetime. Failures are only logged.
func (h *WebhookHandler) dispatch(reqCtx context.Context, eventID string, raw json.RawMessage) {
	ctx := context.WithoutCancel(reqCtx)
	log := h.logger.With(slog.String("event_id", eventID))
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("message handling panic", slog.Any("panic", r))
			}
		}()
		ev, err := ParseInboundEvent(raw)
		if err != nil {
			log.Error("decode message event failed", slog.Any("error", err))
			return
		}
		if err := h.handler.HandleMessage(ctx, ev); err != nil {
			log.Error("handle message failed", slog.String("message_id", ev.MessageID), slog.Any("error", err))
		}
	}()
}

func internalError(c echo.Context) error {
	return c.String(http.StatusInternalServerError, "Internal Server Error")
}
