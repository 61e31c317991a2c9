// Package agent talks to the external agent gateway that owns routing and
// reply generation.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/larkhook/internal/channel"
	"github.com/memohai/larkhook/internal/media"
)

const (
	eventBlock = "block"
	eventFinal = "final"
	eventError = "error"

	streamDone = "[DONE]"

	// maxResponseBytes caps buffered route decisions and error bodies.
	maxResponseBytes int64 = 1 << 20
)

// Client implements channel.RouteResolver and channel.ReplyDispatcher over
// the gateway HTTP API.
type Client struct {
	logger          *slog.Logger
	baseURL         string
	token           string
	httpClient      *http.Client
	streamingClient *http.Client
}

var (
	_ channel.RouteResolver   = (*Client)(nil)
	_ channel.ReplyDispatcher = (*Client)(nil)
)

// NewClient creates a gateway client. timeout bounds route lookups; reply
// streams are bounded only by the caller's context.
func NewClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:          log.With(slog.String("component", "agent_gateway")),
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:           strings.TrimSpace(token),
		httpClient:      &http.Client{Timeout: timeout},
		streamingClient: &http.Client{},
	}
}

type dispatchRequest struct {
	Context channel.InboundContext `json:"context"`
	Options channel.ReplyOptions   `json:"options"`
}

type streamError struct {
	Message string `json:"message"`
}

// ResolveAgentRoute asks the gateway which agent handles query. A 404 means
// no route and yields a nil decision.
func (c *Client) ResolveAgentRoute(ctx context.Context, query channel.RouteQuery) (*channel.RouteDecision, error) {
	resp, err := c.post(ctx, c.httpClient, "/routes/resolve", query, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	respBody, err := media.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read route response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("route resolve error", slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return nil, fmt.Errorf("agent gateway error: %s", strings.TrimSpace(string(respBody)))
	}
	var decision channel.RouteDecision
	if err := json.Unmarshal(respBody, &decision); err != nil {
		return nil, fmt.Errorf("parse route decision: %w", err)
	}
	return &decision, nil
}

// DispatchReply runs the agent and relays each streamed block to sink in
// order. At most one final reply is delivered.
func (c *Client) DispatchReply(ctx context.Context, inbound channel.InboundContext, sink channel.ReplySink, opts channel.ReplyOptions) error {
	resp, err := c.post(ctx, c.streamingClient, "/dispatch", dispatchRequest{Context: inbound, Options: opts}, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := media.ReadAllWithLimit(resp.Body, maxResponseBytes)
		c.logger.Error("dispatch error", slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(errBody), 300)))
		return fmt.Errorf("agent gateway error: %s", strings.TrimSpace(string(errBody)))
	}

	if err := c.relay(ctx, resp.Body, sink, inbound.MessageSid); err != nil {
		return err
	}
	return sink.WaitForIdle(ctx)
}

func (c *Client) relay(ctx context.Context, body io.Reader, sink channel.ReplySink, messageID string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	currentEvent := ""
	finalSent := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			currentEvent = ""
			continue
		}
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == streamDone {
			return nil
		}
		if data == "" {
			continue
		}

		switch currentEvent {
		case eventBlock, "":
			block, err := decodeBlock(data)
			if err != nil {
				return err
			}
			if err := sink.SendBlockReply(ctx, block); err != nil {
				return fmt.Errorf("send block reply: %w", err)
			}
		case eventFinal:
			if finalSent {
				c.logger.Warn("ignore extra final reply", slog.String("message_id", messageID))
				continue
			}
			block, err := decodeBlock(data)
			if err != nil {
				return err
			}
			finalSent = true
			if err := sink.SendFinalReply(ctx, block); err != nil {
				return fmt.Errorf("send final reply: %w", err)
			}
		case eventError:
			var se streamError
			if err := json.Unmarshal([]byte(data), &se); err != nil || se.Message == "" {
				return fmt.Errorf("agent error: %s", data)
			}
			return fmt.Errorf("agent error: %s", se.Message)
		default:
			c.logger.Debug("ignore stream event", slog.String("event", currentEvent))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read reply stream: %w", err)
	}
	return nil
}

func decodeBlock(data string) (channel.ReplyBlock, error) {
	var block channel.ReplyBlock
	if err := json.Unmarshal([]byte(data), &block); err != nil {
		return block, fmt.Errorf("parse reply block: %w", err)
	}
	return block, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed", slog.String("url", url), slog.Any("error", err))
		return nil, err
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
