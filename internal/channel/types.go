// Package channel defines the contracts between a chat-platform adapter and
// the agent side: route resolution, inbound context, and reply delivery.
package channel

import (
	"context"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "lark").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// ChatType is the conversation kind used for routing.
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// RouteQuery is what the adapter knows about an inbound message when asking
// for an agent route.
type RouteQuery struct {
	Channel   ChannelType `json:"channel"`
	AccountID string      `json:"account_id"`
	ChatType  ChatType    `json:"chat_type"`
	ChatID    string      `json:"chat_id"`
	SenderID  string      `json:"sender_id"`
}

// RouteDecision names the agent and session that handle a conversation.
type RouteDecision struct {
	SessionKey string `json:"session_key"`
	AgentID    string `json:"agent_id"`
	AccountID  string `json:"account_id"`
}

// RouteResolver maps a query to a route. A nil decision with a nil error
// means no agent is configured for the conversation.
type RouteResolver interface {
	ResolveAgentRoute(ctx context.Context, query RouteQuery) (*RouteDecision, error)
}

// AttachmentType classifies a local attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
)

// Attachment is a locally cached file handed to the agent.
type Attachment struct {
	Path string         `json:"path"`
	Type AttachmentType `json:"type"`
}

// InboundContext is the normalized, platform-independent view of one
// inbound message.
type InboundContext struct {
	Body               string       `json:"body"`
	RawBody            string       `json:"raw_body"`
	CommandBody        string       `json:"command_body"`
	From               string       `json:"from"`
	To                 string       `json:"to"`
	SessionKey         string       `json:"session_key"`
	AccountID          string       `json:"account_id"`
	ChatType           ChatType     `json:"chat_type"`
	GroupSubject       string       `json:"group_subject,omitempty"`
	SenderName         string       `json:"sender_name"`
	SenderID           string       `json:"sender_id"`
	Provider           string       `json:"provider"`
	Surface            string       `json:"surface"`
	MessageSid         string       `json:"message_sid"`
	Timestamp          int64        `json:"timestamp"`
	WasMentioned       bool         `json:"was_mentioned"`
	CommandAuthorized  bool         `json:"command_authorized"`
	OriginatingChannel string       `json:"originating_channel"`
	OriginatingTo      string       `json:"originating_to"`
	Attachments        []Attachment `json:"attachments,omitempty"`
}

// ReceivedAt returns Timestamp as a time value.
func (c InboundContext) ReceivedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Address builds the namespaced identifier used in From/To:
// channel:accountId:entityId.
func Address(channel ChannelType, accountID, entityID string) string {
	return strings.Join([]string{channel.String(), accountID, entityID}, ":")
}

// ReplyBlock is one unit of agent output. Media fields are checked before
// text fields; within each group the first non-empty field wins.
type ReplyBlock struct {
	MediaURL string `json:"mediaUrl,omitempty"`
	Media    string `json:"media,omitempty"`
	Image    string `json:"image,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Text     string `json:"text,omitempty"`
}

// MediaPath returns the local media path carried by the block, if any.
func (b ReplyBlock) MediaPath() string {
	return firstNonEmpty(b.MediaURL, b.Media, b.Image)
}

// ReplyText returns the block's text without trimming.
func (b ReplyBlock) ReplyText() string {
	return firstNonEmpty(b.Markdown, b.Text)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// QueuedCounts reports buffered output in a ReplySink.
type QueuedCounts struct {
	Blocks int `json:"blocks"`
	Chars  int `json:"chars"`
}

// ReplySink delivers agent output back to the originating chat.
type ReplySink interface {
	SendBlockReply(ctx context.Context, block ReplyBlock) error
	SendFinalReply(ctx context.Context, block ReplyBlock) error
	WaitForIdle(ctx context.Context) error
	QueuedCounts() QueuedCounts
}

// ReplyOptions selects the agent that should answer.
type ReplyOptions struct {
	AgentID   string      `json:"agent_id"`
	Channel   ChannelType `json:"channel"`
	AccountID string      `json:"account_id"`
}

// ReplyDispatcher runs the agent for an inbound context. It calls
// sink.SendBlockReply zero or more times and sink.SendFinalReply at most
// once, in call order.
type ReplyDispatcher interface {
	DispatchReply(ctx context.Context, inbound InboundContext, sink ReplySink, opts ReplyOptions) error
}
