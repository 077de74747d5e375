// Package chat abstracts the chat-vendor API consumed by built-in actions.
package chat

import (
	"context"
	"log/slog"
	"time"
)

// Message is the input for SendMessage.
type Message struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup any
}

// Restriction is the input for RestrictMember.
type Restriction struct {
	ChatID      int64
	UserID      int64
	Until       time.Time
	Permissions map[string]bool
}

// Client is the outbound chat-vendor surface. Implementations must honor
// the context deadline on every call.
type Client interface {
	// SendMessage delivers a message and returns vendor response fields
	// (message_id at minimum).
	SendMessage(ctx context.Context, botToken string, msg Message) (map[string]any, error)

	// RestrictMember limits a group member's permissions until the given
	// time.
	RestrictMember(ctx context.Context, botToken string, r Restriction) error
}

// NopClient logs outbound calls instead of performing them. It backs local
// runs and tests where no vendor credentials exist.
type NopClient struct {
	log *slog.Logger
}

func NewNopClient(log *slog.Logger) *NopClient {
	return &NopClient{log: log.With("component", "chat_nop")}
}

func (c *NopClient) SendMessage(_ context.Context, _ string, msg Message) (map[string]any, error) {
	c.log.Info("send_message (nop)", "chat_id", msg.ChatID, "text_len", len(msg.Text))
	return map[string]any{"message_id": int64(0), "chat_id": msg.ChatID}, nil
}

func (c *NopClient) RestrictMember(_ context.Context, _ string, r Restriction) error {
	c.log.Info("restrict_member (nop)", "chat_id", r.ChatID, "user_id", r.UserID, "until", r.Until)
	return nil
}
