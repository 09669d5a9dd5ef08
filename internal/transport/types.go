// Package transport defines the chat-platform boundary: inbound updates and
// outbound text. The telegram adapter is the only implementation.
package transport

import (
	"context"
	"errors"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

const (
	ParseModeHTML = "HTML"
	ParseModeNone = ""
)

var (
	// ErrRecipientUnreachable means the user blocked the bot or the chat is gone.
	ErrRecipientUnreachable = errors.New("recipient unreachable")
)

// FloodError is returned when the platform asks the sender to slow down.
type FloodError struct {
	RetryAfter time.Duration
}

func (e *FloodError) Error() string { return "flood control: retry after " + e.RetryAfter.String() }

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkup is adapter-specific (telegram: *telebot.ReplyMarkup).
	ReplyMarkup any
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that expose a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
