package router

import (
	"context"
	"time"

	kit "stockalert/internal/transport"
	logx "stockalert/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

type HandlerFunc func(ctx context.Context, req *Request) error

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// Command is one slash command. Name and Aliases are matched without the
// leading slash.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routed but left out of help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// CallbackRoute handles inline button data "<Prefix>:<Action>:<payload>".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Username string
	Command  string
	Args     []string
	Payload  string
	ReqID    string

	// MessageID is the message that carried the callback button, if any.
	MessageID int

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the requesting chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}
