// Package bot holds the Telegram commands and inline callbacks. Every
// mutation goes through alert.Service and is written to the audit log.
package bot

import (
	"context"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/storage"
	"stockalert/internal/transport/telegram/router"
	logx "stockalert/pkg/logx"
)

const (
	cbPrefix   = "alert"
	menuPrefix = "menu"
	pageSize   = 20
)

type Bot struct {
	svc *alert.Service
	log logx.Logger
	now func() time.Time
}

func New(svc *alert.Service, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{svc: svc, log: log.With(logx.Component("bot")), now: time.Now}
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "welcome and menu", Handle: b.cmdStart},
		{Name: "menu", Description: "show interactive menu", Handle: b.cmdMenu},
		{
			Name:        "watch",
			Description: "track symbols",
			Usage:       "/watch SYMBOL [SYMBOL ...]",
			Handle:      b.cmdWatch,
		},
		{
			Name:        "unwatch",
			Description: "stop tracking symbols",
			Usage:       "/unwatch SYMBOL [SYMBOL ...]",
			Handle:      b.cmdUnwatch,
		},
		{
			Name:        "list",
			Aliases:     []string{"subscriptionlist"},
			Description: "list subscriptions",
			Usage:       "/list",
			Handle:      b.cmdList,
		},
		{
			Name:        "broadcast",
			Description: "receive every announcement",
			Usage:       "/broadcast [on|off]",
			Handle:      b.cmdBroadcast,
		},
		{
			Name:        "pricealert",
			Description: "set a one-shot price alert",
			Usage:       "/pricealert SYMBOL > 123.45",
			Handle:      b.cmdPriceAlert,
		},
		{
			Name:        "indicatoralert",
			Description: "set a one-shot RSI alert",
			Usage:       "/indicatoralert SYMBOL < 30",
			Handle:      b.cmdIndicatorAlert,
		},
		{
			Name:        "alerts",
			Aliases:     []string{"view_price_alerts"},
			Description: "view and remove your alerts",
			Usage:       "/alerts",
			Handle:      b.cmdAlerts,
		},
		{Name: "alertslist", Description: "today's filing and news alerts", Handle: b.cmdToday},
		{Name: "digest", Description: "send today's digest now", Handle: b.cmdDigest},
		{Name: "status", Description: "feed status", Access: router.AccessAdmin, Handle: b.cmdStatus},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: cbPrefix, Action: "rm", Handle: b.cbRemove},
		{Prefix: cbPrefix, Action: "done", Handle: b.cbDone},
		{Prefix: cbPrefix, Action: "list", Handle: b.cbListPage},
		{Prefix: menuPrefix, Action: "go", Handle: b.cbMenu},
	}
}

// audit records a mutating command. TookMS is measured from start.
func (b *Bot) audit(ctx context.Context, req *router.Request, action, target string, start time.Time, err error) {
	e := storage.AuditEntry{
		At:      b.now(),
		ActorID: req.FromID,
		ChatID:  req.Chat.ChatID,
		Action:  action,
		Target:  target,
		TookMS:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	b.svc.Audit(ctx, e)
}
