package bot

import (
	"context"

	kit "stockalert/internal/transport"
	"stockalert/internal/transport/telegram/router"
	"stockalert/pkg/tgui"
)

var menuItems = []struct{ label, action string }{
	{"➕ Watch", "watch"},
	{"➖ Unwatch", "unwatch"},
	{"📋 Subscriptions", "list"},
	{"💲 Price Alert", "price"},
	{"📈 RSI Alert", "rsi"},
	{"🔍 View Alerts", "alerts"},
	{"🔔 Alerts Today", "today"},
	{"📨 Digest Now", "digest"},
	{"❓ Help", "help"},
}

func menuMarkup() *kit.SendOptions {
	btns := make([]tgui.Button, 0, len(menuItems))
	for _, it := range menuItems {
		btns = append(btns, tgui.Btn(it.label, tgui.Data(menuPrefix, "go", it.action)))
	}
	return &kit.SendOptions{ReplyMarkup: tgui.NewInline().Grid(2, btns...).Markup()}
}

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	text := "👋 Stock alert bot\n" +
		"Watch NSE symbols to get their corporate filings and news as they appear, " +
		"set one-shot price or RSI alerts, and get a daily digest.\n\nChoose an action:"
	return req.Reply(ctx, text, menuMarkup())
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, "Choose an action:", menuMarkup())
}

func (b *Bot) cbMenu(ctx context.Context, req *router.Request, action string) error {
	edit := func(text string) error {
		return req.Adapter.EditText(ctx, kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.MessageID}, text, nil)
	}
	switch action {
	case "watch":
		return edit("Use /watch SYMBOL [SYMBOL ...]")
	case "unwatch":
		return edit("Use /unwatch SYMBOL [SYMBOL ...]")
	case "price":
		return edit("Use /pricealert SYMBOL > 123.45")
	case "rsi":
		return edit("Use /indicatoralert SYMBOL < 30")
	case "list":
		return b.cmdList(ctx, req)
	case "alerts":
		return b.cmdAlerts(ctx, req)
	case "today":
		return b.cmdToday(ctx, req)
	case "digest":
		return b.cmdDigest(ctx, req)
	case "help":
		return req.Reply(ctx, b.helpSummary(), nil)
	}
	return nil
}
