package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"stockalert/internal/transport/telegram/router"
	kit "stockalert/internal/transport"
	"stockalert/pkg/tgui"
)

func (b *Bot) cmdWatch(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: /watch SYMBOL [SYMBOL ...]", nil)
	}
	start := time.Now()
	added, existing, invalid, err := b.svc.Subscribe(ctx, req.FromID, req.Args...)
	b.audit(ctx, req, "watch", strings.Join(req.Args, " "), start, err)
	if err != nil {
		_ = req.Reply(ctx, "Could not save subscriptions, try again later.", nil)
		return err
	}

	var lines []string
	if len(added) > 0 {
		lines = append(lines, "Tracking: "+strings.Join(added, " "))
	}
	if len(existing) > 0 {
		lines = append(lines, "Already tracking: "+strings.Join(existing, " "))
	}
	if len(invalid) > 0 {
		lines = append(lines, "Invalid symbols: "+strings.Join(invalid, " "))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdUnwatch(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: /unwatch SYMBOL [SYMBOL ...]", nil)
	}
	start := time.Now()
	removed, missing, err := b.svc.Unsubscribe(ctx, req.FromID, req.Args...)
	b.audit(ctx, req, "unwatch", strings.Join(req.Args, " "), start, err)
	if err != nil {
		_ = req.Reply(ctx, "Could not update subscriptions, try again later.", nil)
		return err
	}

	var lines []string
	if len(removed) > 0 {
		lines = append(lines, "Stopped: "+strings.Join(removed, " "))
	}
	if len(missing) > 0 {
		lines = append(lines, "Not tracked: "+strings.Join(missing, " "))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdBroadcast(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		state := "off"
		if b.svc.Broadcasting(req.FromID) {
			state = "on"
		}
		return req.Reply(ctx, "Broadcast is "+state+". Usage: /broadcast on|off", nil)
	}

	var on bool
	switch strings.ToLower(req.Args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return req.Reply(ctx, "Usage: /broadcast on|off", nil)
	}
	start := time.Now()
	_, err := b.svc.SetBroadcast(ctx, req.FromID, on)
	b.audit(ctx, req, "broadcast", strings.ToLower(req.Args[0]), start, err)
	if err != nil {
		_ = req.Reply(ctx, "Could not save the setting, try again later.", nil)
		return err
	}
	if on {
		return req.Reply(ctx, "You will receive every announcement.", nil)
	}
	return req.Reply(ctx, "Broadcast off. Only tracked symbols are sent.", nil)
}

func (b *Bot) cmdList(ctx context.Context, req *router.Request) error {
	text, opt := b.renderList(req.FromID, 0)
	return req.Reply(ctx, text, opt)
}

func (b *Bot) cbListPage(ctx context.Context, req *router.Request, payload string) error {
	page, err := strconv.Atoi(payload)
	if err != nil {
		page = 0
	}
	text, opt := b.renderList(req.FromID, page)
	return req.Adapter.EditText(ctx, kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.MessageID}, text, opt)
}

// renderList builds one page of the caller's subscriptions with prev/next buttons.
func (b *Bot) renderList(userID int64, page int) (string, *kit.SendOptions) {
	syms := b.svc.ListSubscriptions(userID)
	if len(syms) == 0 {
		return "Subscriptions:\n(none)", nil
	}
	pg := tgui.Paginate(syms, page, pageSize)
	text := "Subscriptions:\n" + strings.Join(pg.Items, "\n")
	if pg.Pages() == 1 {
		return text, nil
	}

	text += "\n\n" + pg.Label()
	var nav []tgui.Button
	if pg.HasPrev() {
		nav = append(nav, tgui.Btn("◀ Prev", tgui.Data(cbPrefix, "list", strconv.Itoa(pg.Index-1))))
	}
	if pg.HasNext() {
		nav = append(nav, tgui.Btn("Next ▶", tgui.Data(cbPrefix, "list", strconv.Itoa(pg.Index+1))))
	}
	return text, &kit.SendOptions{ReplyMarkup: tgui.NewInline().Row(nav...).Markup()}
}
