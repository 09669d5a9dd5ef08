package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/feed"
	kit "stockalert/internal/transport"
	"stockalert/internal/transport/telegram/router"
	"stockalert/pkg/tgui"
	logx "stockalert/pkg/logx"
)

func (b *Bot) cmdPriceAlert(ctx context.Context, req *router.Request) error {
	return b.setAlert(ctx, req, feed.KindPrice, "Usage: /pricealert SYMBOL > 123.45")
}

func (b *Bot) cmdIndicatorAlert(ctx context.Context, req *router.Request) error {
	return b.setAlert(ctx, req, feed.KindIndicator, "Usage: /indicatoralert SYMBOL < 30")
}

func (b *Bot) setAlert(ctx context.Context, req *router.Request, kind feed.Kind, usage string) error {
	sym, cmp, raw, ok := splitAlertArgs(req.Args)
	if !ok {
		return req.Reply(ctx, usage, nil)
	}
	thr, err := alert.ParseThreshold(raw)
	if err != nil {
		return req.Reply(ctx, usage, nil)
	}

	start := time.Now()
	a, err := b.svc.SetThresholdAlert(ctx, req.FromID, sym, cmp, thr, string(kind))
	b.audit(ctx, req, string(kind)+"alert", strings.Join(req.Args, " "), start, err)
	switch {
	case errors.Is(err, alert.ErrInvalidSymbol):
		return req.Reply(ctx, "Invalid symbol: "+sym, nil)
	case errors.Is(err, alert.ErrInvalidComparison), errors.Is(err, alert.ErrInvalidThreshold):
		return req.Reply(ctx, usage, nil)
	case err != nil:
		_ = req.Reply(ctx, "Could not save the alert, try again later.", nil)
		return err
	}

	text := "Alert set: " + alert.DescribeAlert(a)
	if !b.svc.HasQuotes() {
		text += "\nQuotes are not configured, so the alert will not be checked yet."
	}
	return req.Reply(ctx, text, nil)
}

// splitAlertArgs accepts "SYM > 12", "SYM >12" and "SYM>12".
func splitAlertArgs(args []string) (sym, cmp, thr string, ok bool) {
	joined := strings.Join(args, "")
	i := strings.IndexAny(joined, "<>")
	if i <= 0 || i == len(joined)-1 {
		if len(args) == 3 {
			return args[0], args[1], args[2], true
		}
		return "", "", "", false
	}
	return joined[:i], joined[i : i+1], joined[i+1:], true
}

func (b *Bot) cmdAlerts(ctx context.Context, req *router.Request) error {
	text, opt, err := b.renderAlerts(ctx, req.FromID)
	if err != nil {
		_ = req.Reply(ctx, "Could not load alerts, try again later.", nil)
		return err
	}
	return req.Reply(ctx, text, opt)
}

func (b *Bot) renderAlerts(ctx context.Context, userID int64) (string, *kit.SendOptions, error) {
	list, err := b.svc.ListThresholdAlerts(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	if len(list) == 0 {
		return "No active alerts.", nil, nil
	}
	kb := tgui.NewInline()
	for _, a := range list {
		kb.Row(tgui.Btn("❌ "+alert.DescribeAlert(a), tgui.Data(cbPrefix, "rm", strconv.FormatInt(a.ID, 10))))
	}
	kb.Row(tgui.Btn("Done", tgui.Data(cbPrefix, "done", "")))
	if err := kb.Err(); err != nil {
		return "", nil, err
	}
	return "Your alerts (tap to remove):", &kit.SendOptions{ReplyMarkup: kb.Markup()}, nil
}

func (b *Bot) cbRemove(ctx context.Context, req *router.Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil
	}
	start := time.Now()
	ok, err := b.svc.RemoveThresholdAlert(ctx, id, req.FromID)
	b.audit(ctx, req, "alert.remove", payload, start, err)
	if err != nil {
		return err
	}
	if !ok {
		b.log.Debug("alert remove ignored", logx.AlertID(id), logx.User(req.FromID))
	}

	text, opt, err := b.renderAlerts(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Adapter.EditText(ctx, kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.MessageID}, text, opt)
}

func (b *Bot) cbDone(ctx context.Context, req *router.Request, _ string) error {
	return req.Adapter.EditText(ctx, kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.MessageID}, "Alert management done.", nil)
}
