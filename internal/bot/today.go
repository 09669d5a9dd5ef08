package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	kit "stockalert/internal/transport"
	"stockalert/internal/transport/telegram/router"
	"stockalert/pkg/tgui"
)

func (b *Bot) cmdToday(ctx context.Context, req *router.Request) error {
	recs, err := b.svc.TodayDeliveries(ctx, req.FromID)
	if err != nil {
		_ = req.Reply(ctx, "Could not load today's alerts, try again later.", nil)
		return err
	}
	if len(recs) == 0 {
		return req.Reply(ctx, "Today's alerts:\n(none)", nil)
	}
	lines := make([]string, 0, len(recs)+1)
	lines = append(lines, "Today's alerts:")
	for _, r := range recs {
		lines = append(lines, r.Symbol+": "+tgui.TruncRunes(tgui.OneLine(r.Headline), 200))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdDigest(ctx context.Context, req *router.Request) error {
	text, ok, err := b.svc.DigestFor(ctx, req.FromID)
	if err != nil {
		_ = req.Reply(ctx, "Could not build the digest, try again later.", nil)
		return err
	}
	if !ok {
		return req.Reply(ctx, "No alerts today.", nil)
	}
	return req.Reply(ctx, text, &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
}

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, b.renderStatus(b.now()), &kit.SendOptions{ParseMode: kit.ParseModeHTML})
}

func (b *Bot) renderStatus(now time.Time) string {
	st := b.svc.Board().Snapshot()
	lines := []string{tgui.B("📊 Feed status").String()}
	if len(st.Sources) == 0 {
		lines = append(lines, "no cycle completed yet")
	}
	for _, r := range st.Sources {
		line := fmt.Sprintf("%s: %s ago • polled %d • fresh %d • sent %d",
			tgui.Code(r.SourceID), now.Sub(r.At).Truncate(time.Second), r.Polled, r.Fresh, r.Delivered)
		if r.Failed > 0 {
			line += fmt.Sprintf(" • failed %d", r.Failed)
		}
		if r.Error != "" {
			line += "\n  ⚠️ " + tgui.Esc(tgui.TruncRunes(r.Error, 160)).String()
		}
		lines = append(lines, line)
	}

	users, syms := b.svc.Index().Counts()
	lines = append(lines, "",
		fmt.Sprintf("Subscribers: %d • symbols: %d", users, syms),
		fmt.Sprintf("Alerts fired: %d • delivery failures: %d", st.AlertsFired, st.DeliveryFailed),
	)
	if st.LastDigest != nil {
		lines = append(lines, fmt.Sprintf("Last digest: %s (%d sent)", st.LastDigest.Day, st.LastDigest.Sent))
	}
	return strings.Join(lines, "\n")
}

// helpSummary is the plain command list used by the menu button.
func (b *Bot) helpSummary() string {
	cmds := b.Commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		u := c.Usage
		if u == "" {
			u = "/" + c.Name
		}
		lines = append(lines, u+" - "+c.Description)
	}
	return strings.Join(lines, "\n")
}
