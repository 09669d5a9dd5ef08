package alert

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockalert/internal/feed"
	"stockalert/internal/storage"
	"stockalert/pkg/tgui"
)

// FormatAnnouncement renders a filing or news notification as HTML.
func FormatAnnouncement(symbol string, a feed.Announcement) string {
	head := tgui.H("🔔 " + tgui.B(symbol).String())
	if symbol == "" {
		head = "🔔 News"
	}
	var link tgui.H
	if a.Link != "" {
		link = tgui.Link("source", a.Link)
	}
	return tgui.Lines(head, tgui.Esc(tgui.OneLine(a.Headline)), link).String()
}

// FormatThreshold renders a fired threshold alert as plain text.
func FormatThreshold(a storage.ThresholdAlert, value decimal.Decimal) string {
	prefix := "💲 Price alert"
	if a.Kind == string(feed.KindIndicator) {
		prefix = "📈 RSI alert"
	}
	return prefix + ": " + a.Symbol + " is " + value.StringFixed(2) + " " + a.Comparison + " " + a.Threshold.String()
}

// FormatDigest renders one user's records for day. records must be non-empty.
func FormatDigest(day time.Time, records []storage.DeliveryRecord) string {
	var b strings.Builder
	b.WriteString("📰 Daily digest (")
	b.WriteString(day.Format("2006-01-02"))
	b.WriteString(")")
	for _, r := range records {
		b.WriteString("\n• ")
		b.WriteString(tgui.B(r.Symbol).String())
		b.WriteString(" ")
		b.WriteString(tgui.Esc(tgui.OneLine(r.Headline)).String())
	}
	return b.String()
}

// DescribeAlert is the one-line form used in alert listings.
func DescribeAlert(a storage.ThresholdAlert) string {
	label := "price"
	if a.Kind == string(feed.KindIndicator) {
		label = "RSI"
	}
	return a.Symbol + " " + label + " " + a.Comparison + " " + a.Threshold.String()
}
