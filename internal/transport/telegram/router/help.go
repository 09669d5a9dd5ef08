package router

import (
	"sort"
	"strings"

	"stockalert/pkg/tgui"
)

// helpText renders the command list, or one command's detail, as HTML.
func (m *CommandManager) helpText(args []string, admin bool) string {
	m.mu.RLock()
	byName, alias := m.byName, m.alias
	m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c, ok := byName[name]
		if !ok {
			c, ok = alias[name]
		}
		if !ok || (c.Access == AccessAdmin && !admin) {
			return "❓ <b>Unknown command</b>\nType <code>/help</code> for the list."
		}
		return commandDetail(c)
	}

	names := make([]string, 0, len(byName))
	for n, c := range byName {
		if c.Hidden || (c.Access == AccessAdmin && !admin) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;cmd&gt;</code> for details.", ""}
	for _, n := range names {
		c := byName[n]
		line := "/" + tgui.Esc(n).String()
		if c.Description != "" {
			line += " - " + tgui.Esc(c.Description).String()
		}
		if c.Access == AccessAdmin {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func commandDetail(c Command) string {
	lines := []string{tgui.B("/" + c.Name).String()}
	if c.Description != "" {
		lines = append(lines, tgui.Esc(c.Description).String())
	}
	if c.Usage != "" {
		lines = append(lines, "", "Usage: "+tgui.Code(c.Usage).String())
	}
	if len(c.Aliases) > 0 {
		al := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			al = append(al, "/"+a)
		}
		lines = append(lines, "Aliases: "+tgui.Esc(strings.Join(al, ", ")).String())
	}
	return strings.Join(lines, "\n")
}
