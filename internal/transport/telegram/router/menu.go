package router

import (
	"sort"
	"strings"

	kit "stockalert/internal/transport"
)

// menuName reports whether name is a valid Telegram command ([a-z0-9_]{1,32}).
func menuName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

// buildMenu lists the public, visible commands for the client autocomplete.
func buildMenu(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Hidden || c.Access != AccessEveryone || !menuName(c.Name) {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = c.Name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
