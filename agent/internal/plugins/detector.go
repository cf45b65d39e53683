// Package plugins implements the four-method plugin detection cascade:
// command-tree inspection, tab-completion probing, the /plugins command,
// and /bukkit:plugins, stopping at the first method that yields a
// non-empty set.
package plugins

import (
	"context"
	"strings"

	"reconmc/agent/internal/botproto"
	"reconmc/shared/types"
)

// TabCompleteFunc requests tab-completion suggestions for the given
// partial command text.
type TabCompleteFunc func(ctx context.Context, text string) ([]string, error)

// ChatCommandFunc sends a chat command and returns whatever chat line(s)
// the server replied with, concatenated, within a bounded wait window.
type ChatCommandFunc func(ctx context.Context, command string) (string, error)

// tabPhase enumerates the fixed probe sequence tab-completion walks
// through. Modeled as an explicit state machine rather than an
// event-listener callback chain: each phase is a distinct string.
type tabPhase int

const (
	phaseRoot tabPhase = iota
	phaseVersion
	phasePlugins
	phaseBukkit
	phaseDone
)

func (p tabPhase) prefix() string {
	switch p {
	case phaseRoot:
		return "/"
	case phaseVersion:
		return "/version"
	case phasePlugins:
		return "/plugins"
	case phaseBukkit:
		return "/bukkit:"
	default:
		return ""
	}
}

func (p tabPhase) next() tabPhase {
	if p >= phaseBukkit {
		return phaseDone
	}
	return p + 1
}

// Detect runs the cascade and returns the first non-empty result. nodes is
// the already-parsed declare_commands literal node set (possibly nil, if
// the server never sent one).
func Detect(ctx context.Context, nodes []botproto.CommandNode, tabComplete TabCompleteFunc, chatCommand ChatCommandFunc) (*types.PluginResult, error) {
	if plugins := fromCommandTree(nodes); len(plugins) > 0 {
		return &types.PluginResult{Method: "command_tree", Plugins: plugins}, nil
	}

	if tabComplete != nil {
		plugins, combined, err := fromTabComplete(ctx, tabComplete)
		if err == nil && len(plugins) > 0 {
			method := "tab_complete"
			if combined {
				method = "combined"
			}
			return &types.PluginResult{Method: method, Plugins: plugins}, nil
		}
	}

	if chatCommand != nil {
		if out, err := chatCommand(ctx, "/plugins"); err == nil {
			if plugins := parsePluginsLine(out); len(plugins) > 0 {
				return &types.PluginResult{Method: "plugins_command", Plugins: plugins}, nil
			}
		}
		if out, err := chatCommand(ctx, "/bukkit:plugins"); err == nil {
			if plugins := parsePluginsLine(out); len(plugins) > 0 {
				return &types.PluginResult{Method: "bukkit_plugins_command", Plugins: plugins}, nil
			}
		}
	}

	return &types.PluginResult{Method: "none", Plugins: nil}, nil
}

// fromCommandTree applies the extraction rule from the declare_commands
// walk: a "<plugin>:<command>" node names its plugin directly; any other
// literal node is looked up in the static signature table.
func fromCommandTree(nodes []botproto.CommandNode) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range botproto.ExtractPluginIDs(nodes) {
		add(id)
	}
	for _, n := range nodes {
		if !n.Literal {
			continue
		}
		if id, ok := signatureTable[strings.ToLower(n.Name)]; ok {
			add(id)
		}
	}
	return out
}

// fromTabComplete walks the fixed phase list, mapping any suggested
// command word through the signature table. combined reports whether the
// result required more than just the root ("/") phase.
func fromTabComplete(ctx context.Context, tabComplete TabCompleteFunc) ([]string, bool, error) {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	phase := phaseRoot
	rootOnly := true
	for phase != phaseDone {
		suggestions, err := tabComplete(ctx, phase.prefix())
		if err == nil {
			for _, s := range suggestions {
				word := strings.TrimPrefix(strings.TrimPrefix(s, "/"), phase.prefix())
				word = strings.ToLower(strings.TrimPrefix(word, "bukkit:"))
				if id, ok := signatureTable[word]; ok {
					add(id)
				}
			}
		}
		if phase != phaseRoot && len(out) > 0 {
			rootOnly = false
		}
		if phase == phaseRoot && len(out) > 0 {
			return out, false, nil
		}
		phase = phase.next()
	}

	if len(out) == 0 {
		return nil, false, nil
	}
	return out, !rootOnly, nil
}

// parsePluginsLine parses the classic Bukkit "Plugins (N): A, B, C" chat
// line format, tolerating ANSI/formatting noise around the list by only
// trusting the substring after the colon.
func parsePluginsLine(text string) []string {
	idx := strings.Index(text, "Plugins (")
	if idx == -1 {
		return nil
	}
	colon := strings.Index(text[idx:], ":")
	if colon == -1 {
		return nil
	}
	rest := text[idx+colon+1:]
	if nl := strings.IndexAny(rest, "\n\r"); nl != -1 {
		rest = rest[:nl]
	}

	parts := strings.Split(rest, ",")
	var out []string
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
