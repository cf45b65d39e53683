package botproto

import (
	"bytes"
	"strings"

	"reconmc/agent/internal/slp"
)

// Node flag bits (Commands packet, clientbound).
const (
	nodeTypeMask   = 0x03
	nodeTypeRoot   = 0x00
	nodeTypeLiteral = 0x01
	nodeTypeArgument = 0x02
	nodeFlagHasRedirect    = 0x08
	nodeFlagHasSuggestions = 0x10
)

// parsersWithMinMaxFlag carries a one-byte flag (bit0=has min, bit1=has
// max) followed by those bounds in the parser's native width. These are
// the brigadier numeric parsers; every other known parser in this table
// takes no additional properties.
var parsersWithMinMaxFlag = map[string]int{
	"brigadier:integer": 4,
	"brigadier:long":    8,
	"brigadier:float":   4,
	"brigadier:double":  8,
}

// parsersWithByteFlag take a single flags byte and nothing else.
var parsersWithByteFlag = map[string]bool{
	"minecraft:entity":       true,
	"minecraft:score_holder": true,
}

// CommandNode is one decoded node from the Commands graph, flattened — not
// a tree, since detection only needs the set of literal command names, not
// their parent/child relationships.
type CommandNode struct {
	Name    string
	Literal bool
}

// ParseDeclareCommands decodes the clientbound Commands packet body into
// the flat list of literal node names, which is every top-level command
// and command alias the server advertises. Argument-node properties are
// skipped using a table of the common brigadier/vanilla parsers; an
// unrecognized parser ID stops the walk and returns whatever literal names
// were already collected, rather than risking a misaligned read.
func ParseDeclareCommands(body []byte) ([]CommandNode, error) {
	r := bytes.NewReader(body)

	count, err := slp.DecodeVarInt(r)
	if err != nil {
		return nil, err
	}

	var nodes []CommandNode
	for i := int32(0); i < count; i++ {
		node, ok, err := parseNode(r)
		if err != nil {
			return nodes, err
		}
		if node.Literal {
			nodes = append(nodes, node)
		}
		if !ok {
			break
		}
	}
	return nodes, nil
}

// parseNode reads one node and reports ok=false if it hit an unrecognized
// argument parser and the stream position can no longer be trusted.
func parseNode(r *bytes.Reader) (CommandNode, bool, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return CommandNode{}, false, err
	}

	numChildren, err := slp.DecodeVarInt(r)
	if err != nil {
		return CommandNode{}, false, err
	}
	for i := int32(0); i < numChildren; i++ {
		if _, err := slp.DecodeVarInt(r); err != nil {
			return CommandNode{}, false, err
		}
	}

	if flags&nodeFlagHasRedirect != 0 {
		if _, err := slp.DecodeVarInt(r); err != nil {
			return CommandNode{}, false, err
		}
	}

	nodeType := flags & nodeTypeMask
	var name string
	if nodeType == nodeTypeLiteral || nodeType == nodeTypeArgument {
		name, err = decodeString(r)
		if err != nil {
			return CommandNode{}, false, err
		}
	}

	if nodeType == nodeTypeArgument {
		parserID, err := decodeString(r)
		if err != nil {
			return CommandNode{}, false, err
		}
		if width, ok := parsersWithMinMaxFlag[parserID]; ok {
			if err := skipMinMaxProperty(r, width); err != nil {
				return CommandNode{}, false, err
			}
		} else if parsersWithByteFlag[parserID] {
			if _, err := r.ReadByte(); err != nil {
				return CommandNode{}, false, err
			}
		} else if !knownNoPropertyParsers[parserID] {
			// Unknown parser shape: stop here rather than guess further
			// property bytes and corrupt the remaining walk.
			return CommandNode{Name: name, Literal: nodeType == nodeTypeLiteral}, false, nil
		}

		if flags&nodeFlagHasSuggestions != 0 {
			if _, err := decodeString(r); err != nil {
				return CommandNode{}, false, err
			}
		}
	}

	return CommandNode{Name: name, Literal: nodeType == nodeTypeLiteral}, true, nil
}

func skipMinMaxProperty(r *bytes.Reader, width int) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := r.Seek(int64(width), 1); err != nil {
			return err
		}
	}
	if flags&0x02 != 0 {
		if _, err := r.Seek(int64(width), 1); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(r *bytes.Reader) (string, error) {
	n, err := slp.DecodeVarInt(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// knownNoPropertyParsers take no properties beyond name/parser id.
var knownNoPropertyParsers = map[string]bool{
	"brigadier:bool": true, "minecraft:game_profile": true, "minecraft:block_pos": true,
	"minecraft:column_pos": true, "minecraft:vec3": true, "minecraft:vec2": true,
	"minecraft:block_state": true, "minecraft:item_stack": true, "minecraft:item_predicate": true,
	"minecraft:color": true, "minecraft:component": true, "minecraft:message": true,
	"minecraft:nbt_compound_tag": true, "minecraft:nbt_tag": true, "minecraft:nbt_path": true,
	"minecraft:objective": true, "minecraft:objective_criteria": true, "minecraft:operation": true,
	"minecraft:particle": true, "minecraft:angle": true, "minecraft:rotation": true,
	"minecraft:scoreboard_slot": true, "minecraft:swizzle": true, "minecraft:team": true,
	"minecraft:item_slot": true, "minecraft:resource_location": true, "minecraft:function": true,
	"minecraft:entity_anchor": true, "minecraft:int_range": true, "minecraft:float_range": true,
	"minecraft:item_enchantment": true, "minecraft:entity_summon": true, "minecraft:dimension": true,
	"minecraft:uuid": true, "brigadier:string": true, "minecraft:time": true,
}

// ExtractPluginIDs applies the detection rule: a node name containing ":"
// implies the text before it is the plugin id, lowercased.
func ExtractPluginIDs(nodes []CommandNode) []string {
	seen := map[string]bool{}
	var ids []string
	for _, n := range nodes {
		idx := strings.Index(n.Name, ":")
		if idx <= 0 {
			continue
		}
		id := strings.ToLower(n.Name[:idx])
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// versionCommandAliases is the set of root command names recognized as the
// server's version/about command, checked in order and stopping at the
// first match.
var versionCommandAliases = []string{"version", "ver", "about"}

// FindVersionCommand returns the node matching the version-command
// aliasing rule: bare alias names are tried in versionCommandAliases order,
// and only if none is present the first "<namespace>:version" node.
func FindVersionCommand(nodes []CommandNode) (string, bool) {
	for _, alias := range versionCommandAliases {
		for _, n := range nodes {
			if n.Name == alias {
				return n.Name, true
			}
		}
	}
	for _, n := range nodes {
		if strings.HasSuffix(n.Name, ":version") {
			return n.Name, true
		}
	}
	return "", false
}
