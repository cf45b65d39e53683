package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/agent/internal/botproto"
)

func TestDetectCommandTree(t *testing.T) {
	nodes := []botproto.CommandNode{
		{Name: "essentials:help", Literal: true},
		{Name: "worldedit:wand", Literal: true},
	}
	result, err := Detect(context.Background(), nodes, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "command_tree", result.Method)
	assert.ElementsMatch(t, []string{"essentials", "worldedit"}, result.Plugins)
}

func TestDetectCommandTreeBySignatureTable(t *testing.T) {
	nodes := []botproto.CommandNode{{Name: "sethome", Literal: true}}
	result, err := Detect(context.Background(), nodes, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "command_tree", result.Method)
	assert.Equal(t, []string{"essentials"}, result.Plugins)
}

func TestDetectTabCompleteRootOnly(t *testing.T) {
	tab := func(ctx context.Context, text string) ([]string, error) {
		if text == "/" {
			return []string{"/sethome", "/spawn"}, nil
		}
		return nil, nil
	}
	result, err := Detect(context.Background(), nil, tab, nil)
	require.NoError(t, err)
	assert.Equal(t, "tab_complete", result.Method)
	assert.Equal(t, []string{"essentials"}, result.Plugins)
}

func TestDetectTabCompleteCombined(t *testing.T) {
	tab := func(ctx context.Context, text string) ([]string, error) {
		switch text {
		case "/bukkit:":
			return []string{"/bukkit:sethome"}, nil
		default:
			return nil, nil
		}
	}
	result, err := Detect(context.Background(), nil, tab, nil)
	require.NoError(t, err)
	assert.Equal(t, "combined", result.Method)
}

func TestDetectPluginsCommand(t *testing.T) {
	chat := func(ctx context.Context, command string) (string, error) {
		if command == "/plugins" {
			return "Plugins (3): EssentialsX, WorldEdit, Vault", nil
		}
		return "", nil
	}
	result, err := Detect(context.Background(), nil, nil, chat)
	require.NoError(t, err)
	assert.Equal(t, "plugins_command", result.Method)
	assert.Equal(t, []string{"EssentialsX", "WorldEdit", "Vault"}, result.Plugins)
}

func TestDetectBukkitPluginsCommandFallback(t *testing.T) {
	chat := func(ctx context.Context, command string) (string, error) {
		if command == "/bukkit:plugins" {
			return "Plugins (1): CoreProtect", nil
		}
		return "", nil
	}
	result, err := Detect(context.Background(), nil, nil, chat)
	require.NoError(t, err)
	assert.Equal(t, "bukkit_plugins_command", result.Method)
	assert.Equal(t, []string{"CoreProtect"}, result.Plugins)
}

func TestDetectNone(t *testing.T) {
	result, err := Detect(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", result.Method)
	assert.Empty(t, result.Plugins)
}

func TestParsePluginsLineNoMatch(t *testing.T) {
	assert.Nil(t, parsePluginsLine("hello world"))
}

func TestTabPhaseNext(t *testing.T) {
	assert.Equal(t, phaseVersion, phaseRoot.next())
	assert.Equal(t, phaseDone, phaseBukkit.next())
	assert.Equal(t, "/", phaseRoot.prefix())
	assert.Equal(t, "/bukkit:", phaseBukkit.prefix())
}
