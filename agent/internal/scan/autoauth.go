package scan

import (
	"context"
	"strings"
	"time"

	"reconmc/agent/internal/botproto"
	"reconmc/shared/types"
)

// autoAuthPrompts are the chat substrings (case-insensitive) that signal a
// cracked-mode anti-auth plugin is demanding a /register or /login
// command before letting the bot act. Grounded on the common
// AuthMe/nLogin/CrazyLogin prompt wording.
var autoAuthPrompts = []string{
	"/register",
	"/login",
	"please register",
	"please login",
	"you need to login",
}

// autoAuthWindow bounds how long runAutoAuth watches chat for a prompt
// before deciding the server never asked for authentication.
const autoAuthWindow = 5 * time.Second

// runAutoAuth watches the bot's passive chat stream for an anti-auth
// prompt and replies with password once per distinct prompt (a /login
// follow-up after /register gets its own reply). A second identical prompt within
// the same watch window means the reply was rejected, so the attempt is
// reported as failed rather than retried — retrying a wrong password
// risks a ban on plugins that rate-limit login attempts.
func runAutoAuth(ctx context.Context, client *botproto.Client, password string) *types.AutoAuthResult {
	ctx, cancel := context.WithTimeout(ctx, autoAuthWindow)
	defer cancel()

	result := &types.AutoAuthResult{}
	var firstPrompt string
	replied := false

	for {
		select {
		case <-ctx.Done():
			// Window elapsed with no rejection seen: if a prompt was ever
			// answered, treat the silence as acceptance.
			result.Succeeded = replied
			return result
		case line, ok := <-client.Chat():
			if !ok {
				result.Succeeded = replied
				return result
			}
			if !matchesAutoAuthPrompt(line) {
				continue
			}

			result.Attempted = true
			if !replied {
				firstPrompt = normalizePrompt(line)
				replied = true
				sendAuthReply(ctx, client, line, password)
				continue
			}

			if normalizePrompt(line) == firstPrompt {
				result.Succeeded = false
				return result
			}
			// A different prompt after the first reply (e.g. /register
			// succeeded into a /login follow-up) — reply again.
			sendAuthReply(ctx, client, line, password)
		}
	}
}

func sendAuthReply(ctx context.Context, client *botproto.Client, prompt, password string) {
	command := "/login " + password
	if strings.Contains(strings.ToLower(prompt), "register") {
		command = "/register " + password + " " + password
	}
	_, _ = client.SendChatCommand(ctx, command, 1*time.Second)
}

func matchesAutoAuthPrompt(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range autoAuthPrompts {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func normalizePrompt(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}
