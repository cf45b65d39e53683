package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"reconmc/shared/types"
)

// uuidShapePattern matches the canonical 8-4-4-4-12 hyphenated UUID shape
// only. It is stricter than slp's sample validator, which also keeps
// undashed ids, so an undashed id survives sanitization and is then
// counted as cracked here.
var uuidShapePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func uuidShapeValid(id string) bool {
	return uuidShapePattern.MatchString(id)
}

// sampleEntry mirrors the shape of one players.sample[] element after
// slp.ValidateStatusJSON has already sanitized it.
type sampleEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type statusPlayers struct {
	Players *struct {
		Sample []sampleEntry `json:"sample"`
	} `json:"players"`
}

// extractSample pulls players.sample out of a validated status document,
// returning nil if absent.
func extractSample(status json.RawMessage) []sampleEntry {
	var doc statusPlayers
	if err := json.Unmarshal(status, &doc); err != nil || doc.Players == nil {
		return nil
	}
	return doc.Players.Sample
}

// classifySync is the synchronous fast-path server-mode classifier: every
// sample id well-formed and not zero-prefixed means online, any malformed
// or zero-prefixed id means cracked, mixed or empty means unknown. A
// zero-prefixed id is still a syntactically valid UUID (it's just hex),
// so it's checked for independently of uuidShapePattern.
func classifySync(sample []sampleEntry) types.ServerMode {
	if len(sample) == 0 {
		return types.ModeUnknown
	}

	online, cracked := 0, 0
	for _, s := range sample {
		if looksCracked(s.ID) {
			cracked++
		} else {
			online++
		}
	}

	switch {
	case online > 0 && cracked > 0:
		return types.ModeUnknown
	case cracked > 0:
		return types.ModeCracked
	default:
		return types.ModeOnline
	}
}

func looksCracked(id string) bool {
	if !uuidShapeValid(id) {
		return true
	}
	return strings.HasPrefix(id, "00000000")
}

// uuidVerifyFunc resolves one UUID to a {valid, invalid, error} tri-state
// outcome against an external lookup service.
type uuidVerifyFunc func(ctx context.Context, id string) (valid bool, err error)

// classifyAsync is an alternative classifier: it verifies each sample UUID
// through verify (newHTTPVerifier: Minetools, falling back to PlayerDB on
// error) and classifies from the aggregate {valid, invalid, error} counts.
// Executor.Execute does not call it, and no code outside this package's
// tests does either.
func classifyAsync(ctx context.Context, sample []sampleEntry, verify uuidVerifyFunc) types.ServerMode {
	if len(sample) == 0 {
		return types.ModeUnknown
	}

	var valid, invalid, errored int
	for _, s := range sample {
		ok, err := verify(ctx, s.ID)
		switch {
		case err != nil:
			errored++
		case ok:
			valid++
		default:
			invalid++
		}
	}

	if float64(errored)/float64(len(sample)) > 0.5 {
		return types.ModeUnknown
	}
	switch {
	case valid > 0 && invalid > 0:
		return types.ModeUnknown
	case invalid > 0:
		return types.ModeCracked
	case valid > 0:
		return types.ModeOnline
	default:
		return types.ModeUnknown
	}
}

const (
	minetoolsURLPrefix = "https://api.minetools.eu/uuid/"
	playerDBURLPrefix  = "https://playerdb.co/api/player/minecraft/"
)

// newHTTPVerifier builds a uuidVerifyFunc backed by Minetools with a
// PlayerDB fallback on any transport or non-2xx error, using client for
// both calls (the caller wires a SOCKS-tunneled client when verification
// must ride the same proxy as the rest of the scan).
func newHTTPVerifier(client *http.Client) uuidVerifyFunc {
	return func(ctx context.Context, id string) (bool, error) {
		ok, err := lookupUUID(ctx, client, minetoolsURLPrefix+id)
		if err == nil {
			return ok, nil
		}
		return lookupUUID(ctx, client, playerDBURLPrefix+id)
	}
}

func lookupUUID(ctx context.Context, client *http.Client, url string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, &types.ScanError{Kind: types.KindNetwork, Message: "uuid lookup failed"}
}
