package msauth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reconmc/agent/internal/socks"
)

func TestComboSpaceCachedFirst(t *testing.T) {
	cached := combo{clientID: clientIDs[2], scope: scopes[1]}
	space := comboSpace(&cached)
	assert.Equal(t, cached, space[0])
	assert.Len(t, space, len(clientIDs)*len(scopes))
}

func TestComboSpaceNoCached(t *testing.T) {
	space := comboSpace(nil)
	assert.Len(t, space, len(clientIDs)*len(scopes))
}

func TestComboCacheGetPutAndKeyTruncation(t *testing.T) {
	c := newComboCache()
	rt := "a-refresh-token-that-is-quite-long-indeed"
	cb := combo{clientID: "x", scope: "y"}
	c.put(rt, cb)

	got, ok := c.get(rt)
	require.True(t, ok)
	assert.Equal(t, cb, got)

	assert.Equal(t, rt[:16], cacheKey(rt))
}

func TestComboCacheShortTokenKey(t *testing.T) {
	assert.Equal(t, "short", cacheKey("short"))
}

func b64urlJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(b)
}

func TestProfileFromJWTPfdShape(t *testing.T) {
	payload := b64urlJSON(t, map[string]interface{}{
		"pfd": []map[string]string{{"type": "mc", "id": "abc123", "name": "Notch"}},
	})
	token := "header." + payload + ".sig"

	p, ok := profileFromJWT(token)
	require.True(t, ok)
	assert.Equal(t, "abc123", p.ID)
	assert.Equal(t, "Notch", p.Name)
}

func TestProfileFromJWTProfilesMCShape(t *testing.T) {
	payload := b64urlJSON(t, map[string]interface{}{
		"profiles": map[string]interface{}{
			"mc": []map[string]string{{"id": "def456", "name": "Herobrine"}},
		},
	})
	token := "header." + payload + ".sig"

	p, ok := profileFromJWT(token)
	require.True(t, ok)
	assert.Equal(t, "def456", p.ID)
	assert.Equal(t, "Herobrine", p.Name)
}

func TestProfileFromJWTMalformed(t *testing.T) {
	_, ok := profileFromJWT("not-a-jwt")
	assert.False(t, ok)
}

func TestRpsTicketFormatsOrder(t *testing.T) {
	formats := rpsTicketFormats("tok")
	assert.Equal(t, []string{"d=tok", "t=tok", "tok"}, formats)
}

func TestNewChainBuildsClient(t *testing.T) {
	c := NewChain(socks.Proxy{Host: "127.0.0.1", Port: 1080, Protocol: "socks5"}, zap.NewNop())
	require.NotNil(t, c.client)
	require.NotNil(t, c.cache)
}

func TestSetOnRefreshInstallsCallback(t *testing.T) {
	// Exercises the callback wiring in isolation from the network chain,
	// which requires a live SOCKS+TLS path not worth faking here.
	var gotAccess, gotRefresh string
	c := NewChain(socks.Proxy{Host: "127.0.0.1", Port: 1080, Protocol: "socks5"}, zap.NewNop())
	c.SetOnRefresh(func(accessToken, refreshToken string) {
		gotAccess, gotRefresh = accessToken, refreshToken
	})
	c.onRefresh("mc-token", "new-refresh")
	assert.Equal(t, "mc-token", gotAccess)
	assert.Equal(t, "new-refresh", gotRefresh)
}
