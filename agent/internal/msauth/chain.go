package msauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reconmc/agent/internal/socks"
)

const (
	refreshURL = "https://login.live.com/oauth20_token.srf"
	xblAuthURL = "https://user.auth.xboxlive.com/user/authenticate"
	xstsURL    = "https://xsts.auth.xboxlive.com/xsts/authorize"
	mcLoginURL = "https://api.minecraftservices.com/authentication/login_with_xbox"
	profileURL = "https://api.minecraftservices.com/minecraft/profile"

	xstsRelyingParty = "rp://api.minecraftservices.com/"
)

// Profile is the validated Minecraft player identity returned at the end
// of the chain.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result is the full bundle the chain returns on success.
type Result struct {
	AccessToken  string // Minecraft access token
	RefreshToken string // Microsoft refresh token, new or unchanged
	Profile      Profile
	UserHash     string
	MSAccessToken string
	XBLToken     string
	XSTSToken    string
	ExpiresOn    time.Time
	Refreshed    bool // false when the fast path short-circuited the chain
}

// OnRefreshFunc is invoked once a refresh rotates the account's tokens, so
// the caller can forward the new pair upstream (§4.11's token-refresh
// callback wiring). Set via Chain.SetOnRefresh; never reached for at
// package scope.
type OnRefreshFunc func(accessToken, refreshToken string)

// Chain drives the five-step token exchange for one agent process. It
// holds the per-account combo cache and routes every HTTP call through the
// same SOCKS proxy the scan itself uses, so Microsoft/Xbox traffic never
// bypasses the tunnel.
type Chain struct {
	client    *http.Client
	cache     *comboCache
	log       *zap.Logger
	onRefresh OnRefreshFunc
}

// NewChain builds a Chain whose HTTP client dials exclusively through proxy.
func NewChain(proxy socks.Proxy, log *zap.Logger) *Chain {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, err
			}
			return socks.HTTPSRequest(ctx, proxy, host, port)
		},
	}
	return &Chain{
		client: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		cache:  newComboCache(),
		log:    log.Named("msauth"),
	}
}

// SetOnRefresh installs the callback invoked after a successful refresh.
func (c *Chain) SetOnRefresh(fn OnRefreshFunc) {
	c.onRefresh = fn
}

// Refresh runs the fast path, then the full chain if needed, for the given
// Microsoft account. currentAccessToken may be empty if the agent has none
// cached.
func (c *Chain) Refresh(ctx context.Context, refreshToken, currentAccessToken string) (*Result, error) {
	if currentAccessToken != "" {
		if profile, ok := c.tryFastPath(ctx, currentAccessToken); ok {
			return &Result{
				AccessToken:  currentAccessToken,
				RefreshToken: refreshToken,
				Profile:      profile,
				ExpiresOn:    time.Now().Add(24 * time.Hour),
				Refreshed:    false,
			}, nil
		}
	}

	msToken, newRefreshToken, err := c.stepRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	xblToken, uhs, err := c.stepXboxLiveAuth(ctx, msToken)
	if err != nil {
		return nil, err
	}

	xstsToken, err := c.stepXSTS(ctx, xblToken)
	if err != nil {
		return nil, err
	}

	mcToken, err := c.stepMCLogin(ctx, uhs, xstsToken)
	if err != nil {
		return nil, err
	}

	profile, err := c.stepProfile(ctx, mcToken)
	if err != nil {
		return nil, err
	}

	if c.onRefresh != nil {
		c.onRefresh(mcToken, newRefreshToken)
	}

	return &Result{
		AccessToken:   mcToken,
		RefreshToken:  newRefreshToken,
		Profile:       profile,
		UserHash:      uhs,
		MSAccessToken: msToken,
		XBLToken:      xblToken,
		XSTSToken:     xstsToken,
		ExpiresOn:     time.Now().Add(24 * time.Hour),
		Refreshed:     true,
	}, nil
}

// tryFastPath validates the current access token directly against the
// profile endpoint. A 200 means the chain can be skipped entirely.
func (c *Chain) tryFastPath(ctx context.Context, accessToken string) (Profile, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return Profile{}, false
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, false
	}

	var p Profile
	if json.NewDecoder(resp.Body).Decode(&p) != nil {
		return Profile{}, false
	}
	return p, true
}

// stepRefresh is the cross-product search over client IDs and scopes
// against the Microsoft refresh endpoint. refresh_token and scope are
// placed in the body verbatim, without url.Values' usual percent-encoding
// — that encoding is exactly what breaks the endpoint's acceptance of
// these values.
func (c *Chain) stepRefresh(ctx context.Context, refreshToken string) (msAccessToken, newRefreshToken string, err error) {
	cached, hasCached := c.cache.get(refreshToken)
	var cachedPtr *combo
	if hasCached {
		cachedPtr = &cached
	}

	var lastErr error
	for _, cb := range comboSpace(cachedPtr) {
		body := fmt.Sprintf(
			"grant_type=refresh_token&client_id=%s&refresh_token=%s&scope=%s",
			cb.clientID, refreshToken, cb.scope,
		)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, strings.NewReader(body))
		if err != nil {
			return "", "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, doErr := c.client.Do(req)
		if doErr != nil {
			lastErr = doErr
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			time.Sleep(5 * time.Second)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = errStep("microsoft refresh", resp.StatusCode, string(respBody))
			continue
		}

		var parsed struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
			lastErr = jsonErr
			continue
		}

		c.cache.put(refreshToken, cb)
		rt := parsed.RefreshToken
		if rt == "" {
			rt = refreshToken
		}
		return parsed.AccessToken, rt, nil
	}

	if lastErr == nil {
		lastErr = errStep("microsoft refresh", 0, "cross-product exhausted with no successful combination")
	}
	return "", "", lastErr
}

// rpsTicketFormats are tried in order for the Xbox Live user-auth step;
// different Microsoft token shapes expect different RpsTicket prefixes.
func rpsTicketFormats(token string) []string {
	return []string{"d=" + token, "t=" + token, token}
}

func (c *Chain) stepXboxLiveAuth(ctx context.Context, msAccessToken string) (xblToken, userHash string, err error) {
	var lastErr error
	for _, ticket := range rpsTicketFormats(msAccessToken) {
		payload := map[string]interface{}{
			"Properties": map[string]interface{}{
				"AuthMethod": "RPS",
				"SiteName":   "user.auth.xboxlive.com",
				"RpsTicket":  ticket,
			},
			"RelyingParty": "http://auth.xboxlive.com",
			"TokenType":    "JWT",
		}
		buf, _ := json.Marshal(payload)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, xblAuthURL, bytes.NewReader(buf))
		if err != nil {
			return "", "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, doErr := c.client.Do(req)
		if doErr != nil {
			lastErr = doErr
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = errStep("xbox live auth", resp.StatusCode, string(respBody))
			continue
		}

		var parsed struct {
			Token         string `json:"Token"`
			DisplayClaims struct {
				Xui []struct {
					Uhs string `json:"uhs"`
				} `json:"xui"`
			} `json:"DisplayClaims"`
		}
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil || len(parsed.DisplayClaims.Xui) == 0 {
			lastErr = fmt.Errorf("xbox live auth: malformed response")
			continue
		}
		return parsed.Token, parsed.DisplayClaims.Xui[0].Uhs, nil
	}
	return "", "", lastErr
}

func (c *Chain) stepXSTS(ctx context.Context, xblToken string) (string, error) {
	payload := map[string]interface{}{
		"Properties": map[string]interface{}{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xblToken},
		},
		"RelyingParty": xstsRelyingParty,
		"TokenType":    "JWT",
	}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, xstsURL, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrNoXboxAccount
	}
	if resp.StatusCode != http.StatusOK {
		return "", errStep("xsts", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Token string `json:"Token"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func (c *Chain) stepMCLogin(ctx context.Context, userHash, xstsToken string) (string, error) {
	identityToken := fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken)
	payload := map[string]string{"identityToken": identityToken}
	buf, _ := json.Marshal(payload)

	backoffs := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, mcLoginURL, bytes.NewReader(buf))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.client.Do(req)
		if doErr != nil {
			lastErr = doErr
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = errStep("mc login", resp.StatusCode, string(respBody))
			time.Sleep(backoffs[attempt])
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", errStep("mc login", resp.StatusCode, string(respBody))
		}

		var parsed struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", err
		}
		return parsed.AccessToken, nil
	}
	return "", lastErr
}

func (c *Chain) stepProfile(ctx context.Context, mcAccessToken string) (Profile, error) {
	fetch := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+mcAccessToken)
		return c.client.Do(req)
	}

	resp, err := fetch()
	if err != nil {
		return Profile{}, err
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		time.Sleep(5 * time.Second)
		resp, err = fetch()
		if err != nil {
			return Profile{}, err
		}
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	if resp.StatusCode == http.StatusOK {
		var p Profile
		if err := json.Unmarshal(body, &p); err == nil && p.ID != "" {
			return p, nil
		}
	}

	if p, ok := profileFromJWT(mcAccessToken); ok {
		c.log.Warn("profile endpoint unavailable, recovered identity from access token JWT")
		return p, nil
	}
	return Profile{}, errStep("profile validation", resp.StatusCode, string(body))
}

// profileFromJWT extracts {id, name} from the Minecraft access token's own
// JWT payload when the profile endpoint is unreachable or rate-limited
// past the single retry, checking both historical payload shapes.
func profileFromJWT(token string) (Profile, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Profile{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Profile{}, false
	}

	var claims struct {
		Pfd []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"pfd"`
		Profiles struct {
			MC []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"mc"`
		} `json:"profiles"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Profile{}, false
	}

	for _, p := range claims.Pfd {
		if p.Type == "mc" {
			return Profile{ID: p.ID, Name: p.Name}, true
		}
	}
	if len(claims.Profiles.MC) > 0 {
		m := claims.Profiles.MC[0]
		return Profile{ID: m.ID, Name: m.Name}, true
	}
	return Profile{}, false
}
