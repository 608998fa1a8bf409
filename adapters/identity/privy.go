// Package identity verifies Privy access tokens and the wallets linked to the
// authenticated user.
package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultAPIURL is Privy's public API
const DefaultAPIURL = "https://auth.privy.io"

const issuer = "privy.io"

// jwksRefreshInterval bounds how often an unknown kid can trigger a JWKS fetch
const jwksRefreshInterval = 30 * time.Second

var errUnknownSigningKey = errors.New("no signing key matches the token")

// PrivyConfig holds the app credentials
type PrivyConfig struct {
	AppID     string
	AppSecret string
	// VerificationKey is the PEM encoded ES256 key from the Privy dashboard.
	// When empty the key is fetched from the app's JWKS endpoint.
	VerificationKey string
	APIURL          string
}

// LinkedAccount is one entry of a Privy user's linked_accounts
type LinkedAccount struct {
	Type      string `json:"type"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
}

type privyUser struct {
	ID             string          `json:"id"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
}

// PrivyClient implements ports.IdentityVerifier against the Privy API
type PrivyClient struct {
	cfg        PrivyConfig
	httpClient *http.Client
	logger     *zap.Logger

	// staticKey comes from PrivyConfig.VerificationKey and replaces the JWKS
	staticKey *ecdsa.PublicKey

	mu        sync.Mutex
	jwks      *jose.JSONWebKeySet
	fetchedAt time.Time
	now       func() time.Time
}

var _ ports.IdentityVerifier = (*PrivyClient)(nil)

// NewPrivyClient validates cfg. A nil httpClient gets a 10 second timeout.
func NewPrivyClient(cfg PrivyConfig, httpClient *http.Client, logger *zap.Logger) (*PrivyClient, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, errors.New("privy server is not configured, set PRIVY_APP_ID and PRIVY_APP_SECRET")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &PrivyClient{cfg: cfg, httpClient: httpClient, logger: logger, now: time.Now}
	if cfg.VerificationKey != "" {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.VerificationKey))
		if err != nil {
			return nil, fmt.Errorf("invalid privy verification key: %w", err)
		}
		c.staticKey = key
	}
	return c, nil
}

// VerifyWallet verifies accessToken and requires walletAddress to be linked to the user.
// It returns the Privy user id.
func (c *PrivyClient) VerifyWallet(ctx context.Context, accessToken, walletAddress string) (string, error) {
	userID, err := c.verifyToken(ctx, accessToken)
	if err != nil {
		return "", err
	}

	user, err := c.fetchUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !HasWalletLinked(user.LinkedAccounts, walletAddress) {
		return "", core.ErrWalletNotLinked
	}
	return userID, nil
}

// HasWalletLinked reports whether accounts contains walletAddress as an
// Ethereum wallet or smart wallet.
func HasWalletLinked(accounts []LinkedAccount, walletAddress string) bool {
	for _, acc := range accounts {
		if acc.Address == "" || !strings.EqualFold(acc.Address, walletAddress) {
			continue
		}
		switch acc.Type {
		case "smart_wallet":
			return true
		case "wallet":
			if acc.ChainType == "" || acc.ChainType == "ethereum" {
				return true
			}
		}
	}
	return false
}

func (c *PrivyClient) verifyToken(ctx context.Context, accessToken string) (string, error) {
	var fetchErr error
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if c.staticKey != nil {
			return c.staticKey, nil
		}
		kid, _ := token.Header["kid"].(string)
		key, err := c.signingKey(ctx, kid)
		if err != nil && !errors.Is(err, errUnknownSigningKey) {
			fetchErr = err
		}
		return key, err
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(c.cfg.AppID),
		jwt.WithExpirationRequired(),
	)
	if fetchErr != nil {
		return "", fetchErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrIdentityRejected, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", core.ErrIdentityRejected)
	}
	return claims.Subject, nil
}

// signingKey resolves kid against the cached JWKS. A miss refetches the set
// at most once per jwksRefreshInterval.
func (c *PrivyClient) signingKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jwks != nil {
		if key := selectKey(c.jwks, kid); key != nil {
			return key, nil
		}
		if c.now().Sub(c.fetchedAt) < jwksRefreshInterval {
			return nil, fmt.Errorf("%w: kid %q", errUnknownSigningKey, kid)
		}
	}

	set, err := c.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}
	c.jwks, c.fetchedAt = set, c.now()

	if key := selectKey(set, kid); key != nil {
		return key, nil
	}
	c.logger.Warn("privy jwks has no matching key", zap.String("kid", kid), zap.Int("keys", len(set.Keys)))
	return nil, fmt.Errorf("%w: kid %q", errUnknownSigningKey, kid)
}

// selectKey picks the P-256 signing key named kid, or the first one when the
// token carries no kid.
func selectKey(set *jose.JSONWebKeySet, kid string) *ecdsa.PublicKey {
	candidates := set.Keys
	if kid != "" {
		candidates = set.Key(kid)
	}
	for _, k := range candidates {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if pub, ok := k.Key.(*ecdsa.PublicKey); ok && pub.Params().Name == "P-256" {
			return pub
		}
	}
	return nil
}

func (c *PrivyClient) fetchJWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	endpoint := fmt.Sprintf("%s/api/v1/apps/%s/jwks.json", c.cfg.APIURL, url.PathEscape(c.cfg.AppID))
	var set jose.JSONWebKeySet
	if _, err := c.getJSON(ctx, endpoint, false, &set); err != nil {
		return nil, fmt.Errorf("fetch privy jwks: %w", err)
	}
	return &set, nil
}

func (c *PrivyClient) fetchUser(ctx context.Context, userID string) (*privyUser, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s", c.cfg.APIURL, url.PathEscape(userID))
	var user privyUser
	status, err := c.getJSON(ctx, endpoint, true, &user)
	if err != nil {
		if status == http.StatusNotFound || status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: user lookup returned %d", core.ErrIdentityRejected, status)
		}
		return nil, fmt.Errorf("fetch privy user: %w", err)
	}
	return &user, nil
}

func (c *PrivyClient) getJSON(ctx context.Context, endpoint string, authenticated bool, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("privy-app-id", c.cfg.AppID)
	if authenticated {
		req.SetBasicAuth(c.cfg.AppID, c.cfg.AppSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Warn("privy request failed",
			zap.String("endpoint", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return resp.StatusCode, fmt.Errorf("status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
