package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAppID  = "app-123"
	testSecret = "secret"
	testUserID = "did:privy:user1"
	testWallet = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
)

func generateKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.RegisteredClaims) string {
	return signTokenWithKid(t, key, "", claims)
}

func signTokenWithKid(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func publicJWK(key *ecdsa.PrivateKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "ES256", Use: "sig"}
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   testUserID,
		Audience:  jwt.ClaimStrings{testAppID},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

type privyServer struct {
	*httptest.Server
	accounts  atomic.Value
	jwks      atomic.Value
	userCalls atomic.Int32
	jwksCalls atomic.Int32
}

func newPrivyServer(t *testing.T, keys ...jose.JSONWebKey) *privyServer {
	t.Helper()
	s := &privyServer{}
	s.accounts.Store([]LinkedAccount{})
	s.jwks.Store(jose.JSONWebKeySet{Keys: keys})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		s.userCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != testAppID || pass != testSecret || r.Header.Get("privy-app-id") != testAppID {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/users/"+testUserID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(privyUser{ID: testUserID, LinkedAccounts: s.accounts.Load().([]LinkedAccount)})
	})
	mux.HandleFunc("/api/v1/apps/"+testAppID+"/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		s.jwksCalls.Add(1)
		_ = json.NewEncoder(w).Encode(s.jwks.Load().(jose.JSONWebKeySet))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestPrivyClient_VerifyWallet(t *testing.T) {
	key, pemKey := generateKey(t)
	srv := newPrivyServer(t)

	client, err := NewPrivyClient(PrivyConfig{
		AppID:           testAppID,
		AppSecret:       testSecret,
		VerificationKey: pemKey,
		APIURL:          srv.URL,
	}, srv.Client(), nil)
	require.NoError(t, err)
	token := signToken(t, key, validClaims())

	t.Run("wallet not linked yet", func(t *testing.T) {
		_, err := client.VerifyWallet(context.Background(), token, testWallet)
		assert.ErrorIs(t, err, core.ErrWalletNotLinked)
	})

	t.Run("linked", func(t *testing.T) {
		srv.accounts.Store([]LinkedAccount{{Type: "wallet", Address: testWallet, ChainType: "ethereum"}})
		userID, err := client.VerifyWallet(context.Background(), token, testWallet)
		require.NoError(t, err)
		assert.Equal(t, testUserID, userID)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims.Audience = jwt.ClaimStrings{"other-app"}
		_, err := client.VerifyWallet(context.Background(), signToken(t, key, claims), testWallet)
		assert.ErrorIs(t, err, core.ErrIdentityRejected)
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := client.VerifyWallet(context.Background(), signToken(t, key, claims), testWallet)
		assert.ErrorIs(t, err, core.ErrIdentityRejected)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other, _ := generateKey(t)
		_, err := client.VerifyWallet(context.Background(), signToken(t, other, validClaims()), testWallet)
		assert.ErrorIs(t, err, core.ErrIdentityRejected)
	})

	t.Run("unknown user", func(t *testing.T) {
		claims := validClaims()
		claims.Subject = "did:privy:ghost"
		_, err := client.VerifyWallet(context.Background(), signToken(t, key, claims), testWallet)
		assert.ErrorIs(t, err, core.ErrIdentityRejected)
	})
}

func TestPrivyClient_JWKSFallback(t *testing.T) {
	key, _ := generateKey(t)
	srv := newPrivyServer(t, publicJWK(key, ""))
	srv.accounts.Store([]LinkedAccount{{Type: "smart_wallet", Address: testWallet}})

	client, err := NewPrivyClient(PrivyConfig{AppID: testAppID, AppSecret: testSecret, APIURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	userID, err := client.VerifyWallet(context.Background(), signToken(t, key, validClaims()), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
}

func TestPrivyClient_JWKSKeySelection(t *testing.T) {
	oldKey, _ := generateKey(t)
	curKey, _ := generateKey(t)
	srv := newPrivyServer(t, publicJWK(oldKey, "old"), publicJWK(curKey, "cur"))
	srv.accounts.Store([]LinkedAccount{{Type: "wallet", Address: testWallet}})

	client, err := NewPrivyClient(PrivyConfig{AppID: testAppID, AppSecret: testSecret, APIURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("current key", func(t *testing.T) {
		userID, err := client.VerifyWallet(ctx, signTokenWithKid(t, curKey, "cur", validClaims()), testWallet)
		require.NoError(t, err)
		assert.Equal(t, testUserID, userID)
	})

	t.Run("previous key", func(t *testing.T) {
		_, err := client.VerifyWallet(ctx, signTokenWithKid(t, oldKey, "old", validClaims()), testWallet)
		require.NoError(t, err)
	})

	t.Run("kid of another key", func(t *testing.T) {
		_, err := client.VerifyWallet(ctx, signTokenWithKid(t, oldKey, "cur", validClaims()), testWallet)
		assert.ErrorIs(t, err, core.ErrIdentityRejected)
	})

	assert.Equal(t, int32(1), srv.jwksCalls.Load())
}

func TestPrivyClient_JWKSRotation(t *testing.T) {
	oldKey, _ := generateKey(t)
	newKey, _ := generateKey(t)
	srv := newPrivyServer(t, publicJWK(oldKey, "k1"))
	srv.accounts.Store([]LinkedAccount{{Type: "wallet", Address: testWallet}})

	client, err := NewPrivyClient(PrivyConfig{AppID: testAppID, AppSecret: testSecret, APIURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	now := time.Now()
	client.now = func() time.Time { return now }
	ctx := context.Background()

	_, err = client.VerifyWallet(ctx, signTokenWithKid(t, oldKey, "k1", validClaims()), testWallet)
	require.NoError(t, err)

	srv.jwks.Store(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{publicJWK(newKey, "k2")}})
	rotated := signTokenWithKid(t, newKey, "k2", validClaims())

	// a fresh cache does not refetch for an unknown kid
	_, err = client.VerifyWallet(ctx, rotated, testWallet)
	assert.ErrorIs(t, err, core.ErrIdentityRejected)
	assert.Equal(t, int32(1), srv.jwksCalls.Load())

	now = now.Add(jwksRefreshInterval)
	userID, err := client.VerifyWallet(ctx, rotated, testWallet)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
	assert.Equal(t, int32(2), srv.jwksCalls.Load())
}

func TestPrivyClient_JWKSUnavailable(t *testing.T) {
	key, _ := generateKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client, err := NewPrivyClient(PrivyConfig{AppID: testAppID, AppSecret: testSecret, APIURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = client.VerifyWallet(context.Background(), signTokenWithKid(t, key, "k1", validClaims()), testWallet)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrIdentityRejected)
}

func TestNewPrivyClient_RequiresCredentials(t *testing.T) {
	_, err := NewPrivyClient(PrivyConfig{AppID: testAppID}, nil, nil)
	assert.Error(t, err)

	_, err = NewPrivyClient(PrivyConfig{AppID: testAppID, AppSecret: testSecret, VerificationKey: "not a key"}, nil, nil)
	assert.Error(t, err)
}

func TestHasWalletLinked(t *testing.T) {
	cases := []struct {
		name     string
		accounts []LinkedAccount
		want     bool
	}{
		{"ethereum wallet", []LinkedAccount{{Type: "wallet", Address: testWallet, ChainType: "ethereum"}}, true},
		{"wallet without chain type", []LinkedAccount{{Type: "wallet", Address: testWallet}}, true},
		{"case insensitive", []LinkedAccount{{Type: "wallet", Address: "0xabcdef0123456789abcdef0123456789abcdef01"}}, true},
		{"smart wallet", []LinkedAccount{{Type: "smart_wallet", Address: testWallet}}, true},
		{"solana wallet", []LinkedAccount{{Type: "wallet", Address: testWallet, ChainType: "solana"}}, false},
		{"email account", []LinkedAccount{{Type: "email", Address: testWallet}}, false},
		{"other address", []LinkedAccount{{Type: "wallet", Address: "0x0000000000000000000000000000000000000001"}}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasWalletLinked(tc.accounts, testWallet))
		})
	}
}
