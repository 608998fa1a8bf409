package core

import (
	"strings"
	"time"
)

// AuthMethod selects the signature verification strategy
type AuthMethod string

const (
	// AuthMethodWallet verifies a plain EIP-191 signature from an externally owned key
	AuthMethodWallet AuthMethod = "wallet"

	// AuthMethodPasskey verifies a contract signature through the Safe account
	AuthMethodPasskey AuthMethod = "passkey"
)

// ParseAuthMethod maps the wire value to an AuthMethod, defaulting to wallet.
func ParseAuthMethod(raw string) (AuthMethod, error) {
	switch AuthMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AuthMethodWallet:
		return AuthMethodWallet, nil
	case AuthMethodPasskey:
		return AuthMethodPasskey, nil
	default:
		return "", ErrInvalidAuthMethod
	}
}

// Challenge represents one outstanding login attempt
type Challenge struct {
	Nonce          string    `json:"nonce"`          // 0x-prefixed 32 byte random value, primary key
	SignerAddress  string    `json:"signerAddress"`  // key that must sign the message
	AccountAddress string    `json:"accountAddress"` // Safe account the signer claims to own
	Message        string    `json:"message"`        // canonical text to sign
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Used           bool      `json:"used"`
}

// Expired reports whether the challenge is past its TTL at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Matches reports whether the challenge belongs to nonce, signer and account.
func (c Challenge) Matches(nonce, signer, account string) bool {
	return strings.EqualFold(c.Nonce, nonce) &&
		strings.EqualFold(c.SignerAddress, signer) &&
		strings.EqualFold(c.AccountAddress, account)
}

// IssuedChallenge is what the client receives when a challenge is created
type IssuedChallenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session represents an authenticated (signer, account) pair
type Session struct {
	TokenHash      string    `json:"tokenHash"`       // hex sha256 of the bearer token
	Token          string    `json:"token,omitempty"` // legacy plaintext rows only, migrated on read
	SignerAddress  string    `json:"signerAddress"`
	AccountAddress string    `json:"accountAddress"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its TTL at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IssuedSession carries the raw bearer token. It is handed out exactly once.
type IssuedSession struct {
	Token          string
	SignerAddress  string
	AccountAddress string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}
