package core

import (
	"strings"
	"time"
)

// LoginMessageTimeLayout is the issuance timestamp layout embedded in login messages
const LoginMessageTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatLoginMessage builds the text a signer has to sign. Line order is part
// of the signed payload and must not change.
func FormatLoginMessage(account, signer, nonce string, issuedAt time.Time) string {
	return strings.Join([]string{
		"NEOBANK account login",
		"Safe: " + account,
		"Wallet: " + signer,
		"Nonce: " + nonce,
		"Issued at: " + issuedAt.UTC().Format(LoginMessageTimeLayout),
	}, "\n")
}
