package ports

import "context"

// IdentityVerifier checks an identity provider access token and that the
// authenticated user has walletAddress linked. It returns the provider user id.
type IdentityVerifier interface {
	VerifyWallet(ctx context.Context, accessToken, walletAddress string) (string, error)
}
