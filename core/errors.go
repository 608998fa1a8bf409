package core

import "errors"

var (
	// ErrNotOwner is returned when the signer does not control the account.
	ErrNotOwner = errors.New("signer is not an owner of this Safe account")

	// ErrChallengeExpiredOrMissing covers unknown, consumed and expired challenges.
	ErrChallengeExpiredOrMissing = errors.New("login challenge expired, start sign in again")

	// ErrInvalidSignature is returned for malformed signatures and recovery mismatches.
	ErrInvalidSignature = errors.New("signature verification failed")

	// ErrSignerNotDeployed is returned when a contract signer has no bytecode yet.
	ErrSignerNotDeployed = errors.New("passkey signer contract is not deployed yet")

	// ErrOwnershipRevoked is returned when ownership changed between issue and verify.
	ErrOwnershipRevoked = errors.New("signer is no longer an owner of this Safe account")

	// ErrWalletNotLinked is returned while the identity provider has not linked the wallet yet.
	ErrWalletNotLinked = errors.New("authenticated identity does not have this wallet linked")

	// ErrIdentityRejected is returned when the identity provider token is not acceptable.
	ErrIdentityRejected = errors.New("identity token rejected")

	// ErrDeploymentUnverified is returned when a claimed deployment cannot be confirmed on-chain.
	ErrDeploymentUnverified = errors.New("could not verify deployment transaction")

	// ErrClientDeploymentRequired is returned when the server cannot deploy in the configured strategy.
	ErrClientDeploymentRequired = errors.New("deployment must be completed by the client and registered")

	// ErrUnsupportedChain is returned when the RPC endpoint serves an unexpected chain.
	ErrUnsupportedChain = errors.New("rpc endpoint is on an unsupported chain")

	// ErrInvalidAuthMethod is returned for unknown verification strategies.
	ErrInvalidAuthMethod = errors.New("invalid auth method")

	// ErrMockSessionDisabled is returned by the mock session shortcut outside mock mode.
	ErrMockSessionDisabled = errors.New("mock sessions are disabled")

	// ErrChainUnavailable is returned when an on-chain answer is needed but no RPC is configured.
	ErrChainUnavailable = errors.New("chain access is not configured")
)
