package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DeployMode tells whether accounts live on-chain or only in the local log
type DeployMode string

const (
	DeployModeMock DeployMode = "mock"
	DeployModeReal DeployMode = "real"
)

// DeployStrategy selects how real deployments are executed
type DeployStrategy string

const (
	DeployStrategyMock    DeployStrategy = "mock"
	DeployStrategyRelay   DeployStrategy = "relay"
	DeployStrategyERC4337 DeployStrategy = "erc4337"
)

// SubAccount is a named spending pocket configured on the account
type SubAccount struct {
	Name          string          `json:"name"`
	SpendingLimit decimal.Decimal `json:"spendingLimit"`
}

// ModuleConfig toggles the Safe modules installed with the account
type ModuleConfig struct {
	GuildDelay               bool `json:"guildDelay"`
	GuildRoles               bool `json:"guildRoles"`
	GuildAllowance           bool `json:"guildAllowance"`
	GuildRecovery            bool `json:"guildRecovery"`
	RhinestoneSessions       bool `json:"rhinestoneSessions"`
	RhinestoneSpendingPolicy bool `json:"rhinestoneSpendingPolicy"`
	RhinestoneAutomation     bool `json:"rhinestoneAutomation"`
	TimeLockHours            int  `json:"timeLockHours"`
}

// AccountConfig is the user-chosen shape of the account
type AccountConfig struct {
	AccountType  string       `json:"accountType"`
	BaseCurrency string       `json:"baseCurrency"`
	AccountName  string       `json:"accountName"`
	SubAccounts  []SubAccount `json:"subAccounts"`
	Modules      ModuleConfig `json:"modules"`
}

// Deployment is one append-only record of a Safe account and its owner
type Deployment struct {
	ID               string     `json:"id"`
	SignerAddress    string     `json:"signerAddress"`
	AccountAddress   string     `json:"accountAddress"`
	DeploymentTxHash string     `json:"deploymentTxHash"`
	ModuleTxHash     string     `json:"moduleTxHash"`
	Network          string     `json:"network"`
	Mode             DeployMode `json:"mode"`
	CreatedAt        time.Time  `json:"createdAt"`
	AccountConfig
}

// OwnedBy reports whether the record binds signer to account.
func (d Deployment) OwnedBy(signer, account string) bool {
	return strings.EqualFold(d.SignerAddress, signer) && strings.EqualFold(d.AccountAddress, account)
}

// DeploymentRequest asks the server to deploy a new account for the signer
type DeploymentRequest struct {
	SignerAddress string
	AccountConfig
}

// DeploymentReceipt is what a deployer reports back after creating the account
type DeploymentReceipt struct {
	AccountAddress   string
	DeploymentTxHash string
	ModuleTxHash     string
	Network          string
}

// RegisterRequest is a client-submitted claim about an account it deployed itself
type RegisterRequest struct {
	SignerAddress    string
	AccountAddress   string
	DeploymentTxHash string
	ModuleTxHash     string
	Network          string
	Mode             DeployMode
	AccountConfig
}

// DeploymentResult is the public view of a persisted deployment
type DeploymentResult struct {
	AccountAddress   string     `json:"accountAddress"`
	DeploymentTxHash string     `json:"deploymentTxHash"`
	ModuleTxHash     string     `json:"moduleTxHash"`
	Status           string     `json:"status"`
	Mode             DeployMode `json:"mode"`
	Network          string     `json:"network"`
}

// Result projects the record to its public view.
func (d Deployment) Result() DeploymentResult {
	return DeploymentResult{
		AccountAddress:   d.AccountAddress,
		DeploymentTxHash: d.DeploymentTxHash,
		ModuleTxHash:     d.ModuleTxHash,
		Status:           "deployed",
		Mode:             d.Mode,
		Network:          d.Network,
	}
}
