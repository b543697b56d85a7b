package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// VaultType identifies the deposit interface a vault exposes. Only the two
// listed types are supported; anything else is rejected at load time.
type VaultType string

const (
	VaultTypeStandard VaultType = "standard"
	VaultTypeERC4626  VaultType = "erc4626"
)

// NoSwapProviderID is the reserved synthetic provider id used when source and
// destination tokens are identical and no exchange occurs.
const NoSwapProviderID = "no-swap"

// Token is an immutable description of an on-chain asset. The zero address
// denotes the chain's native asset. Balance is optional and in base units.
type Token struct {
	ChainID  string         `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Balance  *big.Int       `json:"balance,omitempty"`
}

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool {
	return t.Address == (common.Address{})
}

// Vault is a yield-vault contract accepting deposits in a single token.
type Vault struct {
	ID                  string         `json:"id"`
	ChainID             string         `json:"chainId"`
	ContractAddress     common.Address `json:"contractAddress"`
	DepositTokenAddress common.Address `json:"depositTokenAddress"`
	Type                VaultType      `json:"type"`
}

// Quote is a price estimate for exchanging FromAmount of FromToken into
// ToToken. Amounts are human-decimal, not base units.
type Quote struct {
	ProviderID string          `json:"providerId"`
	FromToken  Token           `json:"fromToken"`
	FromAmount decimal.Decimal `json:"fromAmount"`
	ToToken    Token           `json:"toToken"`
	ToAmount   decimal.Decimal `json:"toAmount"`
}

// IsNoSwap reports whether the quote is the synthetic same-token quote.
func (q *Quote) IsNoSwap() bool {
	return q.ProviderID == NoSwapProviderID
}

// SwapTx describes the raw transaction a provider returned for executing a
// swap. Data is 0x-prefixed calldata; Value is a wei string.
type SwapTx struct {
	FromAddress   common.Address `json:"fromAddress"`
	ToAddress     common.Address `json:"toAddress"`
	Data          string         `json:"data"`
	Value         string         `json:"value"`
	InputPosition int            `json:"inputPosition"`
}

// SwapResult is a firm execution quote: the estimate plus the
// slippage-adjusted worst case and the transaction that performs it.
type SwapResult struct {
	Quote
	ToAmountMin decimal.Decimal `json:"toAmountMin"`
	Tx          SwapTx          `json:"tx"`
}

// StepToken marks where in a step's calldata the router substitutes a
// runtime-resolved amount. An index of -1 means the literal encoded amount is
// used as-is.
type StepToken struct {
	Token common.Address `json:"token"`
	Index int            `json:"index"`
}

// ZapStep is one call in an atomic multi-step order. Value is a wei string.
type ZapStep struct {
	Target common.Address `json:"target"`
	Value  string         `json:"value"`
	Data   string         `json:"data"`
	Tokens []StepToken    `json:"tokens"`
}

// OrderInput declares a token the user supplies to the order, in base units.
type OrderInput struct {
	Token  common.Address `json:"token"`
	Amount string         `json:"amount"`
}

// OrderOutput declares a token the order must return to the user, with the
// minimum acceptable amount in base units. A zero minimum marks a dust
// output covering incidental leftovers.
type OrderOutput struct {
	Token           common.Address `json:"token"`
	MinOutputAmount string         `json:"minOutputAmount"`
}

// Relay is an optional pre-call executed by the router before the steps.
type Relay struct {
	Target common.Address `json:"target"`
	Value  string         `json:"value"`
	Data   string         `json:"data"`
}

// ZapOrder is the inputs/outputs/relay declaration of a router order.
type ZapOrder struct {
	Inputs  []OrderInput  `json:"inputs"`
	Outputs []OrderOutput `json:"outputs"`
	Relay   Relay         `json:"relay"`
}

// ZapRequest pairs an order with its ordered steps, ready for the router's
// executeOrder entry point.
type ZapRequest struct {
	Order ZapOrder  `json:"order"`
	Steps []ZapStep `json:"steps"`
}

// TokenAmount is a token together with a human-decimal amount.
type TokenAmount struct {
	Token  Token           `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// VaultDepositResult is the planned vault leg of a zap: the expected share
// outputs and the encoded deposit call.
type VaultDepositResult struct {
	Outputs []TokenAmount `json:"outputs"`
	Zap     ZapStep       `json:"zap"`
}

// BuiltDeposit is a fully assembled deposit plan for one vault. It is a
// session-scoped artifact: any change to the selected token, amount, or
// allocation invalidates it.
type BuiltDeposit struct {
	VaultID        string              `json:"vaultId"`
	Swap           *SwapResult         `json:"swap"`
	VaultDeposit   *VaultDepositResult `json:"vaultDeposit"`
	Request        ZapRequest          `json:"zapRequest"`
	ExpectedTokens []Token             `json:"expectedTokens"`
}

// PipelineStage tracks how far a vault has progressed through the deposit
// pipeline. Failed is non-terminal: the user may retry from the stage
// preceding the failure.
type PipelineStage string

const (
	StageIdle     PipelineStage = "idle"
	StageLoaded   PipelineStage = "loaded"
	StageQuoted   PipelineStage = "quoted"
	StageBuilt    PipelineStage = "built"
	StageExecuted PipelineStage = "executed"
	StageFailed   PipelineStage = "failed"
)
