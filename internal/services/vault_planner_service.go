package services

import (
	"context"
	"errors"
	"math/big"

	"zap-backend/internal/clients"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// sharesDecimals is the decimal count of vault share tokens, independent of
// the deposit token's decimals.
const sharesDecimals = 18

var (
	shareScale        = new(big.Int).Exp(big.NewInt(10), big.NewInt(sharesDecimals), nil)
	errZeroSharePrice = errors.New("vault reported zero share price")
)

// VaultPlannerService plans the vault leg of a deposit: expected shares from
// the current share price, plus the encoded deposit step.
type VaultPlannerService struct {
	reader clients.ChainReader
}

// NewVaultPlannerService creates a new VaultPlannerService instance
func NewVaultPlannerService(reader clients.ChainReader) *VaultPlannerService {
	return &VaultPlannerService{reader: reader}
}

// PlanVaultDeposit reads the vault's share price and plans depositing
// inputAmount of depositToken. expectedShares = floor(inputWei * 1e18 /
// pricePerFullShare), reported as an 18-decimal amount. A failed share-price
// read is fatal to the current build and never retried automatically.
func (s *VaultPlannerService) PlanVaultDeposit(ctx context.Context, vault models.Vault, depositToken models.Token, inputAmount decimal.Decimal) (*models.VaultDepositResult, error) {
	ppfs, err := s.reader.PricePerFullShare(ctx, vault.ChainID, vault.ContractAddress)
	if err != nil {
		return nil, &models.ChainReadError{Op: "getPricePerFullShare", Err: err}
	}
	if ppfs.Sign() <= 0 {
		return nil, &models.ChainReadError{Op: "getPricePerFullShare", Err: errZeroSharePrice}
	}

	inputWei := utils.ToBaseUnitsBig(inputAmount, depositToken.Decimals)
	expectedSharesWei := new(big.Int).Div(new(big.Int).Mul(inputWei, shareScale), ppfs)
	expectedShares := utils.FromBaseUnitsBig(expectedSharesWei, sharesDecimals)

	shareToken := depositToken
	shareToken.Address = vault.ContractAddress
	outputs := []models.TokenAmount{{Token: shareToken, Amount: expectedShares}}

	var step models.ZapStep
	if depositToken.IsNative() {
		step = models.ZapStep{
			Target: vault.ContractAddress,
			Value:  inputWei.String(),
			Data:   clients.EncodeDepositNative(),
			Tokens: []models.StepToken{{Token: utils.ZeroAddress, Index: utils.NoInsertIndex}},
		}
	} else {
		step = models.ZapStep{
			Target: vault.ContractAddress,
			Value:  "0",
			Data:   clients.EncodeDepositAll(),
			Tokens: []models.StepToken{{Token: depositToken.Address, Index: utils.NoInsertIndex}},
		}
	}

	logrus.WithFields(logrus.Fields{
		"vault":          vault.ID,
		"ppfs":           ppfs.String(),
		"expectedShares": expectedShares.String(),
	}).Debug("vault deposit planned")

	return &models.VaultDepositResult{Outputs: outputs, Zap: step}, nil
}
