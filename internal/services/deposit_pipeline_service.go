package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/events"
	"zap-backend/internal/metrics"
	"zap-backend/internal/models"
	"zap-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxVaultsPerSession caps how many vaults one session can target.
const maxVaultsPerSession = 3

// vaultEntry is one vault's slot inside a session: its loaded metadata,
// allocation percentage, and whatever pipeline artifacts have been produced
// for it so far.
type vaultEntry struct {
	Vault        models.Vault
	DepositToken models.Token
	Allocation   int
	Slippage     float64
	Stage        models.PipelineStage
	Quote        *models.Quote
	Built        *models.BuiltDeposit
	TxHash       string
	LastError    string
}

// DepositSession is one user's in-progress deposit flow. All mutation goes
// through DepositPipelineService, which serializes access.
type DepositSession struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	busy      bool
	fromToken *models.Token
	amount    decimal.Decimal
	slippage  float64
	entries   []*vaultEntry
}

// DepositPipelineService drives sessions through the deposit pipeline:
// load vaults, quote, build, execute. Batch operations run sequentially in
// vault order and halt on the first failure; artifacts produced before the
// failure are kept so the user can retry from where it stopped.
type DepositPipelineService struct {
	cfg       *config.Config
	vaults    *VaultService
	quotes    *QuoteService
	builder   *ZapBuilderService
	allowance *AllowanceService
	writer    clients.ChainWriter
	repo      repository.DepositRepository
	publisher *events.Publisher

	mu       sync.RWMutex
	sessions map[string]*DepositSession
}

// NewDepositPipelineService creates a new DepositPipelineService instance
func NewDepositPipelineService(
	cfg *config.Config,
	vaults *VaultService,
	quotes *QuoteService,
	builder *ZapBuilderService,
	allowance *AllowanceService,
	writer clients.ChainWriter,
	repo repository.DepositRepository,
	publisher *events.Publisher,
) *DepositPipelineService {
	return &DepositPipelineService{
		cfg:       cfg,
		vaults:    vaults,
		quotes:    quotes,
		builder:   builder,
		allowance: allowance,
		writer:    writer,
		repo:      repo,
		publisher: publisher,
		sessions:  make(map[string]*DepositSession),
	}
}

// NewSession creates an empty session with default slippage of 1%.
func (s *DepositPipelineService) NewSession() *DepositSession {
	session := &DepositSession{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		slippage:  0.01,
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session
}

// Session returns the session with the given id, or nil.
func (s *DepositPipelineService) Session(id string) *DepositSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// CloseSession removes a session. In-flight operations keep their local
// references and finish normally.
func (s *DepositPipelineService) CloseSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// AddVault loads a vault and adds it to the session. Duplicates are
// rejected and the session holds at most maxVaultsPerSession vaults.
// Allocations are rebalanced across all vaults after the add.
func (s *DepositPipelineService) AddVault(ctx context.Context, sessionID, vaultID string) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	for _, e := range session.entries {
		if e.Vault.ID == vaultID {
			return models.Validationf("vault '%s' is already in the session", vaultID)
		}
	}
	if len(session.entries) >= maxVaultsPerSession {
		return models.Validationf("session holds the maximum of %d vaults", maxVaultsPerSession)
	}

	vault, depositToken, err := s.vaults.LoadVault(ctx, vaultID)
	if err != nil {
		return err
	}

	session.entries = append(session.entries, &vaultEntry{
		Vault:        *vault,
		DepositToken: *depositToken,
		Slippage:     session.slippage,
		Stage:        models.StageLoaded,
	})
	rebalance(session.entries)
	session.clearDerived()

	s.publish(session, session.entries[len(session.entries)-1], "")
	return nil
}

// RemoveVault drops a vault from the session and rebalances the remaining
// allocations.
func (s *DepositPipelineService) RemoveVault(sessionID, vaultID string) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	for i, e := range session.entries {
		if e.Vault.ID == vaultID {
			session.entries = append(session.entries[:i], session.entries[i+1:]...)
			rebalance(session.entries)
			session.clearDerived()
			return nil
		}
	}
	return models.Validationf("vault '%s' is not in the session", vaultID)
}

// SetToken selects the token the user will deposit from. Clears any quotes
// and built plans, which are priced against the previous selection.
func (s *DepositPipelineService) SetToken(sessionID string, token models.Token) error {
	return s.edit(sessionID, func(session *DepositSession) error {
		session.fromToken = &token
		return nil
	})
}

// SetAmount sets the total amount (human decimal units of the selected
// token) to split across the session's vaults.
func (s *DepositPipelineService) SetAmount(sessionID string, amount decimal.Decimal) error {
	return s.edit(sessionID, func(session *DepositSession) error {
		if amount.Sign() <= 0 {
			return models.Validationf("amount must be positive, got %s", amount.String())
		}
		session.amount = amount
		return nil
	})
}

// SetSlippage sets the slippage tolerance as a fraction, e.g. 0.01 for 1%.
// With an empty vaultID it becomes the session default and applies to every
// vault; with a vault id it applies to that vault alone.
func (s *DepositPipelineService) SetSlippage(sessionID, vaultID string, slippage float64) error {
	return s.edit(sessionID, func(session *DepositSession) error {
		if slippage <= 0 || slippage > 0.49 {
			return models.Validationf("slippage must be in (0, 0.49], got %g", slippage)
		}
		if vaultID == "" {
			session.slippage = slippage
			for _, e := range session.entries {
				e.Slippage = slippage
			}
			return nil
		}
		for _, e := range session.entries {
			if e.Vault.ID == vaultID {
				e.Slippage = slippage
				return nil
			}
		}
		return models.Validationf("vault '%s' is not in the session", vaultID)
	})
}

func (s *DepositPipelineService) edit(sessionID string, fn func(*DepositSession) error) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	if err := fn(session); err != nil {
		return err
	}
	session.clearDerived()
	return nil
}

// QuoteAll fetches the best quote for every vault in order. The per-vault
// input is the session amount scaled by the vault's allocation percentage.
// The first failure halts the batch; quotes already obtained are kept.
func (s *DepositPipelineService) QuoteAll(ctx context.Context, sessionID string) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	if session.fromToken == nil {
		return models.Validationf("no deposit token selected")
	}
	if session.amount.Sign() <= 0 {
		return models.Validationf("no deposit amount set")
	}
	if len(session.entries) == 0 {
		return models.Validationf("session has no vaults")
	}

	for _, entry := range session.entries {
		perVault := session.amount.
			Mul(decimal.NewFromInt(int64(entry.Allocation))).
			Div(decimal.NewFromInt(100))

		quote, err := s.quotes.GetBestQuote(ctx, QuoteRequest{
			Vault:      entry.Vault,
			FromToken:  *session.fromToken,
			FromAmount: perVault,
			ToToken:    entry.DepositToken,
		})
		if err != nil {
			entry.Stage = models.StageFailed
			entry.LastError = err.Error()
			s.publish(session, entry, "")
			return &models.BatchError{VaultID: entry.Vault.ID, Err: err}
		}

		entry.Quote = quote
		entry.Built = nil
		entry.Stage = models.StageQuoted
		entry.LastError = ""
		s.publish(session, entry, "")
	}
	return nil
}

// BuildAll assembles an executable deposit plan for every quoted vault, in
// order, halting on the first failure.
func (s *DepositPipelineService) BuildAll(ctx context.Context, sessionID string) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	for _, entry := range session.entries {
		if entry.Quote == nil {
			return models.Validationf("vault '%s' has no quote", entry.Vault.ID)
		}
	}

	for _, entry := range session.entries {
		built, err := s.builder.BuildDeposit(ctx, entry.Vault, entry.Quote, entry.DepositToken, entry.Slippage)
		if err != nil {
			entry.Stage = models.StageFailed
			entry.LastError = err.Error()
			s.publish(session, entry, "")
			return &models.BatchError{VaultID: entry.Vault.ID, Err: err}
		}

		entry.Built = built
		entry.Stage = models.StageBuilt
		entry.LastError = ""
		s.publish(session, entry, "")
	}
	return nil
}

// ExecuteAll submits every built plan in order, halting on the first
// failure. A same-token ERC20 deposit skips the router entirely and calls
// the vault directly; everything else goes through executeOrder. Native
// inputs forward their value with the transaction instead of an approval.
// Vaults already executed are skipped, so retrying after a mid-batch failure
// never re-submits a deposit that was mined.
func (s *DepositPipelineService) ExecuteAll(ctx context.Context, sessionID string) error {
	session := s.Session(sessionID)
	if session == nil {
		return models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return err
	}
	defer session.end()

	for _, entry := range session.entries {
		if entry.Built == nil {
			return models.Validationf("vault '%s' has no built plan", entry.Vault.ID)
		}
	}

	for _, entry := range session.entries {
		if entry.Stage == models.StageExecuted {
			continue
		}
		mode, txHash, err := s.executeOne(ctx, session, entry)
		if err != nil {
			entry.Stage = models.StageFailed
			entry.LastError = err.Error()
			metrics.DepositsExecuted.WithLabelValues(mode, "error").Inc()
			s.persist(ctx, session, entry, mode)
			s.publish(session, entry, mode)
			return &models.BatchError{VaultID: entry.Vault.ID, Err: err}
		}

		entry.TxHash = txHash
		entry.Stage = models.StageExecuted
		entry.LastError = ""
		metrics.DepositsExecuted.WithLabelValues(mode, "ok").Inc()
		s.persist(ctx, session, entry, mode)
		s.publish(session, entry, mode)

		logrus.WithFields(logrus.Fields{
			"session": session.ID,
			"vault":   entry.Vault.ID,
			"mode":    mode,
			"tx":      txHash,
		}).Info("deposit executed")
	}
	return nil
}

func (s *DepositPipelineService) executeOne(ctx context.Context, session *DepositSession, entry *vaultEntry) (mode, txHash string, err error) {
	chainID := entry.Vault.ChainID
	fromToken := entry.Built.Swap.FromToken
	inputWei, ok := new(big.Int).SetString(entry.Built.Request.Order.Inputs[0].Amount, 10)
	if !ok {
		return "zap", "", models.Validationf("malformed input amount '%s'", entry.Built.Request.Order.Inputs[0].Amount)
	}

	// Same-token ERC20: the vault takes the token as-is, no order needed.
	if entry.Built.Swap.IsNoSwap() && !fromToken.IsNative() {
		hash, err := s.executeDirect(ctx, chainID, entry, fromToken, inputWei)
		if err != nil {
			return "direct", "", err
		}
		return "direct", hash.Hex(), nil
	}

	network := s.cfg.GetNetworkConfig(chainID)
	if network == nil || network.ZapRouter == "" {
		return "zap", "", &models.UnsupportedChainError{ChainID: chainID}
	}
	router := common.HexToAddress(network.ZapRouter)

	user, err := s.writer.SignerAddress(chainID)
	if err != nil {
		return "zap", "", &models.ChainWriteError{Op: "signer", Err: err}
	}

	nativeValue := big.NewInt(0)
	if fromToken.IsNative() {
		nativeValue = inputWei
	} else {
		spender := common.HexToAddress(network.ZapSpender())
		if err := s.allowance.EnsureAllowance(ctx, chainID, fromToken.Address, spender, inputWei); err != nil {
			return "zap", "", err
		}
	}

	hash, err := s.writer.ExecuteOrder(ctx, chainID, router, entry.Built.Request, user, nativeValue)
	if err != nil {
		return "zap", "", err
	}
	return "zap", hash.Hex(), nil
}

func (s *DepositPipelineService) executeDirect(ctx context.Context, chainID string, entry *vaultEntry, token models.Token, amountWei *big.Int) (hash common.Hash, err error) {
	if err := s.allowance.EnsureAllowance(ctx, chainID, token.Address, entry.Vault.ContractAddress, amountWei); err != nil {
		return hash, err
	}

	switch entry.Vault.Type {
	case models.VaultTypeERC4626:
		receiver, err := s.writer.SignerAddress(chainID)
		if err != nil {
			return hash, &models.ChainWriteError{Op: "signer", Err: err}
		}
		return s.writer.DepositERC4626(ctx, chainID, entry.Vault.ContractAddress, amountWei, receiver)
	default:
		return s.writer.DepositStandard(ctx, chainID, entry.Vault.ContractAddress, amountWei)
	}
}

func (s *DepositPipelineService) persist(ctx context.Context, session *DepositSession, entry *vaultEntry, mode string) {
	record := &models.DepositRecord{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		VaultID:   entry.Vault.ID,
		ChainID:   entry.Vault.ChainID,
		Stage:     entry.Stage,
		Mode:      mode,
		TxHash:    entry.TxHash,
		ErrorMsg:  entry.LastError,
	}
	if entry.Quote != nil {
		record.ProviderID = entry.Quote.ProviderID
		record.FromToken = entry.Quote.FromToken.Address.Hex()
		record.FromAmount = entry.Quote.FromAmount.String()
		record.ToAmount = entry.Quote.ToAmount.String()
	}
	if err := s.repo.Create(ctx, record); err != nil {
		logrus.WithError(err).WithField("vault", entry.Vault.ID).Warn("failed to persist deposit record")
	}
}

func (s *DepositPipelineService) publish(session *DepositSession, entry *vaultEntry, mode string) {
	s.publisher.StageChanged(events.PipelineEvent{
		SessionID: session.ID,
		VaultID:   entry.Vault.ID,
		ChainID:   entry.Vault.ChainID,
		Stage:     entry.Stage,
		Mode:      mode,
		TxHash:    entry.TxHash,
		Error:     entry.LastError,
	})
}

// begin claims the session for one operation. Concurrent operations on the
// same session are rejected rather than queued.
func (d *DepositSession) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return models.ErrSessionBusy
	}
	d.busy = true
	return nil
}

func (d *DepositSession) end() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

// clearDerived wipes quotes and built plans. Any change to the vault set,
// token, amount, or slippage invalidates everything priced off them.
func (d *DepositSession) clearDerived() {
	for _, e := range d.entries {
		e.Quote = nil
		e.Built = nil
		e.TxHash = ""
		e.LastError = ""
		if e.Stage != models.StageLoaded {
			e.Stage = models.StageLoaded
		}
	}
}

// rebalance splits 100% across the entries: each vault gets floor(100/n)
// and the last vault absorbs the remainder so the total is exactly 100.
func rebalance(entries []*vaultEntry) {
	n := len(entries)
	if n == 0 {
		return
	}
	base := 100 / n
	for _, e := range entries {
		e.Allocation = base
	}
	entries[n-1].Allocation = 100 - base*(n-1)
}

// VaultView is the serializable state of one vault inside a session.
type VaultView struct {
	VaultID    string               `json:"vaultId"`
	ChainID    string               `json:"chainId"`
	Allocation int                  `json:"allocation"`
	Slippage   float64              `json:"slippage"`
	Stage      models.PipelineStage `json:"stage"`
	Quote      *models.Quote        `json:"quote,omitempty"`
	Built      *models.BuiltDeposit `json:"built,omitempty"`
	TxHash     string               `json:"txHash,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// SessionView is the serializable state of a whole session.
type SessionView struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	FromToken *models.Token `json:"fromToken,omitempty"`
	Amount    string        `json:"amount"`
	Slippage  float64       `json:"slippage"`
	Vaults    []VaultView   `json:"vaults"`
}

// Snapshot returns a copy of the session state safe to serialize. It claims
// the session like any other operation, so it never observes a half-applied
// batch.
func (s *DepositPipelineService) Snapshot(sessionID string) (*SessionView, error) {
	session := s.Session(sessionID)
	if session == nil {
		return nil, models.Validationf("unknown session '%s'", sessionID)
	}
	if err := session.begin(); err != nil {
		return nil, err
	}
	defer session.end()

	view := &SessionView{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		FromToken: session.fromToken,
		Amount:    session.amount.String(),
		Slippage:  session.slippage,
		Vaults:    make([]VaultView, 0, len(session.entries)),
	}
	for _, e := range session.entries {
		view.Vaults = append(view.Vaults, VaultView{
			VaultID:    e.Vault.ID,
			ChainID:    e.Vault.ChainID,
			Allocation: e.Allocation,
			Slippage:   e.Slippage,
			Stage:      e.Stage,
			Quote:      e.Quote,
			Built:      e.Built,
			TxHash:     e.TxHash,
			Error:      e.LastError,
		})
	}
	return view, nil
}
