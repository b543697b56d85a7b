package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"zap-backend/internal/config"
	"zap-backend/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ChainReader is the read half of the chain capability consumed by the
// pipeline: ERC20 metadata/balances/allowances and vault share price.
type ChainReader interface {
	ERC20Meta(ctx context.Context, chainID string, token common.Address) (decimals int, symbol string, err error)
	ERC20BalanceOf(ctx context.Context, chainID string, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, chainID string, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, chainID string, token, owner, spender common.Address) (*big.Int, error)
	PricePerFullShare(ctx context.Context, chainID string, vault common.Address) (*big.Int, error)
}

// ChainWriter is the write half: approvals, direct vault deposits, and the
// router's executeOrder entry point. Writes block until the transaction is
// mined and return its hash.
type ChainWriter interface {
	SignerAddress(chainID string) (common.Address, error)
	Approve(ctx context.Context, chainID string, token, spender common.Address, amount *big.Int) (common.Hash, error)
	DepositStandard(ctx context.Context, chainID string, vault common.Address, amount *big.Int) (common.Hash, error)
	DepositERC4626(ctx context.Context, chainID string, vault common.Address, amount *big.Int, receiver common.Address) (common.Hash, error)
	ExecuteOrder(ctx context.Context, chainID string, router common.Address, request models.ZapRequest, user common.Address, nativeValue *big.Int) (common.Hash, error)
}

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const vaultABIJSON = `[
	{"constant":true,"inputs":[],"name":"getPricePerFullShare","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[],"name":"depositAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[],"name":"depositBNB","outputs":[],"stateMutability":"payable","type":"function"}
]`

const erc4626ABIJSON = `[
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"name":"deposit","outputs":[{"type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// zapRouterABIJSON is the router's executeOrder wire contract. Field names,
// tuple ordering, and the int32 substitution index must match the deployed
// router exactly.
const zapRouterABIJSON = `[
	{"inputs":[
		{"components":[
			{"components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"inputs","type":"tuple[]"},
			{"components":[{"name":"token","type":"address"},{"name":"minOutputAmount","type":"uint256"}],"name":"outputs","type":"tuple[]"},
			{"components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"relay","type":"tuple"},
			{"name":"user","type":"address"},
			{"name":"recipient","type":"address"}
		],"name":"_order","type":"tuple"},
		{"components":[
			{"name":"target","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"data","type":"bytes"},
			{"components":[{"name":"token","type":"address"},{"name":"index","type":"int32"}],"name":"tokens","type":"tuple[]"}
		],"name":"_route","type":"tuple[]"}
	],"name":"executeOrder","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	erc20ABI     abi.ABI
	vaultABI     abi.ABI
	erc4626ABI   abi.ABI
	zapRouterABI abi.ABI
	abiOnce      sync.Once
)

func loadABIs() {
	abiOnce.Do(func() {
		var err error
		if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
			panic(fmt.Sprintf("invalid erc20 ABI: %v", err))
		}
		if vaultABI, err = abi.JSON(strings.NewReader(vaultABIJSON)); err != nil {
			panic(fmt.Sprintf("invalid vault ABI: %v", err))
		}
		if erc4626ABI, err = abi.JSON(strings.NewReader(erc4626ABIJSON)); err != nil {
			panic(fmt.Sprintf("invalid erc4626 ABI: %v", err))
		}
		if zapRouterABI, err = abi.JSON(strings.NewReader(zapRouterABIJSON)); err != nil {
			panic(fmt.Sprintf("invalid zap router ABI: %v", err))
		}
	})
}

// EthChainClient implements ChainReader and ChainWriter over go-ethereum,
// with one lazily dialed client per configured chain.
type EthChainClient struct {
	mu        sync.Mutex
	clients   map[string]*ethclient.Client
	cfg       *config.Config
	gasOracle *GasPriceClient
}

// NewEthChainClient creates a chain client over the configured networks.
func NewEthChainClient(cfg *config.Config) *EthChainClient {
	loadABIs()
	return &EthChainClient{
		clients:   make(map[string]*ethclient.Client),
		cfg:       cfg,
		gasOracle: NewGasPriceClient(),
	}
}

// getClient returns the cached client for a chain, dialing the first
// reachable configured RPC endpoint on first use.
func (c *EthChainClient) getClient(ctx context.Context, chainID string) (*ethclient.Client, *config.NetworkConfig, error) {
	network := c.cfg.GetNetworkConfig(chainID)
	if network == nil || !network.Enabled {
		return nil, nil, fmt.Errorf("chain %s not configured", chainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[chainID]; ok {
		return client, network, nil
	}

	var lastErr error
	for _, endpoint := range network.RPCEndpoints {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = client.NetworkID(checkCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		logrus.WithFields(logrus.Fields{
			"chain":    chainID,
			"endpoint": endpoint,
		}).Info("connected RPC endpoint")
		c.clients[chainID] = client
		return client, network, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC endpoints configured")
	}
	return nil, nil, fmt.Errorf("failed to connect to chain %s: %w", chainID, lastErr)
}

func (c *EthChainClient) call(ctx context.Context, chainID string, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	client, _, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(method, out)
}

// ERC20Meta reads decimals and symbol in one pass.
func (c *EthChainClient) ERC20Meta(ctx context.Context, chainID string, token common.Address) (int, string, error) {
	decOut, err := c.call(ctx, chainID, token, erc20ABI, "decimals")
	if err != nil {
		return 0, "", fmt.Errorf("decimals(%s): %w", token.Hex(), err)
	}
	symOut, err := c.call(ctx, chainID, token, erc20ABI, "symbol")
	if err != nil {
		return 0, "", fmt.Errorf("symbol(%s): %w", token.Hex(), err)
	}
	decimals := int(decOut[0].(uint8))
	symbol := symOut[0].(string)
	return decimals, symbol, nil
}

// ERC20BalanceOf reads an ERC20 balance.
func (c *EthChainClient) ERC20BalanceOf(ctx context.Context, chainID string, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, chainID, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", token.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// NativeBalance reads the native asset balance of an address.
func (c *EthChainClient) NativeBalance(ctx context.Context, chainID string, owner common.Address) (*big.Int, error) {
	client, _, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, owner, nil)
}

// Allowance reads the current ERC20 allowance(owner, spender).
func (c *EthChainClient) Allowance(ctx context.Context, chainID string, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, chainID, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s): %w", token.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// PricePerFullShare reads the vault's share price (1e18-scaled).
func (c *EthChainClient) PricePerFullShare(ctx context.Context, chainID string, vault common.Address) (*big.Int, error) {
	out, err := c.call(ctx, chainID, vault, vaultABI, "getPricePerFullShare")
	if err != nil {
		return nil, fmt.Errorf("getPricePerFullShare(%s): %w", vault.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// SignerAddress returns the configured signing address for a chain.
func (c *EthChainClient) SignerAddress(chainID string) (common.Address, error) {
	network := c.cfg.GetNetworkConfig(chainID)
	if network == nil || network.PrivateKey == "" {
		return common.Address{}, fmt.Errorf("no signing key configured for chain %s", chainID)
	}
	key, err := crypto.HexToECDSA(network.PrivateKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key for chain %s: %w", chainID, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// Approve submits an ERC20 approve and waits for it to be mined.
func (c *EthChainClient) Approve(ctx context.Context, chainID string, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.sendAndWait(ctx, chainID, token, big.NewInt(0), data)
}

// DepositStandard calls deposit(uint256) on a standard vault.
func (c *EthChainClient) DepositStandard(ctx context.Context, chainID string, vault common.Address, amount *big.Int) (common.Hash, error) {
	data, err := vaultABI.Pack("deposit", amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack deposit: %w", err)
	}
	return c.sendAndWait(ctx, chainID, vault, big.NewInt(0), data)
}

// DepositERC4626 calls deposit(uint256,address) on an ERC4626 vault.
func (c *EthChainClient) DepositERC4626(ctx context.Context, chainID string, vault common.Address, amount *big.Int, receiver common.Address) (common.Hash, error) {
	data, err := erc4626ABI.Pack("deposit", amount, receiver)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack deposit: %w", err)
	}
	return c.sendAndWait(ctx, chainID, vault, big.NewInt(0), data)
}

// routerOrder and routerStep mirror the executeOrder tuple layout for abi
// packing.
type routerOrderInput struct {
	Token  common.Address
	Amount *big.Int
}

type routerOrderOutput struct {
	Token           common.Address
	MinOutputAmount *big.Int
}

type routerRelay struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

type routerOrder struct {
	Inputs    []routerOrderInput
	Outputs   []routerOrderOutput
	Relay     routerRelay
	User      common.Address
	Recipient common.Address
}

type routerStepToken struct {
	Token common.Address
	Index int32
}

type routerStep struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
	Tokens []routerStepToken
}

// ExecuteOrder packs and submits the router's executeOrder call. Zero-amount
// inputs are filtered out before packing; nativeValue is forwarded as the
// transaction value when the order's input token is the native asset.
func (c *EthChainClient) ExecuteOrder(ctx context.Context, chainID string, router common.Address, request models.ZapRequest, user common.Address, nativeValue *big.Int) (common.Hash, error) {
	order := routerOrder{
		Relay:     routerRelay{Target: request.Order.Relay.Target, Value: mustWei(request.Order.Relay.Value), Data: common.FromHex(request.Order.Relay.Data)},
		User:      user,
		Recipient: user,
	}
	for _, in := range request.Order.Inputs {
		amount := mustWei(in.Amount)
		if amount.Sign() <= 0 {
			continue
		}
		order.Inputs = append(order.Inputs, routerOrderInput{Token: in.Token, Amount: amount})
	}
	for _, out := range request.Order.Outputs {
		order.Outputs = append(order.Outputs, routerOrderOutput{Token: out.Token, MinOutputAmount: mustWei(out.MinOutputAmount)})
	}

	steps := make([]routerStep, 0, len(request.Steps))
	for _, s := range request.Steps {
		step := routerStep{
			Target: s.Target,
			Value:  mustWei(s.Value),
			Data:   common.FromHex(s.Data),
		}
		for _, t := range s.Tokens {
			step.Tokens = append(step.Tokens, routerStepToken{Token: t.Token, Index: int32(t.Index)})
		}
		steps = append(steps, step)
	}

	data, err := zapRouterABI.Pack("executeOrder", order, steps)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack executeOrder: %w", err)
	}
	if nativeValue == nil {
		nativeValue = big.NewInt(0)
	}
	return c.sendAndWait(ctx, chainID, router, nativeValue, data)
}

// sendAndWait signs, submits, and waits for a transaction, failing on a
// reverted receipt.
func (c *EthChainClient) sendAndWait(ctx context.Context, chainID string, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	client, network, err := c.getClient(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if network.PrivateKey == "" {
		return common.Hash{}, fmt.Errorf("no signing key configured for chain %s", chainID)
	}

	key, err := crypto.HexToECDSA(network.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid private key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice := c.trackerGasPrice(ctx, network)
	if gasPrice == nil {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit := network.GasLimit
	if gasLimit == 0 {
		gasLimit, err = client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		// headroom against estimate drift between simulation and inclusion
		gasLimit = gasLimit + gasLimit/5
	}

	evmChainID, err := client.NetworkID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(evmChainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"chain": chainID,
		"to":    to.Hex(),
		"tx":    signedTx.Hash().Hex(),
	}).Info("transaction submitted")

	receipt, err := bind.WaitMined(ctx, client, signedTx)
	if err != nil {
		return signedTx.Hash(), fmt.Errorf("failed waiting for transaction %s: %w", signedTx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return signedTx.Hash(), fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex())
	}
	return signedTx.Hash(), nil
}

// trackerGasPrice asks the chain's scan gas oracle when one is configured.
// Returns nil on any failure so the caller falls back to the node.
func (c *EthChainClient) trackerGasPrice(ctx context.Context, network *config.NetworkConfig) *big.Int {
	if network.GasTrackerURL == "" {
		return nil
	}
	if c.gasOracle == nil {
		return nil
	}
	price, err := c.gasOracle.GetGasPrice(ctx, network.GasTrackerURL)
	if err != nil {
		logrus.WithError(err).WithField("tracker", network.GasTrackerURL).Debug("gas tracker unavailable")
		return nil
	}
	return price
}

// EncodeDepositAll returns the calldata for the zero-argument depositAll()
// vault call used as a zap step.
func EncodeDepositAll() string {
	loadABIs()
	data, err := vaultABI.Pack("depositAll")
	if err != nil {
		panic(fmt.Sprintf("failed to pack depositAll: %v", err))
	}
	return "0x" + common.Bytes2Hex(data)
}

// EncodeDepositNative returns the calldata for the payable zero-argument
// native deposit call used as a zap step.
func EncodeDepositNative() string {
	loadABIs()
	data, err := vaultABI.Pack("depositBNB")
	if err != nil {
		panic(fmt.Sprintf("failed to pack depositBNB: %v", err))
	}
	return "0x" + common.Bytes2Hex(data)
}

func mustWei(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
