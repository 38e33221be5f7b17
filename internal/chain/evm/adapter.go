package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shares-gate/internal/chain"
	"shares-gate/internal/storage"
)

const (
	tradeABIJSON = `[{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"trader","type":"address"},{"indexed":false,"internalType":"address","name":"subject","type":"address"},{"indexed":false,"internalType":"bool","name":"isBuy","type":"bool"},{"indexed":false,"internalType":"uint256","name":"shareAmount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"ethAmount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"protocolEthAmount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"subjectEthAmount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"supply","type":"uint256"}],"name":"Trade","type":"event"}]`

	balanceABIJSON = `[{"inputs":[{"internalType":"address","name":"","type":"address"},{"internalType":"address","name":"","type":"address"}],"name":"sharesBalance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	// Blocks fetched per iteration, bounding RPC payload size and memory.
	defaultBatchBlocks = 100
)

var (
	tradeABI   abi.ABI
	balanceABI abi.ABI
	tradeTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(tradeABIJSON))
	if err != nil {
		panic("failed to parse Trade ABI: " + err.Error())
	}
	tradeABI = parsed
	tradeTopic = tradeABI.Events["Trade"].ID

	parsed, err = abi.JSON(strings.NewReader(balanceABIJSON))
	if err != nil {
		panic("failed to parse sharesBalance ABI: " + err.Error())
	}
	balanceABI = parsed
}

// Options parameterise the EVM adapter.
type Options struct {
	Name            string
	RPCURL          string
	ContractAddress string
	StartBlock      uint64
	BatchBlocks     uint64
	Timeout         time.Duration
}

// Adapter ingests Trade events from an EVM-style chain by contiguous block
// ranges and serves signature recovery plus live balance reads.
type Adapter struct {
	opts      Options
	contract  common.Address
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// New builds an EVM adapter. The contract address must parse; everything
// else is validated lazily at call time.
func New(opts Options, logger zerolog.Logger) (*Adapter, error) {
	if opts.Name == "" {
		opts.Name = "monad"
	}
	if opts.BatchBlocks == 0 {
		opts.BatchBlocks = defaultBatchBlocks
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", opts.ContractAddress)
	}

	return &Adapter{
		opts:     opts,
		contract: common.HexToAddress(opts.ContractAddress),
		logger:   logger.With().Str("component", "evm_adapter").Str("chain", opts.Name).Logger(),
	}, nil
}

// Name implements chain.Adapter.
func (a *Adapter) Name() string {
	return a.opts.Name
}

// Bootstrap implements chain.Source.
func (a *Adapter) Bootstrap() storage.Checkpoint {
	return storage.Checkpoint{ChainType: a.opts.Name, Position: a.opts.StartBlock}
}

// Next fetches the next capped block window of Trade events. A nil batch
// means the checkpoint is at or beyond the chain head.
func (a *Adapter) Next(ctx context.Context, cp storage.Checkpoint) (*chain.Batch, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	head, err := client.BlockNumber(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get head block: %w", err)
	}

	if cp.Position >= head {
		return nil, nil
	}

	end := cp.Position + a.opts.BatchBlocks
	if end > head {
		end = head
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(cp.Position),
		ToBlock:   new(big.Int).SetUint64(end),
		Addresses: []common.Address{a.contract},
		Topics:    [][]common.Hash{{tradeTopic}},
	}

	callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
	logs, err := client.FilterLogs(callCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", cp.Position, end, err)
	}

	events := make([]chain.TradeEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, decodeErr := a.decodeTrade(lg)
		if decodeErr != nil {
			a.logger.Error().Err(decodeErr).
				Str("tx", lg.TxHash.Hex()).
				Uint("index", lg.Index).
				Msg("undecodable Trade log, skipping")
			continue
		}
		events = append(events, ev)
	}

	return &chain.Batch{
		Events: events,
		Next:   storage.Checkpoint{ChainType: a.opts.Name, Position: end},
	}, nil
}

func (a *Adapter) decodeTrade(lg types.Log) (chain.TradeEvent, error) {
	values, err := tradeABI.Unpack("Trade", lg.Data)
	if err != nil {
		return chain.TradeEvent{}, fmt.Errorf("unpack Trade: %w", err)
	}
	if len(values) != 8 {
		return chain.TradeEvent{}, fmt.Errorf("unexpected Trade field count %d", len(values))
	}

	trader, ok := values[0].(common.Address)
	if !ok {
		return chain.TradeEvent{}, errors.New("trader field is not an address")
	}
	subject, ok := values[1].(common.Address)
	if !ok {
		return chain.TradeEvent{}, errors.New("subject field is not an address")
	}
	isBuy, ok := values[2].(bool)
	if !ok {
		return chain.TradeEvent{}, errors.New("isBuy field is not a bool")
	}
	shareAmount, ok := values[3].(*big.Int)
	if !ok {
		return chain.TradeEvent{}, errors.New("shareAmount field is not a uint256")
	}

	return chain.TradeEvent{
		Trader:    hex.EncodeToString(trader.Bytes()),
		Subject:   hex.EncodeToString(subject.Bytes()),
		IsBuy:     isBuy,
		Amount:    decimal.NewFromBigInt(shareAmount, 0),
		TxID:      lg.TxHash.Hex(),
		LogIndex:  uint64(lg.Index),
		ChainType: a.opts.Name,
	}, nil
}

// VerifySignature recovers the signer of an EIP-191 personal message from a
// 65-byte hex signature and returns its lowercase hex address.
func (a *Adapter) VerifySignature(challenge, signature string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", chain.ErrMalformedSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: signature must be %d bytes, got %d", chain.ErrMalformedSignature, crypto.SignatureLength, len(raw))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, raw)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(challenge))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chain.ErrRecoveryFailed, err)
	}

	addr := crypto.PubkeyToAddress(*pub)
	return hex.EncodeToString(addr.Bytes()), nil
}

// ShareBalance performs the live sharesBalance(subject, user) view call.
func (a *Adapter) ShareBalance(ctx context.Context, subject, user string) (uint64, error) {
	if !common.IsHexAddress(withHexPrefix(subject)) {
		return 0, fmt.Errorf("invalid subject address %q", subject)
	}
	if !common.IsHexAddress(withHexPrefix(user)) {
		return 0, fmt.Errorf("invalid user address %q", user)
	}

	client, err := a.getClient(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := balanceABI.Pack("sharesBalance", common.HexToAddress(subject), common.HexToAddress(user))
	if err != nil {
		return 0, fmt.Errorf("pack sharesBalance: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	res, err := client.CallContract(callCtx, ethereum.CallMsg{To: &a.contract, Data: payload}, nil)
	if err != nil {
		return 0, fmt.Errorf("call sharesBalance: %w", err)
	}

	outputs, err := balanceABI.Unpack("sharesBalance", res)
	if err != nil {
		return 0, fmt.Errorf("unpack sharesBalance: %w", err)
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected sharesBalance response")
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode sharesBalance output")
	}

	return balance.Uint64(), nil
}

func (a *Adapter) getClient(ctx context.Context) (*ethclient.Client, error) {
	a.clientMux.Lock()
	defer a.clientMux.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	client, err := ethclient.DialContext(ctx, a.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func withHexPrefix(addr string) string {
	if strings.HasPrefix(addr, "0x") {
		return addr
	}
	return "0x" + addr
}

var (
	_ chain.Adapter = (*Adapter)(nil)
	_ chain.Source  = (*Adapter)(nil)
)
