package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ERC-20 Transfer(address indexed from, address indexed to, uint256 value)
var TransferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const (
	nativeTransferGasLimit = 21000
	nativeDecimals         = 18

	rpcRequestsPerSec = 10
	rpcRequestBurst   = 20
)

// Transfer is one incoming token transfer observed on chain.
type Transfer struct {
	From      string
	Amount    decimal.Decimal
	TxHash    string
	Timestamp time.Time
}

// Client wraps the Ethereum RPC for the two operations the settlement engine
// needs: listing incoming stablecoin transfers to a deposit address and
// broadcasting a native-token payout. Every RPC call carries a bounded timeout
// so a stuck node degrades to a skipped cycle instead of stalling the pollers.
type Client struct {
	client         *ethclient.Client
	chainID        *big.Int
	tokenDecimals  int
	lookbackBlocks uint64
	callTimeout    time.Duration
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

func NewClient(rpcURL string, chainID int64, tokenDecimals int, lookbackBlocks uint64, callTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	return &Client{
		client:         client,
		chainID:        big.NewInt(chainID),
		tokenDecimals:  tokenDecimals,
		lookbackBlocks: lookbackBlocks,
		callTimeout:    callTimeout,
		rateLimiter:    rate.NewLimiter(rate.Limit(rpcRequestsPerSec), rpcRequestBurst),
		logger:         logger,
	}, nil
}

// ListIncomingTransfers returns token transfers into depositAddress observed at
// or after since, oldest first. Scanning is bounded to the configured lookback
// window, which covers the order lifetime with a wide margin.
func (c *Client) ListIncomingTransfers(ctx context.Context, depositAddress, tokenContract string, since time.Time) ([]Transfer, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	latestBlock, err := c.client.BlockNumber(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	fromBlock := uint64(0)
	if latestBlock > c.lookbackBlocks {
		fromBlock = latestBlock - c.lookbackBlocks
	}

	toTopic := common.BytesToHash(common.HexToAddress(depositAddress).Bytes())
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latestBlock),
		Addresses: []common.Address{common.HexToAddress(tokenContract)},
		Topics: [][]common.Hash{
			{TransferEventSig},
			nil, // any sender
			{toTopic},
		},
	}

	filterCtx, cancelFilter := context.WithTimeout(ctx, c.callTimeout)
	defer cancelFilter()

	logs, err := c.client.FilterLogs(filterCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfer logs: %w", err)
	}

	blockTimes := make(map[uint64]time.Time)
	var transfers []Transfer
	for _, eventLog := range logs {
		if len(eventLog.Topics) < 3 {
			continue
		}

		blockTime, err := c.blockTime(ctx, eventLog.BlockNumber, blockTimes)
		if err != nil {
			return nil, err
		}

		if blockTime.Before(since) {
			continue
		}

		from := common.BytesToAddress(eventLog.Topics[1].Bytes())
		value := new(big.Int).SetBytes(eventLog.Data)

		transfers = append(transfers, Transfer{
			From:      from.Hex(),
			Amount:    decimal.NewFromBigInt(value, -int32(c.tokenDecimals)),
			TxHash:    eventLog.TxHash.Hex(),
			Timestamp: blockTime,
		})
	}

	return transfers, nil
}

func (c *Client) blockTime(ctx context.Context, blockNumber uint64, cache map[uint64]time.Time) (time.Time, error) {
	if t, ok := cache[blockNumber]; ok {
		return t, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(callCtx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header for block %d: %w", blockNumber, err)
	}

	t := time.Unix(int64(header.Time), 0)
	cache[blockNumber] = t
	return t, nil
}

// SendNative signs and broadcasts a native-token transfer of amount to
// toAddress and returns the transaction hash.
func (c *Client) SendNative(ctx context.Context, toAddress string, amount decimal.Decimal, key *ecdsa.PrivateKey) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	fromAddress := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress(toAddress)
	value := amount.Shift(nativeDecimals).BigInt()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	nonce, err := c.client.PendingNonceAt(callCtx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasCtx, cancelGas := context.WithTimeout(ctx, c.callTimeout)
	defer cancelGas()

	gasPrice, err := c.client.SuggestGasPrice(gasCtx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	balanceCtx, cancelBalance := context.WithTimeout(ctx, c.callTimeout)
	defer cancelBalance()

	balance, err := c.client.BalanceAt(balanceCtx, fromAddress, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get wallet balance: %w", err)
	}

	cost := new(big.Int).Add(value, new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGasLimit)))
	if balance.Cmp(cost) < 0 {
		return "", fmt.Errorf("insufficient wallet balance: have %s, need %s", balance, cost)
	}

	tx := types.NewTransaction(nonce, to, value, nativeTransferGasLimit, gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, c.callTimeout)
	defer cancelSend()

	if err := c.client.SendTransaction(sendCtx, signedTx); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	c.logger.Info("Broadcast native transfer",
		zap.String("to", strings.ToLower(toAddress)),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash))

	return txHash, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
