package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"nftminter"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jpillora/backoff"
	"github.com/ninja-software/terror/v2"
	"github.com/rs/zerolog"
)

const (
	defaultConfirmTimeout = 5 * time.Minute
	defaultPollMin        = 1 * time.Second
	defaultPollMax        = 15 * time.Second
)

// Backend is the node surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// NFTItem is the contract's listing view of a token
type NFTItem struct {
	TokenId  *big.Int       `json:"token_id"`
	Seller   common.Address `json:"seller"`
	Owner    common.Address `json:"owner"`
	Price    *big.Int       `json:"price"`
	IsListed bool           `json:"is_listed"`
	TokenUri string         `json:"token_uri"`
}

// Client submits mints to the collectible contract and waits for their receipts.
//
// Token ids are not returned by the contract calls. Callers read them from the
// receipt: for a batch, logs at indices [0, count) correspond positionally to
// the submitted metadata CIDs, in submission order.
type Client struct {
	backend  Backend
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address

	signer  *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	confirmTimeout time.Duration
	pollMin        time.Duration
	pollMax        time.Duration

	log *zerolog.Logger
}

// Dial connects to the node at params.NodeAddr
func Dial(ctx context.Context, params *nftminter.LedgerParams, log *zerolog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, params.NodeAddr)
	if err != nil {
		return nil, terror.Error(err, "Failed to connect to the ledger node.")
	}
	return NewClient(ec, params, log)
}

func NewClient(backend Backend, params *nftminter.LedgerParams, log *zerolog.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(CollectibleABI))
	if err != nil {
		return nil, terror.Error(err, "Failed to parse contract ABI.")
	}

	c := &Client{
		backend:        backend,
		contract:       bind.NewBoundContract(params.ContractAddr, parsed, backend, backend, backend),
		abi:            parsed,
		address:        params.ContractAddr,
		chainID:        big.NewInt(params.ChainID),
		confirmTimeout: params.ConfirmTimeout,
		pollMin:        params.PollMin,
		pollMax:        params.PollMax,
		log:            log,
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	if c.pollMin <= 0 {
		c.pollMin = defaultPollMin
	}
	if c.pollMax < c.pollMin {
		c.pollMax = defaultPollMax
		if c.pollMax < c.pollMin {
			c.pollMax = c.pollMin
		}
	}

	if params.SignerPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(params.SignerPrivateKey, "0x"))
		if err != nil {
			return nil, terror.Error(err, "Invalid signer private key.")
		}
		c.signer = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// From is the address paying for mint transactions
func (c *Client) From() common.Address {
	return c.from
}

// ContractAddress is the collectible contract the client talks to
func (c *Client) ContractAddress() common.Address {
	return c.address
}

// SubmitMint sends mintItem(recipient, metadataCID, royaltyNumerator)
func (c *Client) SubmitMint(ctx context.Context, recipient common.Address, metadataCID string, royaltyNumerator int) (common.Hash, error) {
	req := &nftminter.MintRequest{Recipient: recipient, MetadataCIDs: []string{metadataCID}, RoyaltyNumerator: royaltyNumerator}
	if err := nftminter.ValidateMintRequest(req); err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, MethodMintItem, recipient, metadataCID, big.NewInt(int64(royaltyNumerator)))
}

// SubmitBatchMint sends batchMintItems(recipient, metadataCIDs, royaltyNumerator)
func (c *Client) SubmitBatchMint(ctx context.Context, recipient common.Address, metadataCIDs []string, royaltyNumerator int) (common.Hash, error) {
	req := &nftminter.MintRequest{Recipient: recipient, MetadataCIDs: metadataCIDs, RoyaltyNumerator: royaltyNumerator}
	if err := nftminter.ValidateMintRequest(req); err != nil {
		return common.Hash{}, err
	}
	uris := make([]string, len(metadataCIDs))
	copy(uris, metadataCIDs)
	return c.transact(ctx, MethodBatchMint, recipient, uris, big.NewInt(int64(royaltyNumerator)))
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, nftminter.TransactionError(fmt.Errorf("no signer key configured"), "Minting is not available.")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.signer, c.chainID)
	if err != nil {
		return common.Hash{}, nftminter.TransactionError(err, "Failed to prepare the mint transaction.")
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return common.Hash{}, nftminter.TransactionError(err, "Mint transaction was rejected.")
	}
	c.log.Info().Str("method", method).Str("tx_hash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Msg("submitted mint transaction")
	return tx.Hash(), nil
}

// Confirm blocks until the transaction has a receipt. It fails when the
// transaction reverted, was dropped by the node, or the confirm timeout passed.
func (c *Client) Confirm(ctx context.Context, txHash common.Hash) (*nftminter.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	b := &backoff.Backoff{
		Min:    c.pollMin,
		Max:    c.pollMax,
		Factor: 2,
	}
	l := c.log.With().Str("tx_hash", txHash.Hex()).Logger()

	for {
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && r != nil {
			if r.Status == types.ReceiptStatusFailed {
				return nil, nftminter.TransactionError(fmt.Errorf("transaction %s reverted", txHash.Hex()), "Mint transaction was reverted.")
			}
			l.Debug().Uint64("gas_used", r.GasUsed).Msg("transaction confirmed")
			return FromTypesReceipt(r), nil
		}

		switch {
		case err == nil, errors.Is(err, ethereum.NotFound):
			_, _, txErr := c.backend.TransactionByHash(ctx, txHash)
			if errors.Is(txErr, ethereum.NotFound) {
				return nil, nftminter.TransactionError(fmt.Errorf("transaction %s dropped", txHash.Hex()), "Mint transaction was dropped by the network.")
			}
		case ctx.Err() == nil:
			l.Warn().Err(err).Msg("failed to fetch receipt")
		}

		select {
		case <-ctx.Done():
			return nil, nftminter.TransactionError(fmt.Errorf("waiting for %s: %w", txHash.Hex(), ctx.Err()), "Timed out waiting for the mint transaction to confirm.")
		case <-time.After(b.Duration()):
		}
	}
}

// GetNFTItem reads the listing view of a token
func (c *Client) GetNFTItem(ctx context.Context, tokenID uint64) (*NFTItem, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetNFTItem, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, terror.Error(err, "Failed to read token from the ledger.")
	}
	if len(out) == 0 {
		return nil, terror.Error(fmt.Errorf("empty response for token %d", tokenID), "Failed to read token from the ledger.")
	}
	item, ok := abi.ConvertType(out[0], new(NFTItem)).(*NFTItem)
	if !ok {
		return nil, terror.Error(fmt.Errorf("unexpected response type %T", out[0]), "Failed to read token from the ledger.")
	}
	return item, nil
}

// Ping checks the node is reachable
func (c *Client) Ping(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.backend.HeaderByNumber(ctxTimeout, nil)
	if err != nil {
		return terror.Error(err)
	}
	return nil
}

// FromTypesReceipt converts a node receipt into the domain receipt
func FromTypesReceipt(r *types.Receipt) *nftminter.Receipt {
	out := &nftminter.Receipt{
		TxHash:  r.TxHash,
		GasUsed: new(big.Int).SetUint64(r.GasUsed),
		Logs:    make([]nftminter.LogEntry, 0, len(r.Logs)),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	for _, lg := range r.Logs {
		if lg == nil {
			continue
		}
		topics := make([]common.Hash, len(lg.Topics))
		copy(topics, lg.Topics)
		out.Logs = append(out.Logs, nftminter.LogEntry{
			Address: lg.Address,
			Topics:  topics,
			Data:    lg.Data,
		})
	}
	return out
}
