package nftminter

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxRoyaltyNumerator caps the royalty at 10% (denominator 10,000)
	MaxRoyaltyNumerator = 1000
	// RoyaltyDenominator is the ERC-2981 fee denominator used by the contract
	RoyaltyDenominator = 10000
	// MaxBatchSize is the largest batch the contract accepts in one batchMintItems call
	MaxBatchSize = 50
)

// UploadedAsset identifies content already pinned on the storage network
type UploadedAsset struct {
	CID string `json:"cid"`
}

// Attribute is one trait of a metadata document. Trait names may repeat.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MetadataDocument is the token metadata published alongside the image
type MetadataDocument struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	ImageCID    string      `json:"image_cid"`
	Attributes  []Attribute `json:"attributes"`
}

// MintRequest is what gets submitted to the ledger. A single mint carries one metadata CID.
type MintRequest struct {
	Recipient        common.Address `json:"recipient"`
	MetadataCIDs     []string       `json:"metadata_cids"`
	RoyaltyNumerator int            `json:"royalty_numerator"`
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// MintTransaction tracks a submitted mint until the ledger resolves it
type MintTransaction struct {
	Hash    common.Hash `json:"hash"`
	Method  string      `json:"method"`
	Status  TxStatus    `json:"status"`
	Receipt *Receipt    `json:"receipt,omitempty"`
}

// LogEntry is an event log emitted by the transaction
type LogEntry struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// Receipt is the ledger confirmation of a transaction
type Receipt struct {
	TxHash            common.Hash `json:"transaction_hash"`
	BlockNumber       uint64      `json:"block_number"`
	GasUsed           *big.Int    `json:"gas_used"`
	EffectiveGasPrice *big.Int    `json:"effective_gas_price"`
	Logs              []LogEntry  `json:"logs"`
}

// GasRecord is the gas accounting row kept per mint transaction
type GasRecord struct {
	TxHash      common.Hash    `json:"tx_hash"`
	MethodName  string         `json:"method_name"`
	GasUsed     *big.Int       `json:"gas_used"`
	GasPrice    *big.Int       `json:"gas_price"`
	TotalCost   *big.Int       `json:"total_cost"`
	UserAddress common.Address `json:"user_address"`
	BlockNumber uint64         `json:"block_number"`
}

// LifecycleState is the off-chain listing status of a minted token
type LifecycleState int

const (
	LifecycleActive LifecycleState = iota
	LifecycleListed
	LifecycleSold
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleActive:
		return "Active"
	case LifecycleListed:
		return "Listed"
	case LifecycleSold:
		return "Sold"
	}
	return "Unknown"
}

// NFTRecord is the off-chain index row for a minted token
type NFTRecord struct {
	TokenID          uint64         `json:"nft_id"`
	TokenURI         string         `json:"token_uri"`
	MintedAt         time.Time      `json:"mint_item"`
	Owner            common.Address `json:"owner"`
	State            LifecycleState `json:"state"`
	RoyaltyNumerator int            `json:"royaltyFeeNumerator"`
	// TxHash links the record back to its gas record for reconciliation
	TxHash *common.Hash `json:"tx_hash,omitempty"`
}

// StagedAsset is a batch asset already uploaded by an earlier attempt of the same batch
type StagedAsset struct {
	Position    int    `json:"position"`
	AssetSHA256 string `json:"asset_sha256"`
	ImageCID    string `json:"image_cid"`
}
