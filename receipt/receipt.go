package receipt

import (
	"fmt"
	"math/big"
	"nftminter"

	"github.com/ethereum/go-ethereum/common"
)

// tokenIDTopic is the topic index holding the token id of an ERC-721
// Transfer(address indexed from, address indexed to, uint256 indexed tokenId) event
const tokenIDTopic = 3

// ExtractTokenIDs reads the minted token ids from the receipt logs.
//
// Logs at indices [0, count) are assumed to correspond positionally to the
// submitted items. For a single mint a missing id is a transaction error.
// For a batch, a log without a fourth topic (or a missing log) yields its
// 1-based position instead.
func ExtractTokenIDs(r *nftminter.Receipt, count int) ([]uint64, error) {
	if r == nil {
		return nil, nftminter.TransactionError(fmt.Errorf("nil receipt"), "Transaction receipt is unavailable.")
	}
	if count < 1 {
		return nil, nftminter.ValidationError(fmt.Errorf("token count %d", count), "At least one token is expected.")
	}

	if count == 1 {
		if len(r.Logs) == 0 || len(r.Logs[0].Topics) <= tokenIDTopic {
			return nil, nftminter.TransactionError(fmt.Errorf("receipt %s has no token id log", r.TxHash.Hex()), "Minted token id was not found in the transaction receipt.")
		}
		id, err := TopicToTokenID(r.Logs[0].Topics[tokenIDTopic])
		if err != nil {
			return nil, err
		}
		return []uint64{id}, nil
	}

	return ExtractBatchTokenIDs(r, count)
}

// ExtractBatchTokenIDs applies the positional fallback to every index,
// including a batch of one.
func ExtractBatchTokenIDs(r *nftminter.Receipt, count int) ([]uint64, error) {
	if r == nil {
		return nil, nftminter.TransactionError(fmt.Errorf("nil receipt"), "Transaction receipt is unavailable.")
	}
	if count < 1 {
		return nil, nftminter.ValidationError(fmt.Errorf("token count %d", count), "At least one token is expected.")
	}

	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		if i >= len(r.Logs) || len(r.Logs[i].Topics) <= tokenIDTopic {
			ids[i] = uint64(i + 1)
			continue
		}
		id, err := TopicToTokenID(r.Logs[i].Topics[tokenIDTopic])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// TopicToTokenID parses a 32 byte topic as an unsigned token id
func TopicToTokenID(topic common.Hash) (uint64, error) {
	n := new(big.Int).SetBytes(topic.Bytes())
	if !n.IsUint64() {
		return 0, nftminter.TransactionError(fmt.Errorf("token id %s does not fit in 64 bits", n), "Minted token id is out of range.")
	}
	return n.Uint64(), nil
}

// ComputeCost returns gasUsed * effectiveGasPrice
func ComputeCost(r *nftminter.Receipt) (*big.Int, error) {
	if r == nil || r.GasUsed == nil || r.EffectiveGasPrice == nil {
		return nil, nftminter.TransactionError(fmt.Errorf("receipt is missing gas accounting"), "Transaction receipt has no gas information.")
	}
	return new(big.Int).Mul(r.GasUsed, r.EffectiveGasPrice), nil
}

// GasRecord builds the accounting row for a confirmed mint
func GasRecord(r *nftminter.Receipt, method string, user common.Address) (*nftminter.GasRecord, error) {
	cost, err := ComputeCost(r)
	if err != nil {
		return nil, err
	}
	return &nftminter.GasRecord{
		TxHash:      r.TxHash,
		MethodName:  method,
		GasUsed:     new(big.Int).Set(r.GasUsed),
		GasPrice:    new(big.Int).Set(r.EffectiveGasPrice),
		TotalCost:   cost,
		UserAddress: user,
		BlockNumber: r.BlockNumber,
	}, nil
}
