package nftminter

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateRoyalty checks the numerator is within [0, MaxRoyaltyNumerator]
func ValidateRoyalty(royaltyNumerator int) error {
	if royaltyNumerator < 0 {
		return ValidationError(fmt.Errorf("royalty numerator %d is negative", royaltyNumerator), "Royalty cannot be negative.")
	}
	if royaltyNumerator > MaxRoyaltyNumerator {
		return ValidationError(fmt.Errorf("royalty numerator %d exceeds %d", royaltyNumerator, MaxRoyaltyNumerator), "Royalty cannot exceed 10%.")
	}
	return nil
}

// ValidateBatchSize checks a batch holds between 1 and MaxBatchSize items
func ValidateBatchSize(n int) error {
	if n < 1 {
		return ValidationError(fmt.Errorf("empty batch"), "At least one item is required.")
	}
	if n > MaxBatchSize {
		return ValidationError(fmt.Errorf("batch of %d exceeds %d", n, MaxBatchSize), fmt.Sprintf("A batch can hold at most %d items.", MaxBatchSize))
	}
	return nil
}

// ValidateRecipient rejects malformed and zero addresses
func ValidateRecipient(recipient common.Address) error {
	if recipient == (common.Address{}) {
		return ValidationError(fmt.Errorf("zero recipient address"), "A recipient address is required.")
	}
	return nil
}

// ParseRecipient parses a hex address supplied by a caller
func ParseRecipient(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, ValidationError(fmt.Errorf("invalid address %q", s), "Invalid recipient address.")
	}
	addr := common.HexToAddress(s)
	if err := ValidateRecipient(addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// ValidateMintRequest runs every check applied before a ledger submission
func ValidateMintRequest(req *MintRequest) error {
	if err := ValidateRecipient(req.Recipient); err != nil {
		return err
	}
	if err := ValidateBatchSize(len(req.MetadataCIDs)); err != nil {
		return err
	}
	for i, cid := range req.MetadataCIDs {
		if strings.TrimSpace(cid) == "" {
			return ValidationError(fmt.Errorf("metadata cid %d is empty", i), "Metadata is missing for an item.")
		}
	}
	return ValidateRoyalty(req.RoyaltyNumerator)
}
