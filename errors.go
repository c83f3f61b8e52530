package nftminter

import (
	"errors"
	"fmt"

	"github.com/ninja-software/terror/v2"
)

// ErrValidation when input is rejected before any network call
var ErrValidation = fmt.Errorf("validation error")

// ErrStorage when the storage network is unreachable or rejects a payload
var ErrStorage = fmt.Errorf("storage error")

// ErrTransaction when the ledger rejects a submission or a receipt cannot be obtained
var ErrTransaction = fmt.Errorf("transaction error")

// ErrPersistence when an off-chain record write fails
var ErrPersistence = fmt.Errorf("persistence error")

// KindError ties a failure cause to one of the error kinds above
type KindError struct {
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func kindError(kind error, err error, message []string) error {
	return terror.Error(&KindError{Kind: kind, Err: err}, message...)
}

// ValidationError is user recoverable so it is logged as a warning
func ValidationError(err error, message ...string) error {
	return terror.Warn(&KindError{Kind: ErrValidation, Err: err}, message...)
}

func StorageError(err error, message ...string) error {
	return kindError(ErrStorage, err, message)
}

func TransactionError(err error, message ...string) error {
	return kindError(ErrTransaction, err, message)
}

func PersistenceError(err error, message ...string) error {
	return kindError(ErrPersistence, err, message)
}

// KindOf returns the error kind sentinel carried by err, or nil when it has none
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrStorage, ErrTransaction, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName is the short name used in API responses and metric labels
func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrStorage:
		return "storage"
	case ErrTransaction:
		return "transaction"
	case ErrPersistence:
		return "persistence"
	}
	return "unknown"
}
