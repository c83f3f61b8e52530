package nftminter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	Environment   string
	StorageParams *StorageParams
	LedgerParams  *LedgerParams
}

// StorageParams configures the pinning service and public gateway
type StorageParams struct {
	PinningAPIURL string
	PinningJWT    string
	GatewayHost   string
	// UploadsPerSecond and UploadBurst feed the local leaky bucket in front of the pinning API
	UploadsPerSecond float64
	UploadBurst      int64
	RequestTimeout   time.Duration
}

// LedgerParams configures the collectible contract client
type LedgerParams struct {
	NodeAddr         string
	ChainID          int64
	ContractAddr     common.Address
	SignerPrivateKey string
	ConfirmTimeout   time.Duration
	PollMin          time.Duration
	PollMax          time.Duration
}
