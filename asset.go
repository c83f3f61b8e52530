package nftminter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/h2non/filetype"
)

// Asset is a single image handed to the mint pipeline
type Asset struct {
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	Extension     string `json:"extension"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	Data          []byte `json:"-"`
	// Hash is the hex sha256 of Data, used to match staged batch uploads
	Hash string `json:"hash"`
}

// AssetFromBytes sniffs the content type and hashes the data. Only images are accepted.
func AssetFromBytes(fileName string, data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, ValidationError(fmt.Errorf("asset %q is empty", fileName), "An image is required.")
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return nil, ValidationError(err, "Could not read the image.")
	}
	if kind == filetype.Unknown || !filetype.IsImage(data) {
		return nil, ValidationError(fmt.Errorf("asset %q is not an image", fileName), "Only image files can be minted.")
	}

	sum := sha256.Sum256(data)
	if fileName == "" {
		fileName = hex.EncodeToString(sum[:8]) + "." + kind.Extension
	}

	return &Asset{
		FileName:      fileName,
		MimeType:      kind.MIME.Value,
		Extension:     kind.Extension,
		FileSizeBytes: int64(len(data)),
		Data:          data,
		Hash:          hex.EncodeToString(sum[:]),
	}, nil
}

// SHA256 returns Hash, computing it when the asset was built by hand
func (a *Asset) SHA256() string {
	if a.Hash != "" {
		return a.Hash
	}
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}
