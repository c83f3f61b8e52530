package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"nftminter"
	"nftminter/ipfs"
	"strings"

	"github.com/ninja-software/terror/v2"
)

// TextUploader is the storage network's JSON upload path
type TextUploader interface {
	UploadJSON(ctx context.Context, doc []byte, name string) (nftminter.UploadedAsset, error)
}

// document is the wire form stored on the storage network
type document struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Image       string                `json:"image"`
	Attributes  []nftminter.Attribute `json:"attributes"`
}

// Composer builds token metadata documents and publishes them
type Composer struct {
	uploader    TextUploader
	gatewayHost string
}

func NewComposer(uploader TextUploader, gatewayHost string) *Composer {
	return &Composer{uploader: uploader, gatewayHost: gatewayHost}
}

// Compose validates the required fields and assembles a document. Attributes
// are kept as given, in order, blank rows included.
func Compose(name, description, imageCID string, attributes []nftminter.Attribute) (*nftminter.MetadataDocument, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nftminter.ValidationError(fmt.Errorf("name is empty"), "Name is required.")
	}
	if strings.TrimSpace(description) == "" {
		return nil, nftminter.ValidationError(fmt.Errorf("description is empty"), "Description is required.")
	}
	if strings.TrimSpace(imageCID) == "" {
		return nil, nftminter.ValidationError(fmt.Errorf("image cid is empty"), "Image is required.")
	}

	attrs := make([]nftminter.Attribute, len(attributes))
	copy(attrs, attributes)

	return &nftminter.MetadataDocument{
		Name:        name,
		Description: description,
		ImageCID:    imageCID,
		Attributes:  attrs,
	}, nil
}

// Encode serialises the document with its image pointing at the gateway
func Encode(doc *nftminter.MetadataDocument, gatewayHost string) ([]byte, error) {
	attrs := doc.Attributes
	if attrs == nil {
		attrs = []nftminter.Attribute{}
	}
	b, err := json.Marshal(&document{
		Name:        doc.Name,
		Description: doc.Description,
		Image:       ipfs.GatewayURL(gatewayHost, doc.ImageCID),
		Attributes:  attrs,
	})
	if err != nil {
		return nil, terror.Error(err, "Failed to encode metadata.")
	}
	return b, nil
}

// Decode parses a published document back, recovering the image CID
func Decode(b []byte) (*nftminter.MetadataDocument, error) {
	doc := &document{}
	err := json.Unmarshal(b, doc)
	if err != nil {
		return nil, terror.Error(err, "Failed to decode metadata.")
	}
	cid, ok := ipfs.CIDFromURL(doc.Image)
	if !ok {
		return nil, terror.Error(fmt.Errorf("image %q has no cid", doc.Image), "Metadata image is not an IPFS reference.")
	}
	return &nftminter.MetadataDocument{
		Name:        doc.Name,
		Description: doc.Description,
		ImageCID:    cid,
		Attributes:  doc.Attributes,
	}, nil
}

// Compose is the method form of the package level Compose
func (c *Composer) Compose(name, description, imageCID string, attributes []nftminter.Attribute) (*nftminter.MetadataDocument, error) {
	return Compose(name, description, imageCID, attributes)
}

// Publish uploads the document and returns its metadata CID
func (c *Composer) Publish(ctx context.Context, doc *nftminter.MetadataDocument) (string, error) {
	b, err := Encode(doc, c.gatewayHost)
	if err != nil {
		return "", err
	}
	asset, err := c.uploader.UploadJSON(ctx, b, doc.Name+".json")
	if err != nil {
		return "", err
	}
	return asset.CID, nil
}
