package metadata_test

import (
	"context"
	"nftminter"
	"nftminter/metadata"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureUploader struct {
	docs  [][]byte
	names []string
}

func (u *captureUploader) UploadJSON(ctx context.Context, doc []byte, name string) (nftminter.UploadedAsset, error) {
	u.docs = append(u.docs, doc)
	u.names = append(u.names, name)
	return nftminter.UploadedAsset{CID: "QmMeta"}, nil
}

func TestComposeValidation(t *testing.T) {
	tests := []struct {
		name, desc, cid string
	}{
		{"", "test", "QmImage"},
		{"Art1", " ", "QmImage"},
		{"Art1", "test", ""},
	}
	for _, tt := range tests {
		_, err := metadata.Compose(tt.name, tt.desc, tt.cid, nil)
		require.ErrorIs(t, err, nftminter.ErrValidation)
	}
}

func TestPublishRoundTrip(t *testing.T) {
	attrs := []nftminter.Attribute{
		{TraitType: "Colour", Value: "Blue"},
		{TraitType: "", Value: ""},
		{TraitType: "Colour", Value: "Red"},
		{TraitType: "Size", Value: ""},
	}
	doc, err := metadata.Compose("Art1", "test", "QmImage", attrs)
	require.NoError(t, err)

	up := &captureUploader{}
	cid, err := metadata.NewComposer(up, "gateway.example").Publish(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, "QmMeta", cid)
	require.Len(t, up.docs, 1)
	require.Equal(t, "Art1.json", up.names[0])
	require.Contains(t, string(up.docs[0]), `"image":"https://gateway.example/ipfs/QmImage"`)

	got, err := metadata.Decode(up.docs[0])
	require.NoError(t, err)
	require.Equal(t, "Art1", got.Name)
	require.Equal(t, "test", got.Description)
	require.Equal(t, "QmImage", got.ImageCID)
	require.Equal(t, attrs, got.Attributes)
}

func TestPublishKeepsBlankAttributeRow(t *testing.T) {
	attrs := []nftminter.Attribute{{TraitType: "", Value: ""}}
	doc, err := metadata.Compose("Art1", "test", "QmImage", attrs)
	require.NoError(t, err)

	up := &captureUploader{}
	_, err = metadata.NewComposer(up, "gateway.example").Publish(context.Background(), doc)
	require.NoError(t, err)
	require.Contains(t, string(up.docs[0]), `"attributes":[{"trait_type":"","value":""}]`)

	got, err := metadata.Decode(up.docs[0])
	require.NoError(t, err)
	require.Equal(t, attrs, got.Attributes)
}

func TestDecodeIPFSURI(t *testing.T) {
	got, err := metadata.Decode([]byte(`{"name":"a","description":"b","image":"ipfs://QmImage","attributes":[]}`))
	require.NoError(t, err)
	require.Equal(t, "QmImage", got.ImageCID)

	_, err = metadata.Decode([]byte(`{"name":"a","description":"b","image":"https://example.com/a.png"}`))
	require.Error(t, err)
}
