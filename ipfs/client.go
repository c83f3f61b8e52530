package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"nftminter"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/kevinms/leakybucket-go"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIURL      = "https://api.pinata.cloud"
	pinFilePath        = "/pinning/pinFileToIPFS"
	pinJSONPath        = "/pinning/pinJSONToIPFS"
	uploadBucketKey    = "pinning"
	maxErrorBodyLength = 512
)

// PinResponse is the pinning API reply for both file and JSON uploads
type PinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type pinJSONRequest struct {
	PinataContent  json.RawMessage `json:"pinataContent"`
	PinataMetadata *pinMetadata    `json:"pinataMetadata,omitempty"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

// Client uploads content to an IPFS pinning service. It never retries; a
// rejected or throttled upload is returned to the caller as a storage error.
type Client struct {
	apiURL      string
	jwt         string
	gatewayHost string
	httpClient  *http.Client
	bucket      *leakybucket.Collector
	log         *zerolog.Logger
}

func NewClient(params *nftminter.StorageParams, log *zerolog.Logger) *Client {
	apiURL := strings.TrimRight(params.PinningAPIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		apiURL:      apiURL,
		jwt:         params.PinningJWT,
		gatewayHost: params.GatewayHost,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}
	if params.UploadsPerSecond > 0 {
		burst := params.UploadBurst
		if burst <= 0 {
			burst = 1
		}
		c.bucket = leakybucket.NewCollector(params.UploadsPerSecond, burst, true)
	}
	return c
}

// GatewayURL is where pinned content can be fetched publicly
func (c *Client) GatewayURL(cid string) string {
	return GatewayURL(c.gatewayHost, cid)
}

// GatewayHost is the host used to build public content links
func (c *Client) GatewayHost() string {
	return c.gatewayHost
}

// Upload pins raw binary content and returns its CID
func (c *Client) Upload(ctx context.Context, data []byte, fileName string) (nftminter.UploadedAsset, error) {
	if len(data) == 0 {
		return nftminter.UploadedAsset{}, nftminter.ValidationError(fmt.Errorf("empty upload"), "File is empty.")
	}
	if err := c.throttle(); err != nil {
		return nftminter.UploadedAsset{}, err
	}

	contentType := "application/octet-stream"
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}
	if fileName == "" {
		fileName = "asset"
		if kind != filetype.Unknown {
			fileName += "." + kind.Extension
		}
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nftminter.UploadedAsset{}, nftminter.StorageError(err, "Failed to prepare upload.")
	}
	if _, err := part.Write(data); err != nil {
		return nftminter.UploadedAsset{}, nftminter.StorageError(err, "Failed to prepare upload.")
	}
	meta, _ := json.Marshal(pinMetadata{Name: fileName})
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return nftminter.UploadedAsset{}, nftminter.StorageError(err, "Failed to prepare upload.")
	}
	if err := mw.Close(); err != nil {
		return nftminter.UploadedAsset{}, nftminter.StorageError(err, "Failed to prepare upload.")
	}

	resp, err := c.pin(ctx, pinFilePath, mw.FormDataContentType(), body)
	if err != nil {
		return nftminter.UploadedAsset{}, err
	}
	c.log.Debug().Str("cid", resp.IpfsHash).Int64("pin_size", resp.PinSize).Str("file_name", fileName).Msg("pinned file")
	return nftminter.UploadedAsset{CID: resp.IpfsHash}, nil
}

// UploadJSON pins a JSON document through the pinning service's text path
func (c *Client) UploadJSON(ctx context.Context, doc []byte, name string) (nftminter.UploadedAsset, error) {
	if !json.Valid(doc) {
		return nftminter.UploadedAsset{}, nftminter.ValidationError(fmt.Errorf("document is not valid json"), "Metadata is not valid JSON.")
	}
	if err := c.throttle(); err != nil {
		return nftminter.UploadedAsset{}, err
	}

	req := &pinJSONRequest{PinataContent: doc}
	if name != "" {
		req.PinataMetadata = &pinMetadata{Name: name}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nftminter.UploadedAsset{}, nftminter.StorageError(err, "Failed to prepare upload.")
	}

	resp, err := c.pin(ctx, pinJSONPath, "application/json", bytes.NewReader(b))
	if err != nil {
		return nftminter.UploadedAsset{}, err
	}
	c.log.Debug().Str("cid", resp.IpfsHash).Str("name", name).Msg("pinned json")
	return nftminter.UploadedAsset{CID: resp.IpfsHash}, nil
}

func (c *Client) throttle() error {
	if c.bucket == nil {
		return nil
	}
	if c.bucket.Add(uploadBucketKey, 1) == 0 {
		return nftminter.StorageError(fmt.Errorf("local upload rate limit reached"), "Too many uploads, please try again shortly.")
	}
	return nil
}

func (c *Client) pin(ctx context.Context, path string, contentType string, body io.Reader) (*PinResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, body)
	if err != nil {
		return nil, nftminter.StorageError(err, "Failed to prepare upload.")
	}
	req.Header.Set("Content-Type", contentType)
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nftminter.StorageError(err, "Storage network is unreachable.")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nftminter.StorageError(err, "Failed to read storage network response.")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nftminter.StorageError(fmt.Errorf("pinning service rate limited: %s", truncate(respBody)), "Storage network is rate limiting uploads, please try again shortly.")
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, nftminter.StorageError(fmt.Errorf("payload too large: %s", truncate(respBody)), "File is too large.")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, nftminter.StorageError(fmt.Errorf("non 2xx response for %s: %d %s", path, resp.StatusCode, truncate(respBody)), "Storage network rejected the upload.")
	}

	result := &PinResponse{}
	err = json.Unmarshal(respBody, result)
	if err != nil {
		return nil, nftminter.StorageError(err, "Failed to read storage network response.")
	}
	if result.IpfsHash == "" {
		return nil, nftminter.StorageError(fmt.Errorf("pinning response has no cid"), "Storage network did not return a content id.")
	}
	return result, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBodyLength {
		return s[:maxErrorBodyLength]
	}
	return s
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
