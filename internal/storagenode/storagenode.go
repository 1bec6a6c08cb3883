// Package storagenode is the HTTP transport to a single storage node:
// pushing and fetching slivers and metadata, polling blob status, and
// requesting signed storage confirmations. Every response body is
// zstd-compressed on the wire and every failure is classified into the
// closed error taxonomy the dispatcher consumes.
package storagenode

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"walrus/internal/types"
	"walrus/internal/wire"
	"walrus/walruserrors"
)

// Options are the transport parameters every storage-node connection is
// built with: request timeout, TLS, and the User-Agent sent on every
// request.
type Options struct {
	// Timeout bounds a single request/response round trip. Zero means
	// no client-imposed timeout beyond the caller's context.
	Timeout time.Duration
	// TLSClientConfig configures TLS for storage nodes served over
	// https. Nil uses Go's default TLS configuration.
	TLSClientConfig *tls.Config
	// UserAgent is sent on every request. Empty omits the header.
	UserAgent string
}

// Client talks to one storage node over HTTP.
type Client struct {
	node       types.Node
	httpClient *http.Client
	userAgent  string
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
}

// New creates a client for a single storage node. The supplied http.Client
// is reused across calls; pass nil to build one from opts.
func New(node types.Node, httpClient *http.Client, opts Options) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
		if opts.TLSClientConfig != nil {
			httpClient.Transport = &http.Transport{TLSClientConfig: opts.TLSClientConfig}
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("storagenode: init zstd encoder:\n%w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("storagenode: init zstd decoder:\n%w", err)
	}

	return &Client{node: node, httpClient: httpClient, userAgent: opts.UserAgent, encoder: enc, decoder: dec}, nil
}

// Node returns the committee member this client talks to.
func (c *Client) Node() types.Node {
	return c.node
}

// PutMetadata uploads a blob's metadata envelope.
func (c *Client) PutMetadata(ctx context.Context, blobID types.BlobID, meta types.BlobMetadata) error {
	body := wire.EncodeMetadata(meta)
	url := c.url("/v1/blobs/" + hexID(blobID) + "/metadata")
	_, err := c.do(ctx, http.MethodPut, url, body)
	return err
}

// GetMetadata fetches a blob's metadata envelope.
func (c *Client) GetMetadata(ctx context.Context, blobID types.BlobID) (*types.BlobMetadata, error) {
	url := c.url("/v1/blobs/" + hexID(blobID) + "/metadata")
	raw, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	meta, err := wire.DecodeMetadata(raw)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "decode metadata", Err: err}
	}
	return &meta, nil
}

// PutSliver uploads one primary or secondary sliver for a pair index.
func (c *Client) PutSliver(ctx context.Context, blobID types.BlobID, pairIndex int, primary bool, data []byte) error {
	body := wire.EncodeSliver(uint32(pairIndex), primary, data)
	url := c.url("/v1/blobs/" + hexID(blobID) + "/slivers/" + strconv.Itoa(pairIndex) + "/" + sliverKind(primary))
	_, err := c.do(ctx, http.MethodPut, url, body)
	return err
}

// GetSliver fetches one primary or secondary sliver for a pair index.
func (c *Client) GetSliver(ctx context.Context, blobID types.BlobID, pairIndex int, primary bool) ([]byte, error) {
	url := c.url("/v1/blobs/" + hexID(blobID) + "/slivers/" + strconv.Itoa(pairIndex) + "/" + sliverKind(primary))
	raw, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	_, _, data, err := wire.DecodeSliver(raw)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "decode sliver", Err: err}
	}
	return data, nil
}

// GetStatus fetches the node's locally-known BlobStatus for a blob.
func (c *Client) GetStatus(ctx context.Context, blobID types.BlobID) (*types.BlobStatus, error) {
	url := c.url("/v1/blobs/" + hexID(blobID) + "/status")
	raw, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	status, err := decodeStatus(raw)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "decode status", Err: err}
	}
	return status, nil
}

// RequestConfirmation asks the node to sign a storage confirmation for a
// blob it holds all of its assigned slivers for, over the given canonical
// message bytes.
func (c *Client) RequestConfirmation(ctx context.Context, blobID types.BlobID, message []byte) (*types.Confirmation, error) {
	url := c.url("/v1/blobs/" + hexID(blobID) + "/confirmation")
	raw, err := c.do(ctx, http.MethodPost, url, message)
	if err != nil {
		return nil, err
	}

	msg, sig, err := wire.DecodeConfirmation(raw)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "decode confirmation", Err: err}
	}

	return &types.Confirmation{
		NodeIndex:         -1,
		SerializedMessage: msg,
		Signature:         sig,
	}, nil
}

func (c *Client) url(path string) string {
	return "http://" + c.node.NetworkAddress + path
}

// do performs one HTTP round trip, zstd-compressing a non-nil body and
// decompressing the response, and classifies the outcome into the
// storage-node error taxonomy.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(c.encoder.EncodeAll(body, nil))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &walruserrors.Transport{Op: method + " " + url, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Encoding", "zstd")
	}
	req.Header.Set("Accept-Encoding", "zstd")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &walruserrors.UserAbort{}
		}
		return nil, &walruserrors.Transport{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "read body " + url, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		// fall through
	case http.StatusNotFound:
		return nil, &walruserrors.NotFound{What: url}
	case http.StatusUnavailableForLegalReasons:
		return nil, &walruserrors.LegallyUnavailable{What: url}
	default:
		return nil, &walruserrors.Transport{Op: method + " " + url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if len(raw) == 0 {
		return nil, nil
	}

	decoded, err := c.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, &walruserrors.Transport{Op: "zstd decode " + url, Err: err}
	}
	return decoded, nil
}

func sliverKind(primary bool) string {
	if primary {
		return "primary"
	}
	return "secondary"
}

func hexID(id types.BlobID) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out)
}
