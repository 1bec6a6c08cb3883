// Package chain is the client's view of the Sui chain: reading the
// current SystemState and committee, and submitting the Move calls that
// register, certify, extend, and delete blobs. Consensus itself — how a
// transaction gets finalized — is someone else's problem; this package
// only needs a JSON-RPC endpoint that will eventually answer.
package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"walrus/internal/types"
)

// Reader is the read side of the chain client: system state and
// committee lookups.
type Reader interface {
	SystemState(ctx context.Context) (*types.SystemState, error)
	Committee(ctx context.Context, epoch uint64) (*types.Committee, error)
}

// Writer is the write side: submitting a built transaction and getting
// back its on-chain digest.
type Writer interface {
	SubmitTransaction(ctx context.Context, call MoveCall) (digest [32]byte, err error)
}

// Client is a Reader and a Writer.
type Client interface {
	Reader
	Writer
}

// AttributeReader reads a blob object's dynamic attribute fields, a
// read-only operation that needs no transaction.
type AttributeReader interface {
	ReadBlobAttribute(ctx context.Context, params ReadBlobAttributeParams) (string, error)
	ReadBlobAttributes(ctx context.Context, objectID [32]byte) (map[string]string, error)
}

// FullClient is everything the client core needs from the chain: reading
// system state and committees, submitting transactions, and reading blob
// attributes.
type FullClient interface {
	Client
	AttributeReader
}

// HTTPClient talks to a Sui full node's JSON-RPC endpoint over HTTP.
type HTTPClient struct {
	rpcURL     string
	pkg        PackageConfig
	httpClient *http.Client
}

// NewHTTPClient creates a chain client against a Sui JSON-RPC endpoint,
// qualifying every Move call it submits against the given package
// configuration (the published package ID and the shared System object
// every system-module call needs a reference to).
func NewHTTPClient(rpcURL string, pkg PackageConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{rpcURL: rpcURL, pkg: pkg, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request:\n%w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build rpc request:\n%w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s:\n%w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode rpc response for %s:\n%w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal rpc result for %s:\n%w", method, err)
		}
	}

	return nil
}

type systemStateWire struct {
	Epoch               uint64 `json:"epoch,string"`
	NShards             int    `json:"nShards"`
	EpochState          string `json:"epochState"`
	StoragePricePerUnit uint64 `json:"storagePricePerUnit,string"`
	WritePricePerUnit   uint64 `json:"writePricePerUnit,string"`
}

// SystemState fetches the current system object.
func (c *HTTPClient) SystemState(ctx context.Context) (*types.SystemState, error) {
	var w systemStateWire
	if err := c.call(ctx, "walrus_getSystemState", nil, &w); err != nil {
		return nil, fmt.Errorf("get system state:\n%w", err)
	}

	state := &types.SystemState{
		Epoch:               w.Epoch,
		NShards:             w.NShards,
		StoragePricePerUnit: w.StoragePricePerUnit,
		WritePricePerUnit:   w.WritePricePerUnit,
	}
	if w.EpochState == "epochChangeSync" {
		state.EpochState = types.EpochStateEpochChangeSync
	} else {
		state.EpochState = types.EpochStateNormal
	}

	return state, nil
}

type committeeMemberWire struct {
	NodeID         string `json:"nodeId"`
	PublicKey      string `json:"publicKey"`
	NetworkAddress string `json:"networkAddress"`
	ShardIndices   []int  `json:"shardIndices"`
}

// Committee fetches the committee for a given epoch.
func (c *HTTPClient) Committee(ctx context.Context, epoch uint64) (*types.Committee, error) {
	var members []committeeMemberWire
	if err := c.call(ctx, "walrus_getCommittee", []any{epoch}, &members); err != nil {
		return nil, fmt.Errorf("get committee for epoch %d:\n%w", epoch, err)
	}

	nShards := 0
	nodes := make([]types.Node, len(members))
	for i, m := range members {
		nodeID, err := decodeHex32(m.NodeID)
		if err != nil {
			return nil, fmt.Errorf("decode nodeId: %w", err)
		}

		pkBytes, err := hex.DecodeString(m.PublicKey)
		if err != nil || len(pkBytes) != types.BLSPublicKeySize {
			return nil, fmt.Errorf("decode publicKey %q: %w", m.PublicKey, err)
		}
		var pk types.BLSPublicKey
		copy(pk[:], pkBytes)

		nodes[i] = types.Node{
			NodeID:         nodeID,
			PublicKey:      pk,
			NetworkAddress: m.NetworkAddress,
			ShardIndices:   m.ShardIndices,
		}
		nShards += len(m.ShardIndices)
	}

	return types.NewCommittee(epoch, nodes, nShards)
}

// MoveCall is an opaque description of one on-chain Move function call;
// the transaction-builder thunks in txbuilder.go produce these. Module
// is the bare module name (e.g. "system") — the submitting client
// qualifies it with its own configured package ID, since the thunks
// that build a MoveCall have no opinion about which package deployment
// they'll end up running against.
type MoveCall struct {
	Module   string
	Function string
	ArgsJSON json.RawMessage
}

// SubmitTransaction submits a built Move call, qualified against this
// client's configured package and passed the shared System object every
// system-module call operates on, and returns its digest.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, call MoveCall) (digest [32]byte, err error) {
	var resp struct {
		Digest string `json:"digest"`
	}

	qualified := c.pkg.PackageID + "::" + call.Module
	params := []any{qualified, call.Function, call.ArgsJSON, c.pkg.SystemObjectID}
	if err := c.call(ctx, "walrus_executeTransaction", params, &resp); err != nil {
		return digest, fmt.Errorf("submit %s::%s:\n%w", qualified, call.Function, err)
	}

	digestBytes, err := decodeHex32(resp.Digest)
	if err != nil {
		return digest, fmt.Errorf("decode digest: %w", err)
	}

	return digestBytes, nil
}

// ReadBlobAttribute fetches a single dynamic-field attribute value from a
// blob object. This is a read, not a transaction: no digest, no consensus
// round trip.
func (c *HTTPClient) ReadBlobAttribute(ctx context.Context, params ReadBlobAttributeParams) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}

	args := []any{hex.EncodeToString(params.ObjectID[:]), params.Key}
	if err := c.call(ctx, "walrus_readBlobAttribute", args, &resp); err != nil {
		return "", fmt.Errorf("read blob attribute %q:\n%w", params.Key, err)
	}

	return resp.Value, nil
}

// ReadBlobAttributes fetches the whole "metadata" dynamic field map
// attached to a blob object, returning a nil map if the field is absent.
func (c *HTTPClient) ReadBlobAttributes(ctx context.Context, objectID [32]byte) (map[string]string, error) {
	var resp struct {
		Attributes map[string]string `json:"attributes"`
	}

	args := []any{hex.EncodeToString(objectID[:])}
	if err := c.call(ctx, "walrus_readBlobAttributes", args, &resp); err != nil {
		return nil, fmt.Errorf("read blob attributes:\n%w", err)
	}

	return resp.Attributes, nil
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("invalid 32-byte hex value: %q", s)
	}
	copy(out[:], b)
	return out, nil
}
