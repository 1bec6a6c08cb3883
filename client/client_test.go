package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"

	"walrus/internal/blssig"
	"walrus/internal/chain"
	"walrus/internal/codec"
	"walrus/internal/merkle"
	"walrus/internal/types"
	"walrus/internal/wire"
	"walrus/walruserrors"
)

// fakeChain is a minimal chain.FullClient backed by in-memory state, used
// to drive the client core end to end against real HTTP storage-node
// fakes without a real Sui node.
type fakeChain struct {
	mu         sync.Mutex
	state      types.SystemState
	committees map[uint64]*types.Committee
	digest     [32]byte
	submitted  []chain.MoveCall
	attrs      map[[32]byte]map[string]string
}

func newFakeChain(state types.SystemState) *fakeChain {
	return &fakeChain{
		state:      state,
		committees: make(map[uint64]*types.Committee),
		attrs:      make(map[[32]byte]map[string]string),
	}
}

func (f *fakeChain) SystemState(ctx context.Context) (*types.SystemState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	return &s, nil
}

func (f *fakeChain) Committee(ctx context.Context, epoch uint64) (*types.Committee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cm, ok := f.committees[epoch]
	if !ok {
		return nil, fmt.Errorf("fakeChain: no committee registered for epoch %d", epoch)
	}
	return cm, nil
}

func (f *fakeChain) SubmitTransaction(ctx context.Context, call chain.MoveCall) ([32]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, call)
	return f.digest, nil
}

func (f *fakeChain) ReadBlobAttribute(ctx context.Context, params chain.ReadBlobAttributeParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[params.ObjectID][params.Key], nil
}

func (f *fakeChain) ReadBlobAttributes(ctx context.Context, objectID [32]byte) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[objectID], nil
}

func (f *fakeChain) lastCall(t *testing.T, function string) chain.MoveCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.submitted) - 1; i >= 0; i-- {
		if f.submitted[i].Function == function {
			return f.submitted[i]
		}
	}
	t.Fatalf("no submitted call for function %q", function)
	return chain.MoveCall{}
}

// sliverKey identifies one stored half-pair for one blob on one fake node.
type sliverKey struct {
	blobID    types.BlobID
	pairIndex int
	primary   bool
}

// testNode is an in-process storage node speaking the real wire protocol
// (zstd-compressed FlatBuffers for metadata/slivers/confirmations,
// zstd-compressed JSON for status) over a real listening HTTP server, so
// the unmodified client and storagenode transport are exercised exactly
// as they would be against a production node.
type testNode struct {
	keyPair *blssig.KeyPair
	server  *httptest.Server

	mu        sync.Mutex
	metadata  map[types.BlobID]types.BlobMetadata
	slivers   map[sliverKey][]byte
	statuses  map[types.BlobID]statusFixture
	forceCode int
}

type statusFixture struct {
	lifecycle             types.BlobLifecycle
	initialCertifiedEpoch *uint64
	objectID              *[32]byte
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	kp, err := blssig.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	n := &testNode{
		keyPair:  kp,
		metadata: make(map[types.BlobID]types.BlobMetadata),
		slivers:  make(map[sliverKey][]byte),
		statuses: make(map[types.BlobID]statusFixture),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.server.Close)

	return n
}

func (n *testNode) address() string {
	return strings.TrimPrefix(n.server.URL, "http://")
}

func (n *testNode) asNode(shardIndices []int) types.Node {
	pk := n.keyPair.PublicKeyBytes()

	var nodeID types.NodeID
	copy(nodeID[:], pk)
	var blsKey types.BLSPublicKey
	copy(blsKey[:], pk)

	return types.Node{
		NodeID:         nodeID,
		PublicKey:      blsKey,
		NetworkAddress: n.address(),
		ShardIndices:   shardIndices,
	}
}

func (n *testNode) handle(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	forceCode := n.forceCode
	n.mu.Unlock()
	if forceCode != 0 {
		w.WriteHeader(forceCode)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != "v1" || parts[1] != "blobs" {
		http.NotFound(w, r)
		return
	}

	blobID, err := decodeHexBlobID(parts[2])
	if err != nil {
		http.Error(w, "bad blob id", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 4 && parts[3] == "metadata":
		n.handleMetadata(w, r, blobID)
	case len(parts) == 6 && parts[3] == "slivers":
		pairIndex, convErr := strconv.Atoi(parts[4])
		if convErr != nil {
			http.Error(w, "bad pair index", http.StatusBadRequest)
			return
		}
		n.handleSliver(w, r, blobID, pairIndex, parts[5] == "primary")
	case len(parts) == 4 && parts[3] == "status":
		n.handleStatus(w, r, blobID)
	case len(parts) == 4 && parts[3] == "confirmation":
		n.handleConfirmation(w, r, blobID)
	default:
		http.NotFound(w, r)
	}
}

func (n *testNode) handleMetadata(w http.ResponseWriter, r *http.Request, blobID types.BlobID) {
	if r.Method == http.MethodPut {
		body, err := decompressBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		meta, err := wire.DecodeMetadata(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.metadata[blobID] = meta
		n.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}

	n.mu.Lock()
	meta, ok := n.metadata[blobID]
	n.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeCompressed(w, wire.EncodeMetadata(meta))
}

func (n *testNode) handleSliver(w http.ResponseWriter, r *http.Request, blobID types.BlobID, pairIndex int, primary bool) {
	key := sliverKey{blobID: blobID, pairIndex: pairIndex, primary: primary}

	if r.Method == http.MethodPut {
		body, err := decompressBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _, data, err := wire.DecodeSliver(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.slivers[key] = data
		n.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}

	n.mu.Lock()
	data, ok := n.slivers[key]
	n.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeCompressed(w, wire.EncodeSliver(uint32(pairIndex), primary, data))
}

func (n *testNode) handleStatus(w http.ResponseWriter, r *http.Request, blobID types.BlobID) {
	n.mu.Lock()
	f, ok := n.statuses[blobID]
	n.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	wireStatus := struct {
		Lifecycle             string  `json:"lifecycle"`
		InitialCertifiedEpoch *uint64 `json:"initialCertifiedEpoch,omitempty"`
		ObjectID              *string `json:"objectId,omitempty"`
	}{Lifecycle: lifecycleName(f.lifecycle), InitialCertifiedEpoch: f.initialCertifiedEpoch}
	if f.objectID != nil {
		s := hex.EncodeToString(f.objectID[:])
		wireStatus.ObjectID = &s
	}

	body, err := json.Marshal(wireStatus)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeCompressed(w, body)
}

func (n *testNode) handleConfirmation(w http.ResponseWriter, r *http.Request, blobID types.BlobID) {
	message, err := decompressBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sig := n.keyPair.Sign(message)
	writeCompressed(w, wire.EncodeConfirmation(message, sig))
}

func lifecycleName(lc types.BlobLifecycle) string {
	switch lc {
	case types.LifecyclePermanent:
		return "permanent"
	case types.LifecycleDeletable:
		return "deletable"
	case types.LifecycleInvalid:
		return "invalid"
	default:
		return "nonexistent"
	}
}

func decodeHexBlobID(s string) (types.BlobID, error) {
	var id types.BlobID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return id, fmt.Errorf("bad blob id %q", s)
	}
	copy(id[:], b)
	return id, nil
}

func decompressBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(raw, nil)
}

func writeCompressed(w http.ResponseWriter, data []byte) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer enc.Close()
	w.WriteHeader(http.StatusOK)
	w.Write(enc.EncodeAll(data, nil))
}

// nodeSpec pairs a fake node with the number of shards it owns in a test
// committee; mustCommittee assigns it a contiguous shard range.
type nodeSpec struct {
	node   *testNode
	shards int
}

func mustCommittee(t *testing.T, epoch uint64, specs []nodeSpec, nShards int) *types.Committee {
	t.Helper()

	nodes := make([]types.Node, len(specs))
	next := 0
	for i, s := range specs {
		indices := make([]int, s.shards)
		for j := range indices {
			indices[j] = next
			next++
		}
		nodes[i] = s.node.asNode(indices)
	}
	if next != nShards {
		t.Fatalf("shard specs sum to %d, want %d", next, nShards)
	}

	cm, err := types.NewCommittee(epoch, nodes, nShards)
	if err != nil {
		t.Fatalf("new committee: %v", err)
	}
	return cm
}

// seedEncodedBlob plants an already-encoded blob's metadata and slivers
// directly into the fake nodes that the committee assigns each shard to,
// bypassing PutMetadata/PutSliver so read-only tests don't need a prior
// write.
func seedEncodedBlob(cm *types.Committee, specs []nodeSpec, encoded *codec.EncodedBlob, nShards int) {
	for _, pair := range encoded.Slivers {
		shard := merkle.ShardOfPair(pair.PairIndex, encoded.BlobID, nShards)
		nodeIdx := cm.ShardOwner(shard)
		tn := specs[nodeIdx].node

		tn.mu.Lock()
		tn.metadata[encoded.BlobID] = encoded.Metadata
		tn.slivers[sliverKey{encoded.BlobID, pair.PairIndex, true}] = pair.Primary
		tn.slivers[sliverKey{encoded.BlobID, pair.PairIndex, false}] = pair.Secondary
		tn.mu.Unlock()
	}
}

func TestReadBlobHappyPath(t *testing.T) {
	const nShards = 12
	data := []byte("walrus client core happy path read test payload spanning several shards")

	encoded, err := codec.EncodeBlob(nShards, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	specs := []nodeSpec{
		{newTestNode(t), 4},
		{newTestNode(t), 4},
		{newTestNode(t), 4},
	}
	cm := mustCommittee(t, 1, specs, nShards)
	seedEncodedBlob(cm, specs, encoded, nShards)

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards, EpochState: types.EpochStateNormal})
	fc.committees[1] = cm

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.ReadBlob(context.Background(), encoded.BlobID)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestReadBlobNotCertified(t *testing.T) {
	// 67 of 100 shards' owner authoritatively reports not-found; that
	// alone crosses quorum regardless of what the remaining 33 answer.
	const nShards = 100

	down := newTestNode(t)
	down.forceCode = http.StatusNotFound
	up := newTestNode(t)

	specs := []nodeSpec{{down, 67}, {up, 33}}
	cm := mustCommittee(t, 1, specs, nShards)

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards})
	fc.committees[1] = cm

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var blobID types.BlobID
	blobID[0] = 0x42

	_, err = c.ReadBlob(context.Background(), blobID)

	var notCertified *walruserrors.BlobNotCertified
	if !errors.As(err, &notCertified) {
		t.Fatalf("got %v, want BlobNotCertified", err)
	}
}

func TestReadBlobInconsistentBlob(t *testing.T) {
	// Every node claims metadata for blobID1 but actually serves the
	// slivers from an unrelated encoding: reconstruction succeeds but
	// rehashing the result lands on a different BlobId.
	const nShards = 12
	data1 := bytes.Repeat([]byte{0xA1}, 64)
	data2 := bytes.Repeat([]byte{0xB2}, 64)

	encoded1, err := codec.EncodeBlob(nShards, data1)
	if err != nil {
		t.Fatalf("encode1: %v", err)
	}
	encoded2, err := codec.EncodeBlob(nShards, data2)
	if err != nil {
		t.Fatalf("encode2: %v", err)
	}

	specs := []nodeSpec{
		{newTestNode(t), 4},
		{newTestNode(t), 4},
		{newTestNode(t), 4},
	}
	cm := mustCommittee(t, 1, specs, nShards)

	for _, s := range specs {
		s.node.mu.Lock()
		s.node.metadata[encoded1.BlobID] = encoded1.Metadata
		s.node.mu.Unlock()
	}
	for _, pair := range encoded2.Slivers {
		shard := merkle.ShardOfPair(pair.PairIndex, encoded1.BlobID, nShards)
		nodeIdx := cm.ShardOwner(shard)
		tn := specs[nodeIdx].node
		tn.mu.Lock()
		tn.slivers[sliverKey{encoded1.BlobID, pair.PairIndex, true}] = pair.Primary
		tn.slivers[sliverKey{encoded1.BlobID, pair.PairIndex, false}] = pair.Secondary
		tn.mu.Unlock()
	}

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards})
	fc.committees[1] = cm

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.ReadBlob(context.Background(), encoded1.BlobID)

	var inconsistent *walruserrors.InconsistentBlob
	if !errors.As(err, &inconsistent) {
		t.Fatalf("got %v, want InconsistentBlob", err)
	}
}

func TestWriteBlobHappyPathAllSign(t *testing.T) {
	const nShards = 10
	data := []byte("write path happy path payload, ten nodes, ten shards")

	specs := make([]nodeSpec, nShards)
	for i := range specs {
		specs[i] = nodeSpec{newTestNode(t), 1}
	}
	cm := mustCommittee(t, 1, specs, nShards)

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards})
	fc.committees[1] = cm
	fc.digest = [32]byte{0xAB}

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blobID, objectID, err := c.WriteBlob(context.Background(), data, 3, false)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if objectID != fc.digest {
		t.Errorf("objectID = %x, want digest %x", objectID, fc.digest)
	}

	encoded, err := codec.EncodeBlob(nShards, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if blobID != encoded.BlobID {
		t.Error("returned blobId does not match the deterministic encoding of the written data")
	}

	call := fc.lastCall(t, "certify_blob")
	var args struct {
		SignerBitmap string `json:"signerBitmap"`
	}
	if err := json.Unmarshal(call.ArgsJSON, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.SignerBitmap != "ff03" {
		t.Errorf("signerBitmap = %q, want ff03 (all ten nodes signed)", args.SignerBitmap)
	}
}

func TestWriteBlobToleratesMinorityFailures(t *testing.T) {
	// 10 nodes, weight 10 each (n_shards=100). The last three are down;
	// the remaining 70 weight still clears the 67 quorum threshold.
	const nShards = 100
	data := []byte("write survives three of ten node failures")

	specs := make([]nodeSpec, 10)
	for i := range specs {
		specs[i] = nodeSpec{newTestNode(t), 10}
	}
	for i := 7; i < 10; i++ {
		specs[i].node.mu.Lock()
		specs[i].node.forceCode = http.StatusInternalServerError
		specs[i].node.mu.Unlock()
	}

	cm := mustCommittee(t, 1, specs, nShards)

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards})
	fc.committees[1] = cm
	fc.digest = [32]byte{0xCD}

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = c.WriteBlob(context.Background(), data, 1, false)
	if err != nil {
		t.Fatalf("WriteBlob should tolerate 3 of 10 node failures: %v", err)
	}

	call := fc.lastCall(t, "certify_blob")
	var args struct {
		SignerBitmap string `json:"signerBitmap"`
	}
	if err := json.Unmarshal(call.ArgsJSON, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.SignerBitmap != "7f00" {
		t.Errorf("signerBitmap = %q, want 7f00 (nodes 0-6 signed, 7-9 down)", args.SignerBitmap)
	}
}

func TestReadBlobRetriesOnceAfterEpochChange(t *testing.T) {
	// The chain has already moved to epoch 2, but the client's cached
	// committee (built for the first ReadBlob call) is epoch 1. The first
	// attempt detects the mismatch via CheckEpoch and fails retryably;
	// the second attempt, after the cache reset, succeeds against the
	// epoch-2 committee.
	const nShards = 4
	data := []byte("epoch change retry payload")

	encoded, err := codec.EncodeBlob(nShards, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	specsEpoch1 := []nodeSpec{{newTestNode(t), 2}, {newTestNode(t), 2}}
	cmEpoch1 := mustCommittee(t, 1, specsEpoch1, nShards)

	specsEpoch2 := []nodeSpec{{newTestNode(t), 2}, {newTestNode(t), 2}}
	cmEpoch2 := mustCommittee(t, 2, specsEpoch2, nShards)
	seedEncodedBlob(cmEpoch2, specsEpoch2, encoded, nShards)

	fc := newFakeChain(types.SystemState{Epoch: 1, NShards: nShards})
	fc.committees[1] = cmEpoch1
	fc.committees[2] = cmEpoch2

	c, err := New(Config{Chain: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Prime the client's committee cache at epoch 1 with a throwaway
	// lookup, then advance the chain to epoch 2 behind its back.
	if _, err := c.committees.ActiveCommittee(context.Background()); err != nil {
		t.Fatalf("prime committee cache: %v", err)
	}
	fc.mu.Lock()
	fc.state.Epoch = 2
	fc.mu.Unlock()

	got, err := c.ReadBlob(context.Background(), encoded.BlobID)
	if err != nil {
		t.Fatalf("ReadBlob should succeed after one retry: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}
