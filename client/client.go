// Package client assembles the committee view, storage-node transport,
// quorum dispatcher, and on-chain client into the two public entry
// points a Walrus application actually calls: ReadBlob and WriteBlob.
// Everything upstream of this package is a collaborator with no opinion
// about blobs; this package is where the opinion lives.
package client

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"walrus/internal/chain"
	"walrus/internal/committee"
	"walrus/internal/diskcache"
	"walrus/internal/objectloader"
	"walrus/internal/storagenode"
	"walrus/internal/types"
)

// Config configures a Client.
type Config struct {
	// Chain is the client's view of the Sui chain: system state,
	// committee lookups, transaction submission, and attribute reads.
	// If nil, New builds an HTTP-based chain client from Network/
	// PackageConfig/SuiRPCURL instead.
	Chain chain.FullClient
	// Network is a well-known preset selector (e.g. "testnet") New
	// resolves into a chain.PackageConfig when Chain is nil and
	// PackageConfig isn't set explicitly.
	Network string
	// PackageConfig pins the package and object IDs New's built-in
	// chain client submits Move calls against. Required, absent
	// Network, when Chain is nil.
	PackageConfig *chain.PackageConfig
	// SuiRPCURL is the Sui full node JSON-RPC endpoint New's built-in
	// chain client talks to. Required when Chain is nil.
	SuiRPCURL string
	// HTTPClient is reused across every storage-node connection. Nil
	// builds one from StorageNodeClientOptions.
	HTTPClient *http.Client
	// StorageNodeClientOptions configures storage-node connections
	// built when HTTPClient is nil: request timeout, TLS, and the
	// User-Agent sent on every request.
	StorageNodeClientOptions storagenode.Options
	// ConcurrencyHint is the number of rounds the first-success metadata
	// fetch splits its remaining nodes into, once the single fastest-guess
	// request has failed; each round tries ceil(remaining/ConcurrencyHint)
	// nodes.
	ConcurrencyHint int
	// StatusLoaderWindow is the batching window the status loader waits
	// before flushing queued blob IDs into one round of fan-out calls.
	StatusLoaderWindow time.Duration
	// Cache is an optional local disk cache consulted before every
	// metadata/sliver fetch and populated after every successful one.
	// Nil disables it — every read goes to the committee.
	Cache *diskcache.Cache
}

// Client is the Walrus client core: a cached committee view plus the
// node connections, loader, and chain client it composes over.
type Client struct {
	chain       chain.FullClient
	httpClient  *http.Client
	nodeOptions storagenode.Options
	concurrency int
	cache       *diskcache.Cache

	committees *committee.View

	mu          sync.Mutex
	nodeClients map[types.NodeID]*storagenode.Client

	statusLoader *objectloader.Loader[types.BlobID, types.BlobStatus]
}

// New creates a Client over the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Chain == nil {
		pkg, err := chain.ResolvePackageConfig(cfg.Network, cfg.PackageConfig)
		if err != nil {
			return nil, err
		}
		if cfg.SuiRPCURL == "" {
			return nil, fmt.Errorf("client: either Chain or SuiRPCURL must be set")
		}
		cfg.Chain = chain.NewHTTPClient(cfg.SuiRPCURL, pkg, cfg.HTTPClient)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.ConcurrencyHint < 1 {
		cfg.ConcurrencyHint = 4
	}
	if cfg.StatusLoaderWindow <= 0 {
		cfg.StatusLoaderWindow = 20 * time.Millisecond
	}

	c := &Client{
		chain:       cfg.Chain,
		httpClient:  cfg.HTTPClient,
		nodeOptions: cfg.StorageNodeClientOptions,
		concurrency: cfg.ConcurrencyHint,
		cache:       cfg.Cache,
		committees:  committee.New(cfg.Chain),
		nodeClients: make(map[types.NodeID]*storagenode.Client),
	}
	c.statusLoader = objectloader.New(c.batchStatus, cfg.StatusLoaderWindow)

	return c, nil
}

// reset drops the cached active committee and any blob status already
// loaded under the stale committee; committees cached per epoch are
// kept. Called once, automatically, by the retry wrapper
// around a Retryable failure.
func (c *Client) reset() {
	c.committees.Invalidate()
	c.statusLoader.Clear()
}

// nodeClient returns the (possibly cached) storage-node transport for a
// committee member.
func (c *Client) nodeClient(n types.Node) (*storagenode.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.nodeClients[n.NodeID]; ok {
		return cl, nil
	}

	cl, err := storagenode.New(n, c.httpClient, c.nodeOptions)
	if err != nil {
		return nil, err
	}
	c.nodeClients[n.NodeID] = cl

	return cl, nil
}
