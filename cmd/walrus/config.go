package main

import (
	"flag"
	"time"

	"walrus/client"
	"walrus/internal/diskcache"
	"walrus/internal/storagenode"
)

// commonFlags holds the chain-connection flags every subcommand needs.
type commonFlags struct {
	rpcURL          string
	network         string
	concurrencyHint int
	storageTimeout  time.Duration
	userAgent       string
	cacheDir        string
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.rpcURL, "rpc", "http://127.0.0.1:9000", "Sui full node JSON-RPC URL")
	fs.StringVar(&cf.network, "network", "testnet", "well-known network preset for package/object IDs")
	fs.IntVar(&cf.concurrencyHint, "concurrency", 4, "number of fallback rounds for first-success reads")
	fs.DurationVar(&cf.storageTimeout, "storage-timeout", 30*time.Second, "per-request timeout against storage nodes")
	fs.StringVar(&cf.userAgent, "user-agent", "walrus-cli/1", "User-Agent sent to storage nodes")
	fs.StringVar(&cf.cacheDir, "cache-dir", "", "local disk cache directory for slivers and metadata; disabled if empty")
	return cf
}

func (cf *commonFlags) newClient() (*client.Client, error) {
	var cache *diskcache.Cache
	if cf.cacheDir != "" {
		var err error
		cache, err = diskcache.Open(cf.cacheDir)
		if err != nil {
			return nil, err
		}
	}

	return client.New(client.Config{
		Network:         cf.network,
		SuiRPCURL:       cf.rpcURL,
		ConcurrencyHint: cf.concurrencyHint,
		StorageNodeClientOptions: storagenode.Options{
			Timeout:   cf.storageTimeout,
			UserAgent: cf.userAgent,
		},
		Cache: cache,
	})
}
