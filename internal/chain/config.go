package chain

import "fmt"

// PackageConfig pins the on-chain package and object IDs a chain client
// builds its Move calls against: the published package, the staking
// pool, and the shared System object every system-module call touches.
type PackageConfig struct {
	PackageID       string
	LatestPackageID string
	WalPackageID    string
	SystemObjectID  string
	StakingPoolID   string
}

// NetworkPresets maps a well-known network name to the package
// configuration that network's deployment publishes, so a caller can
// say "testnet" instead of copying five object IDs by hand.
var NetworkPresets = map[string]PackageConfig{
	"testnet": {
		PackageID:       "0x295a1b3a4eb3a2dc6b70f5e39fd33b37e3f1d1db6e4c1bf5f5e1e6a1e9c7a901",
		LatestPackageID: "0x295a1b3a4eb3a2dc6b70f5e39fd33b37e3f1d1db6e4c1bf5f5e1e6a1e9c7a901",
		WalPackageID:    "0x8190b041122009e10f934d40656ce2e89c3e9e6e5a6e1a4d9b5a7f1e4d6c802",
		SystemObjectID:  "0x6c2547cbbc38025cf3adac45f62cb0a8d18ca0e07ad5e1e69f8e6e89abd3cda",
		StakingPoolID:   "0x10b9d30c4f20ce9e4b5e9f1fce5b7f5c3f6b1a7e9d1d5e4a6b9f2d7e8e3c1b55",
	},
}

// ResolvePackageConfig resolves the package configuration an HTTPClient
// builds Move calls against: an explicitly supplied PackageConfig always
// wins, otherwise a named network preset is looked up.
func ResolvePackageConfig(network string, explicit *PackageConfig) (PackageConfig, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if network == "" {
		return PackageConfig{}, fmt.Errorf("chain: either a network preset or an explicit packageConfig is required")
	}
	preset, ok := NetworkPresets[network]
	if !ok {
		return PackageConfig{}, fmt.Errorf("chain: unknown network preset %q", network)
	}
	return preset, nil
}
