// Package network provides network profile definitions and a registry.
// A profile captures what differs between target networks (chain ID, native
// symbol, explorer, transaction format) so callers never switch on names.
package network

// Profile describes a target network.
type Profile struct {
	// Name is the canonical identifier (e.g., "monad-testnet").
	Name string

	// DisplayName is shown in status output.
	DisplayName string

	// ChainID is the default chain ID for this network.
	ChainID int64

	// NativeSymbol is the ticker of the native asset.
	NativeSymbol string

	// ExplorerTxURL is prefixed to transaction hashes to form explorer links.
	ExplorerTxURL string

	// RequiresLegacyTx indicates the network only accepts type-0 transactions.
	RequiresLegacyTx bool
}

// String returns the canonical name of the network.
func (p *Profile) String() string {
	if p == nil {
		return "unknown"
	}
	return p.Name
}

// TxLink returns the explorer link for hash, or hash itself when the profile
// has no explorer.
func (p *Profile) TxLink(hash string) string {
	if p == nil || p.ExplorerTxURL == "" {
		return hash
	}
	return p.ExplorerTxURL + hash
}
