package common

const (
	// RELAYER name to identify the bridge relayer component
	RELAYER = "relayer"
	// BRIDGE_RPC name to identify the operational bridge RPC component
	BRIDGE_RPC = "bridge-rpc" //nolint:stylecheck
)
