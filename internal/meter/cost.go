package meter

import "strings"

// Compute-unit cost bands, tiered by resource intensity at the origin
const (
	CostTrivial = 1   // cheap constant-time reads
	CostState   = 10  // state-dependent execution
	CostLogs    = 25  // log/filter scans
	CostWrite   = 50  // broadcast/signing
	CostTrace   = 100 // debug/trace re-execution

	// DefaultCost applies to unrecognized methods
	DefaultCost = CostState
)

// methodCosts is the fixed cost table for known methods
var methodCosts = map[string]int{
	"eth_chainId":              CostTrivial,
	"net_version":              CostTrivial,
	"eth_blockNumber":          CostTrivial,
	"eth_gasPrice":             CostTrivial,
	"eth_maxPriorityFeePerGas": CostTrivial,
	"eth_syncing":              CostTrivial,
	"net_peerCount":            CostTrivial,

	"eth_getBalance":                          CostState,
	"eth_getCode":                             CostState,
	"eth_getStorageAt":                        CostState,
	"eth_getTransactionCount":                 CostState,
	"eth_call":                                CostState,
	"eth_estimateGas":                         CostState,
	"eth_getProof":                            CostState,
	"eth_feeHistory":                          CostState,
	"eth_getBlockByHash":                      CostState,
	"eth_getBlockByNumber":                    CostState,
	"eth_getTransactionByHash":                CostState,
	"eth_getTransactionReceipt":               CostState,
	"eth_getBlockReceipts":                    CostState,
	"eth_getBlockTransactionCountByHash":      CostState,
	"eth_getBlockTransactionCountByNumber":    CostState,
	"eth_getTransactionByBlockHashAndIndex":   CostState,
	"eth_getTransactionByBlockNumberAndIndex": CostState,

	"eth_getLogs":          CostLogs,
	"eth_newFilter":        CostLogs,
	"eth_getFilterChanges": CostLogs,
	"eth_getFilterLogs":    CostLogs,
	"trace_filter":         CostLogs,

	"eth_sendRawTransaction":   CostWrite,
	"eth_sendTransaction":      CostWrite,
	"eth_sign":                 CostWrite,
	"eth_signTransaction":      CostWrite,
	"personal_sendTransaction": CostWrite,
	"eth_sendUserOperation":    CostWrite,
}

// Cost returns the compute units billed for one call of the method.
// Whole debug/trace namespaces are priced by prefix so new tracer variants
// stay expensive without table churn.
func Cost(method string) int {
	if cost, ok := methodCosts[method]; ok {
		return cost
	}
	if strings.HasPrefix(method, "debug_") || strings.HasPrefix(method, "trace_") {
		return CostTrace
	}
	return DefaultCost
}
