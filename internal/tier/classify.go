package tier

import "encoding/json"

// ruleKind captures how a method addresses chain data, which determines its
// base tier and how a floating block tag degrades it.
type ruleKind int

const (
	// byHash - addressed strictly by hash, result can never change
	byHash ruleKind = iota
	// byNumber - finalized-by-number data; floating tag degrades to Medium
	byNumber
	// byRange - filter over a block range; floating bound degrades to Medium
	byRange
	// tipRead - tracks the chain tip; floating tag degrades to Realtime
	tipRead
	// stateRead - account/contract state; only cacheable pinned to a
	// concrete block, floating or missing tag means NoCache
	stateRead
	// mempool - pending pool data, changes constantly
	mempool
	// stateful - filter/subscription bookkeeping held by the node
	stateful
	// write - signs, broadcasts, or mutates
	write
)

// rule maps a method to its addressing kind and the position of its block
// argument (-1 when the method takes none).
type rule struct {
	kind          ruleKind
	blockParamIdx int
}

// methodRules is the closed classification table. Methods absent from the
// table fall back to Short.
var methodRules = map[string]rule{
	// Addressed by hash - immutable once created
	"eth_getBlockByHash":                    {byHash, -1},
	"eth_getTransactionByHash":              {byHash, -1},
	"eth_getTransactionReceipt":             {byHash, -1},
	"eth_getBlockTransactionCountByHash":    {byHash, -1},
	"eth_getTransactionByBlockHashAndIndex": {byHash, -1},
	"eth_getUncleByBlockHashAndIndex":       {byHash, -1},
	"eth_getUncleCountByBlockHash":          {byHash, -1},
	"debug_traceBlockByHash":                {byHash, -1},
	"debug_traceTransaction":                {byHash, -1},
	"trace_transaction":                     {byHash, -1},
	"trace_replayTransaction":               {byHash, -1},

	// Chain identity never changes for a configured endpoint
	"eth_chainId": {byHash, -1},
	"net_version": {byHash, -1},

	// Finalized-by-number data
	"eth_getBlockByNumber":                    {byNumber, 0},
	"eth_getBlockTransactionCountByNumber":    {byNumber, 0},
	"eth_getTransactionByBlockNumberAndIndex": {byNumber, 0},
	"eth_getBlockReceipts":                    {byNumber, 0},
	"eth_getUncleByBlockNumberAndIndex":       {byNumber, 0},
	"eth_getUncleCountByBlockNumber":          {byNumber, 0},
	"debug_traceBlockByNumber":                {byNumber, 0},
	"trace_block":                             {byNumber, 0},
	"trace_replayBlockTransactions":           {byNumber, 0},

	// Block-range filters
	"eth_getLogs":  {byRange, -1},
	"trace_filter": {byRange, -1},

	// Tip-tracking reads
	"eth_blockNumber":          {tipRead, -1},
	"eth_gasPrice":             {tipRead, -1},
	"eth_maxPriorityFeePerGas": {tipRead, -1},
	"eth_feeHistory":           {tipRead, 1},
	"eth_syncing":              {tipRead, -1},
	"net_peerCount":            {tipRead, -1},

	// State reads - cacheable only pinned to a concrete block
	"eth_getBalance":          {stateRead, 1},
	"eth_getCode":             {stateRead, 1},
	"eth_getTransactionCount": {stateRead, 1},
	"eth_getStorageAt":        {stateRead, 2},
	"eth_call":                {stateRead, 1},
	"eth_getProof":            {stateRead, 2},
	"eth_estimateGas":         {stateRead, 1},
	"debug_traceCall":         {stateRead, 1},
	"trace_call":              {stateRead, 1},
	"trace_callMany":          {stateRead, 1},

	// Mempool/pending data
	"eth_pendingTransactions":    {mempool, -1},
	"txpool_content":             {mempool, -1},
	"txpool_status":              {mempool, -1},
	"parity_pendingTransactions": {mempool, -1},

	// Node-held filter and subscription state
	"eth_newFilter":                   {stateful, -1},
	"eth_newBlockFilter":              {stateful, -1},
	"eth_newPendingTransactionFilter": {stateful, -1},
	"eth_getFilterChanges":            {stateful, -1},
	"eth_getFilterLogs":               {stateful, -1},
	"eth_uninstallFilter":             {stateful, -1},
	"eth_subscribe":                   {stateful, -1},
	"eth_unsubscribe":                 {stateful, -1},
	"eth_accounts":                    {stateful, -1},
	"eth_coinbase":                    {stateful, -1},

	// Writes and signing
	"eth_sendRawTransaction":   {write, -1},
	"eth_sendTransaction":      {write, -1},
	"eth_sign":                 {write, -1},
	"eth_signTransaction":      {write, -1},
	"eth_signTypedData":        {write, -1},
	"personal_sign":            {write, -1},
	"personal_sendTransaction": {write, -1},
	"eth_sendUserOperation":    {write, -1},
}

// Classify returns the cache tier for a method call. Pure and deterministic:
// the tier is a total function of the method name with a params-based
// override for floating block tags.
func Classify(method string, params json.RawMessage) Tier {
	r, known := methodRules[method]
	if !known {
		// Unknown methods are cached briefly: short enough to never serve
		// a stale write, long enough to absorb request storms
		return Short
	}

	switch r.kind {
	case byHash:
		return Immutable
	case byNumber:
		if blockParamFloating(params, r.blockParamIdx) {
			return Medium
		}
		return Long
	case byRange:
		if rangeFloating(params) {
			return Medium
		}
		return Long
	case tipRead:
		if r.blockParamIdx >= 0 && blockParamFloating(params, r.blockParamIdx) {
			return Realtime
		}
		return Medium
	case stateRead:
		if blockParamFloating(params, r.blockParamIdx) {
			return NoCache
		}
		return Long
	case mempool:
		return Short
	case stateful, write:
		return NoCache
	default:
		return Short
	}
}

// IsWrite returns true for methods that sign, broadcast, or mutate state.
// The rate gate fails closed for these when its backing store is down.
func IsWrite(method string) bool {
	r, known := methodRules[method]
	return known && r.kind == write
}
