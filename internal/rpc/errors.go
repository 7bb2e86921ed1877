package rpc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	blockRangeRe     = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// rangeLimitMarkers are provider messages returned when an eth_getLogs range is too wide.
var rangeLimitMarkers = []string{
	"block range is too wide",
	"block range too large",
	"exceed maximum block range",
	"query exceeds max block range",
	"log response size exceeded",
	"query timeout exceeded",
	"range limit exceeded",
	"is limited to",
}

// IsTooManyResultsError checks if the error is an RPC "too many results" error (DataError with message in ErrorData).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	return false, ""
}

// IsRangeLimitError reports whether the node rejected a log query because of its block range
// or result size. Such a query is worth repeating over a smaller range.
func IsRangeLimitError(err error) bool {
	if err == nil {
		return false
	}

	if ok, _ := IsTooManyResultsError(err); ok {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rangeLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// SuggestedBlockRange extracts the block range a node proposes in a "too many results" error.
func SuggestedBlockRange(err error) (fromBlock, toBlock uint64, ok bool) {
	tooMany, data := IsTooManyResultsError(err)
	if !tooMany {
		return 0, 0, false
	}
	return ParseSuggestedBlockRange(data)
}

// ParseSuggestedBlockRange attempts to extract the suggested block range from the error message.
// Returns the suggested fromBlock and toBlock, and true if successfully parsed.
// Expected format: "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(err string) (fromBlock, toBlock uint64, ok bool) {
	if err == "" {
		return 0, 0, false
	}

	matches := blockRangeRe.FindStringSubmatch(err)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(matches[1])
	to, err2 := common.ParseUint64orHex(matches[2])

	if err1 != nil || err2 != nil || from > to {
		return 0, 0, false
	}

	return from, to, true
}
