package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex parses a decimal or 0x-prefixed hexadecimal quantity.
func ParseUint64orHex(val string) (uint64, error) {
	val = strings.TrimSpace(val)
	if rest, ok := strings.CutPrefix(strings.ToLower(val), "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(val, 10, 64)
}

// ParseBlockNumber parses a decimal block number as stored in state files.
func ParseBlockNumber(val string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(val), 10, 64)
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
