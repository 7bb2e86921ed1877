package common

const bytesInMB = 1024 * 1024

// BytesToMB converts a byte count to whole mebibytes.
func BytesToMB(bytes uint64) uint64 {
	return bytes / bytesInMB
}
