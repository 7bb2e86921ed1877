package reorg

import "fmt"

// UpToDateError is returned when the resume point already reaches the scan end block.
type UpToDateError struct {
	StartBlock uint64
	EndBlock   uint64
}

func (e *UpToDateError) Error() string {
	return fmt.Sprintf("nothing to scan: start block %d is past end block %d", e.StartBlock, e.EndBlock)
}

// NewUpToDateError creates a new UpToDateError.
func NewUpToDateError(startBlock, endBlock uint64) error {
	return &UpToDateError{
		StartBlock: startBlock,
		EndBlock:   endBlock,
	}
}
