package mintclient

import "fmt"

// NUT error codes the melt path branches on.
const (
	ErrCodeTokenAlreadySpent = 11001
	ErrCodeProofsPending     = 11002
)

// OperationError carries the mint's structured NUT error response, so
// callers can branch on Code with errors.As instead of string-matching
// Detail.
type OperationError struct {
	Code   int
	Detail string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("mint error %d: %s", e.Code, e.Detail)
}
