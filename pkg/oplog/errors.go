package oplog

import "errors"

// Log invariant errors. Both indicate a bug in the caller and are never
// expected during correct operation.
var (
	ErrSequenceConflict  = errors.New("sequence number does not match log length")
	ErrTruncateCommitted = errors.New("cannot truncate committed log prefix")
)
