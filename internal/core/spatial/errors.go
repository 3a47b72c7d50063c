package spatial

import "errors"

// Index errors. Both indicate a caller contract violation; neither is
// retryable.
var (
	ErrNotTracked     = errors.New("entity is not tracked by the index")
	ErrAlreadyTracked = errors.New("entity is already tracked by the index")
)
