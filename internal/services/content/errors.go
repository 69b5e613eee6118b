package content

import "errors"

var (
	// ErrMissingAsset means a referenced blob is absent from media storage.
	ErrMissingAsset = errors.New("content: asset blob missing")
	// ErrEmptyContent means nothing deliverable remained after fallbacks.
	ErrEmptyContent = errors.New("content: nothing to send")
	// ErrButtonNotFound means a callback token no longer maps to a button.
	ErrButtonNotFound = errors.New("content: button not found")
)
