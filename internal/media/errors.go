package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrPathTraversal indicates a cache file name tried to escape the cache dir.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrEmptyName indicates a cache entry was requested without a file name.
	ErrEmptyName = errors.New("media file name is required")
)
