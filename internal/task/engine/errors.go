package engine

import "errors"

var (
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrOverlapSkip = errors.New("task skipped due to overlap policy")
)
