package publisher

import "errors"

// Sentinel kinds for publish errors.
var (
	ErrEncode  = errors.New("encode status payload")
	ErrConnect = errors.New("connect to broker")
	ErrPublish = errors.New("publish status")
)
