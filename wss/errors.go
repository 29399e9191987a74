package wss

import (
	"errors"
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrClosed            = errors.New("worker closed")
)
