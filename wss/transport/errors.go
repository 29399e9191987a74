package transport

import (
	"errors"
	"fmt"
)

// Stage names one step of the connection handshake.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageConnect   Stage = "connect"
	StageTLS       Stage = "tls handshake"
	StageWebSocket Stage = "websocket handshake"
)

var ErrNoAddresses = errors.New("no addresses found")

// StageError reports which handshake stage failed and why.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, if err carries one.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}
