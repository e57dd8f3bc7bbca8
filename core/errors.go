package core

import (
	"errors"
	"fmt"
)

var (
	ErrInactive            = errors.New("broker is not running")
	ErrAlreadyStarted      = errors.New("broker already started")
	ErrNoLocalSubscription = errors.New("no local subscription for topic")
	ErrNoReceiver          = errors.New("no receiver on queue")
	ErrTimeout             = errors.New("rpc reply timed out")
	ErrTransportClosed     = errors.New("transport connection closed")
	ErrRPCServerExists     = errors.New("rpc server already registered for queue")
)

// HandlerError reports a subscriber failing during synchronous local
// fan-out. Delivery to later subscribers of the topic was aborted.
type HandlerError struct {
	Topic string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed: topic=%s: %v", e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
