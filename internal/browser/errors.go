package browser

import "errors"

var (
	// ErrEngineLaunch marks failures to start the engine process or open its
	// browsing context. The supervisor's restart policy retries these.
	ErrEngineLaunch = errors.New("engine launch failed")

	// ErrUnsupportedOperation is returned by Call for unknown method names.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
