package glowmarkt

import (
	"errors"
	"fmt"
)

var (
	// ErrCannotConnect is returned on network failures, timeouts and
	// unexpected responses. It is the only retryable error kind.
	ErrCannotConnect = errors.New("glowmarkt: cannot connect")
	// ErrInvalidAuth is returned when the credential set or token is rejected.
	ErrInvalidAuth = errors.New("glowmarkt: invalid auth")
	// ErrNoCadAvailable is returned when no Consumer Access Device is found.
	ErrNoCadAvailable = errors.New("glowmarkt: no CAD available")
	// ErrMalformedPayload is returned when a telemetry message cannot be decoded.
	ErrMalformedPayload = errors.New("glowmarkt: malformed payload")
)

func IsRetryable(err error) bool {
	return errors.Is(err, ErrCannotConnect)
}

// AsConnectError keeps a classified connect error and reports anything else,
// such as a timeout, as ErrCannotConnect.
func AsConnectError(err error) error {
	if err == nil ||
		errors.Is(err, ErrInvalidAuth) ||
		errors.Is(err, ErrNoCadAvailable) ||
		errors.Is(err, ErrCannotConnect) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCannotConnect, err)
}
