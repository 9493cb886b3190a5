package cloud

import "errors"

var (
	// ErrStatus is returned for any non-2xx response.
	ErrStatus = errors.New("cloud: unexpected status")

	// ErrNoToken is returned when an authenticated call is made before Verify.
	ErrNoToken = errors.New("cloud: not authenticated")
)
