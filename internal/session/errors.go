package session

import "errors"

var (
	// ErrNotProvisioned is returned by Load when no usable credentials are stored.
	ErrNotProvisioned = errors.New("session: device not provisioned")

	// ErrAssociationTimeout is returned when the link does not come up in time.
	ErrAssociationTimeout = errors.New("session: association timed out")

	// ErrFirstAssociation is returned when never-verified credentials fail
	// the self-test. The stored credentials have been erased.
	ErrFirstAssociation = errors.New("session: first association failed")

	// ErrRejected is returned when the cloud answers with a non-accepted state.
	ErrRejected = errors.New("session: verification rejected")

	// ErrAuthTimeout is returned when no accepted verification arrives in time.
	ErrAuthTimeout = errors.New("session: authentication timed out")
)
