package iomap

import "errors"

var (
	// ErrReserved is returned when a control keyword is written as a value.
	ErrReserved = errors.New("iomap: reserved reference")

	// ErrPinImmutable is returned when a reference is redeclared on another pin.
	ErrPinImmutable = errors.New("iomap: pin assignment is immutable")

	// ErrUnknownRef is returned for operations on undeclared references.
	ErrUnknownRef = errors.New("iomap: unknown reference")

	// ErrNotNumeric is returned when a non-numeric value targets an output pin.
	ErrNotNumeric = errors.New("iomap: value is not numeric")

	// ErrNotInput is returned when sampling a reference that is not an input.
	ErrNotInput = errors.New("iomap: reference is not an input")
)
