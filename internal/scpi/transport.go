// Package scpi carries SCPI command strings to an instrument and brings
// the replies back. It provides the Transport seam used by instrument
// drivers, a raw-socket implementation of it and a simulated FPC for
// tests and offline use.
package scpi

import "errors"

// Transport is the request/response surface an instrument driver needs.
// Implementations own their connection and are not safe for concurrent
// use.
type Transport interface {
	// Write sends a command that produces no response.
	Write(cmd string) error
	// Query sends a command and returns its ASCII response with the line
	// terminator removed.
	Query(cmd string) (string, error)
	// QueryBinaryFloat32 sends a command answered by an IEEE 488.2 block
	// of 32-bit floats and returns the decoded samples.
	QueryBinaryFloat32(cmd string) ([]float64, error)
	Close() error
}

var (
	// ErrUnsupportedResource is returned for resource names that do not
	// describe a raw TCP/IP socket endpoint.
	ErrUnsupportedResource = errors.New("scpi: unsupported resource")

	// ErrBlockFormat is returned when a binary response is not a valid
	// IEEE 488.2 arbitrary block.
	ErrBlockFormat = errors.New("scpi: malformed binary block")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("scpi: transport closed")
)
