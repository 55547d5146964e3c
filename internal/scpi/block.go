package scpi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// readBlock reads one IEEE 488.2 arbitrary block response:
//
//	#<d><d digits of length><payload>\n
//
// The trailing line terminator is consumed and not returned. Indefinite
// blocks (#0) are rejected: their end cannot be found in binary payloads
// that contain line feeds.
func readBlock(r *bufio.Reader) ([]byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != '#' {
		return nil, fmt.Errorf("%w: expected '#', got %q", ErrBlockFormat, b)
	}
	d, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if d < '0' || d > '9' {
		return nil, fmt.Errorf("%w: bad length digit %q", ErrBlockFormat, d)
	}

	if d == '0' {
		return nil, fmt.Errorf("%w: indefinite length block not supported", ErrBlockFormat)
	}

	digits := make([]byte, int(d-'0'))
	if _, err := io.ReadFull(r, digits); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad length %q", ErrBlockFormat, digits)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	term, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if term == '\r' {
		if term, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	if term != '\n' {
		return nil, fmt.Errorf("%w: missing terminator after %d bytes", ErrBlockFormat, n)
	}
	return payload, nil
}

// decodeFloat32 converts packed REAL,32 samples to float64.
func decodeFloat32(payload []byte, order binary.ByteOrder) ([]float64, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 samples", ErrBlockFormat, len(payload))
	}
	out := make([]float64, len(payload)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(order.Uint32(payload[i*4:])))
	}
	return out, nil
}
