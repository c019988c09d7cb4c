package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	frameHeaderLen  = 4
	MaxFramePayload = math.MaxUint16
)

var frameHeader = [2]byte{0x94, 0xC3}

var ErrFrameTooLarge = errors.New("frame payload too large")

type readFullFunc func(buf []byte) error

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, frameHeaderLen+len(payload))
	frame[0] = frameHeader[0]
	frame[1] = frameHeader[1]
	// #nosec G115 -- length is bounded by MaxFramePayload above.
	binary.BigEndian.PutUint16(frame[2:frameHeaderLen], uint16(len(payload)))
	copy(frame[frameHeaderLen:], payload)

	return frame, nil
}

func readFrame(readFull readFullFunc) ([]byte, error) {
	if err := resyncToHeader(readFull); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if err := readFull(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln == 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	payload := make([]byte, ln)
	if err := readFull(payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

// resyncToHeader discards bytes until the two-byte frame header has been consumed.
func resyncToHeader(readFull readFullFunc) error {
	buf := make([]byte, 1)
	matched := 0
	for matched < len(frameHeader) {
		if err := readFull(buf); err != nil {
			return fmt.Errorf("read frame header: %w", err)
		}
		switch {
		case buf[0] == frameHeader[matched]:
			matched++
		case buf[0] == frameHeader[0]:
			matched = 1
		default:
			matched = 0
		}
	}

	return nil
}

func ioReadFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)

		return err
	}
}
