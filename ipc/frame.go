// Package ipc implements the framing protocol between the analysis worker
// process and the supervising runtime: length-prefixed msgpack frames on
// the worker's stdout, carrying a single analysis result.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the big-endian length prefix in bytes.
	LengthPrefixSize = 4
)

// ResultType is the type discriminant for analysis result frames.
const ResultType = "analysis_result"

// ResultStatus is the status of an analysis result.
type ResultStatus string

const (
	// ResultCompleted indicates the worker recovered a schema.
	ResultCompleted ResultStatus = "completed"
	// ResultError indicates the analysis routine raised an error.
	ResultError ResultStatus = "error"
)

// ResultFrame is the single control frame an analysis worker emits before
// exiting. On completion DBC carries the recovered schema in DBC text form;
// on error Message and ErrorType describe the failure.
type ResultFrame struct {
	// Type is always "analysis_result".
	Type string `msgpack:"type"`
	// Status is the analysis outcome status.
	Status ResultStatus `msgpack:"status"`
	// Message is a human-readable failure description.
	Message *string `msgpack:"message,omitempty"`
	// ErrorType is the failure class reported by the analysis routine.
	ErrorType *string `msgpack:"error_type,omitempty"`
	// DBC is the recovered schema as DBC text (completed only).
	DBC string `msgpack:"dbc,omitempty"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error is fatal for the worker stream.
// Partial and oversized frames mean the stream cannot be resynchronized.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])

	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// DecodeResult decodes a payload as a ResultFrame.
func DecodeResult(payload []byte) (*ResultFrame, error) {
	var result ResultFrame
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode analysis result",
			Err:  err,
		}
	}
	if result.Type != ResultType {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unexpected frame type %q", result.Type),
		}
	}
	return &result, nil
}

// WriteResult encodes a ResultFrame as a length-prefixed msgpack frame.
// Used by worker implementations and tests.
func WriteResult(w io.Writer, frame *ResultFrame) error {
	payload, err := msgpack.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("analysis result frame of %d bytes exceeds maximum %d", len(payload), MaxPayloadSize)
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}
