// Package types defines core domain types for the canvass analysis engine.
package types

import (
	"bytes"
	"encoding/binary"
)

// MaxFrameBytes is the maximum payload size of a classic CAN frame.
const MaxFrameBytes = 8

// Frame is one fixed-width binary message instance for a given identifier.
// Frames are produced by the capture collaborator and never mutated by the
// engine.
type Frame struct {
	// Identifier is the bus identifier the frame was captured under.
	Identifier uint32
	// Payload is the raw frame body, at most MaxFrameBytes long.
	Payload []byte
	// Length is the declared payload length in bytes.
	Length uint8
}

// NewFrame builds a frame from a captured payload. The payload is copied so
// the frame stays immutable even if the caller reuses its buffer.
func NewFrame(identifier uint32, payload []byte) Frame {
	if len(payload) > MaxFrameBytes {
		payload = payload[:MaxFrameBytes]
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	return Frame{
		Identifier: identifier,
		Payload:    body,
		Length:     uint8(len(body)),
	}
}

// PackedBody packs the payload little-endian into a uint64, zero-padded to
// 8 bytes. The padding is applied the same way regardless of the frame's
// declared length, so bodies of different frames compare bit-for-bit.
func (f Frame) PackedBody() uint64 {
	var buf [MaxFrameBytes]byte
	copy(buf[:], f.Payload)
	return binary.LittleEndian.Uint64(buf[:])
}

// Equal reports whether two frames are identical in identifier, declared
// length, and payload bytes.
func (f Frame) Equal(other Frame) bool {
	return f.Identifier == other.Identifier &&
		f.Length == other.Length &&
		bytes.Equal(f.Payload, other.Payload)
}

// FramesEqual reports whether two frame snapshots are identical in order and
// content.
func FramesEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// PackBodies packs every frame body for statistics and analysis input,
// preserving capture order.
func PackBodies(frames []Frame) []uint64 {
	bodies := make([]uint64, len(frames))
	for i, f := range frames {
		bodies[i] = f.PackedBody()
	}
	return bodies
}

// CloneFrames returns a shallow-copied snapshot of the frame slice. Frame
// payloads are immutable, so copying the slice header is enough to decouple
// the snapshot from the caller.
func CloneFrames(frames []Frame) []Frame {
	if frames == nil {
		return nil
	}
	snapshot := make([]Frame, len(frames))
	copy(snapshot, frames)
	return snapshot
}
