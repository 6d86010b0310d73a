package types

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the bit packing order of a signal within a frame body.
type ByteOrder string

const (
	// BigEndian signals are packed Motorola-style, MSB first.
	BigEndian ByteOrder = "big_endian"
	// LittleEndian signals are packed Intel-style, LSB first.
	LittleEndian ByteOrder = "little_endian"
)

// Signal is one named bit field within a recovered message schema.
// Signals are owned by their Message; mutate them only through
// Message.EditSignal so the owning message is re-validated.
type Signal struct {
	Name      string
	Start     uint
	Length    uint
	ByteOrder ByteOrder
	Signed    bool
	IsFloat   bool
	Scale     float64
	Offset    float64
	Minimum   *float64
	Maximum   *float64
	Unit      string
}

// StartBit returns the signal's absolute start index in sawtooth bit
// ordering (MSB-first within each byte). Big-endian signals store the DBC
// start bit, which counts down within a byte; the layout renderer and the
// raw decoder both work on the sawtooth index.
func (s *Signal) StartBit() uint {
	if s.ByteOrder == BigEndian {
		return 8*(s.Start/8) + (7 - s.Start%8)
	}
	return s.Start
}

// validate checks the signal in isolation against the owning message's
// payload length in bits.
func (s *Signal) validate(lengthBits uint) error {
	if s.Name == "" {
		return fmt.Errorf("signal has no name")
	}
	if s.Length < 1 {
		return fmt.Errorf("signal %q has zero length", s.Name)
	}
	switch s.ByteOrder {
	case BigEndian, LittleEndian:
	default:
		return fmt.Errorf("signal %q has unknown byte order %q", s.Name, s.ByteOrder)
	}
	if end := s.StartBit() + s.Length; end > lengthBits {
		return fmt.Errorf("signal %q spans bits %d..%d outside the %d payload bits",
			s.Name, s.StartBit(), end-1, lengthBits)
	}
	return nil
}

// Message is the recovered structural description of a frame's bit fields.
type Message struct {
	Identifier  uint32
	Name        string
	LengthBytes uint
	Signals     []Signal
}

// Validate checks that every signal's bit range lies within the message
// payload.
func (m *Message) Validate() error {
	if m.LengthBytes < 1 || m.LengthBytes > MaxFrameBytes {
		return fmt.Errorf("message 0x%X has invalid length %d bytes", m.Identifier, m.LengthBytes)
	}
	for i := range m.Signals {
		if err := m.Signals[i].validate(m.LengthBytes * 8); err != nil {
			return fmt.Errorf("message 0x%X: %w", m.Identifier, err)
		}
	}
	return nil
}

// EditSignal applies edit to a copy of the signal at index i, re-validates
// the owning message with the edited copy in place, and commits only when
// validation passes. The message is left untouched on failure.
func (m *Message) EditSignal(i int, edit func(*Signal)) error {
	if i < 0 || i >= len(m.Signals) {
		return fmt.Errorf("message 0x%X has no signal %d", m.Identifier, i)
	}
	candidate := m.Signals[i]
	edit(&candidate)
	prev := m.Signals[i]
	m.Signals[i] = candidate
	if err := m.Validate(); err != nil {
		m.Signals[i] = prev
		return err
	}
	return nil
}

// RawValue extracts the unscaled, unsigned value of sig from a frame
// payload. Payloads shorter than the message length read as zero bits.
func (m *Message) RawValue(sig *Signal, payload []byte) uint64 {
	if sig.ByteOrder == LittleEndian {
		var buf [MaxFrameBytes]byte
		copy(buf[:], payload)
		packed := binary.LittleEndian.Uint64(buf[:])
		return packed >> sig.Start & bitMask(sig.Length)
	}

	start := sig.StartBit()
	var raw uint64
	for i := uint(0); i < sig.Length; i++ {
		pos := start + i
		var b byte
		if idx := pos / 8; int(idx) < len(payload) {
			b = payload[idx]
		}
		raw = raw<<1 | uint64(b>>(7-pos%8)&1)
	}
	return raw
}

// RawValues extracts sig's raw value from every frame, in capture order.
func (m *Message) RawValues(sig *Signal, frames []Frame) []uint64 {
	values := make([]uint64, len(frames))
	for i, f := range frames {
		values[i] = m.RawValue(sig, f.Payload)
	}
	return values
}

// PhysicalValue applies sign interpretation and scaling to a raw value.
func (m *Message) PhysicalValue(sig *Signal, raw uint64) float64 {
	value := float64(raw)
	if sig.Signed {
		if sig.Length >= 64 {
			value = float64(int64(raw))
		} else if raw&(1<<(sig.Length-1)) != 0 {
			value = float64(int64(raw - 1<<sig.Length))
		}
	}
	return value*sig.Scale + sig.Offset
}

func bitMask(length uint) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return 1<<length - 1
}
