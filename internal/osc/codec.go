// Package osc encodes and decodes the gateway's wire messages.
//
// Datagram and stream endpoints carry OSC 1.0 packets built with
// go-osc.  Stream endpoints additionally prefix each packet with its
// length as a big-endian int32.  Arguments are normalized to the four
// types the peer understands: string, int32, float32 and bool.
package osc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	goosc "github.com/hypebeast/go-osc/osc"
)

// MaxFrameSize bounds a single length-prefixed packet on a stream.
const MaxFrameSize = 4 << 20

// Message is one decoded OSC message.
type Message struct {
	Address string
	Args    []interface{}
}

// Encode builds the OSC packet for address and args.
func Encode(address string, args ...interface{}) ([]byte, error) {
	msg := goosc.NewMessage(address)
	for i, a := range args {
		v, err := Normalize(a)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg %d: %w", address, i, err)
		}
		msg.Append(v)
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", address, err)
	}
	return data, nil
}

// Decode parses one OSC packet.  Bundles are flattened as described
// on collect.
func Decode(packet []byte) ([]Message, error) {
	p, err := goosc.ParsePacket(string(packet))
	if err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decode packet: not an OSC message or bundle")
	}
	var out []Message
	collect(p, &out)
	return out, nil
}

// collect appends the messages of p to out.  A bundle delivers all of
// its own messages before those of its nested bundles, so an element
// order that interleaves the two is not preserved.
func collect(p goosc.Packet, out *[]Message) {
	switch v := p.(type) {
	case *goosc.Message:
		args := make([]interface{}, len(v.Arguments))
		for i, a := range v.Arguments {
			args[i] = widen(a)
		}
		*out = append(*out, Message{Address: v.Address, Args: args})
	case *goosc.Bundle:
		for _, m := range v.Messages {
			collect(m, out)
		}
		for _, b := range v.Bundles {
			collect(b, out)
		}
	}
}

// widen maps the wider OSC types onto the four argument types.
func widen(a interface{}) interface{} {
	switch v := a.(type) {
	case int64:
		return int32(v)
	case float64:
		return float32(v)
	case []byte:
		return string(v)
	default:
		return v
	}
}

// Normalize converts a Go value into one of the OSC argument types the
// peer accepts.
func Normalize(a interface{}) (interface{}, error) {
	switch v := a.(type) {
	case string, int32, float32, bool, nil:
		return v, nil
	case int:
		return toInt32(int64(v))
	case int8:
		return int32(v), nil
	case int16:
		return int32(v), nil
	case int64:
		return toInt32(v)
	case uint:
		if uint64(v) > math.MaxInt32 {
			return nil, fmt.Errorf("value %d out of int32 range", v)
		}
		return int32(v), nil
	case uint8:
		return int32(v), nil
	case uint16:
		return int32(v), nil
	case uint32:
		return toInt32(int64(v))
	case uint64:
		if v > math.MaxInt32 {
			return nil, fmt.Errorf("value %d out of int32 range", v)
		}
		return int32(v), nil
	case float64:
		return float32(v), nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", a)
	}
}

func toInt32(v int64) (interface{}, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil, fmt.Errorf("value %d out of int32 range", v)
	}
	return int32(v), nil
}

// ── Stream framing ───────────────────────────────────────────────────

// WriteFrame writes packet preceded by its int32 length.
func WriteFrame(w io.Writer, packet []byte) error {
	buf := make([]byte, 4+len(packet))
	binary.BigEndian.PutUint32(buf, uint32(len(packet)))
	copy(buf[4:], packet)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed packet.  io.EOF is returned
// unchanged when the stream ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", size, MaxFrameSize)
	}
	packet := make([]byte, size)
	if _, err := io.ReadFull(r, packet); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return packet, nil
}
