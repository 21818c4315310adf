// internal/frame/frame.go
// Package frame implements the wire codec for routed RPC messages.  A frame
// is a self-delimited binary record: a 4-byte big-endian header length, an
// ordered header, and an opaque payload.  The header carries only the fields
// the router needs to address the message (from, to, ws, user); everything
// else the peer library puts in the payload is never inspected here.
//
// Ordering matters: re-encoding a frame whose header fields were not touched
// must be byte-identical to the original, so the header is kept as an
// ordered slice of fields rather than a map.
package frame

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Well-known header keys. Any other key is preserved verbatim but never
// rewritten by the router.
const (
	KeyFrom = "from"
	KeyTo   = "to"
	KeyWs   = "ws"
	KeyUser = "user"
)

// ErrMalformed is returned when raw bytes do not decode into a valid frame.
var ErrMalformed = errors.New("frame: malformed binary record")

// Field is one ordered header entry.
type Field struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Header is an ordered key-value list. Zero value is an empty header.
type Header struct {
	Fields []Field
}

// Get returns the value for key and whether it was present.
func (h *Header) Get(key string) (string, bool) {
	for _, f := range h.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set updates key in place if present, preserving its position, or appends it
// at the end otherwise. This is the only mutation the router is allowed to
// perform on a decoded header; every other field passes through untouched.
func (h *Header) Set(key, value string) {
	for i := range h.Fields {
		if h.Fields[i].Key == key {
			h.Fields[i].Value = value
			return
		}
	}
	h.Fields = append(h.Fields, Field{Key: key, Value: value})
}

// Clone returns a deep copy of h so callers may mutate it without affecting
// the original frame.
func (h Header) Clone() Header {
	out := Header{Fields: make([]Field, len(h.Fields))}
	copy(out.Fields, h.Fields)
	return out
}

// Frame is a decoded binary record: header plus the untouched payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// Decode parses raw into a Frame without copying the payload bytes (the
// returned Payload slice aliases raw). Callers that retain a Frame beyond the
// lifetime of raw must clone the payload themselves.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < 4 {
		return nil, ErrMalformed
	}
	hlen := binary.BigEndian.Uint32(raw[:4])
	if uint64(hlen) > uint64(len(raw)-4) {
		return nil, ErrMalformed
	}
	headerBytes := raw[4 : 4+hlen]
	payload := raw[4+hlen:]

	var fields []Field
	if len(headerBytes) > 0 {
		if err := json.Unmarshal(headerBytes, &fields); err != nil {
			return nil, ErrMalformed
		}
	}
	return &Frame{Header: Header{Fields: fields}, Payload: payload}, nil
}

// Encode re-emits f as a binary record: length-prefixed header followed by
// the payload bytes, unchanged.
func (f *Frame) Encode() ([]byte, error) {
	headerBytes, err := json.Marshal(f.Header.Fields)
	if err != nil {
		return nil, err
	}
	if len(f.Header.Fields) == 0 {
		headerBytes = nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+len(headerBytes)+len(f.Payload)))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// IsRoutable reports whether raw looks like a binary record with a
// recognizable header (i.e. decodes cleanly). The router uses this to
// distinguish routable binary frames from everything else; a frame that
// fails this check is dropped with a warning rather than routed.
func IsRoutable(raw []byte) bool {
	_, err := Decode(raw)
	return err == nil
}
