package frame

import "testing"

func TestRoundTripNoRewrite(t *testing.T) {
	f := &Frame{
		Header:  Header{Fields: []Field{{Key: KeyFrom, Value: "ws-1/client-1"}, {Key: KeyTo, Value: "ws-1/client-2"}}},
		Payload: []byte("opaque-rpc-bytes"),
	}
	raw, err := f.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	reencoded, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if string(raw) != string(reencoded) {
		t.Fatalf("round trip not byte-identical:\n%q\n%q", raw, reencoded)
	}
}

func TestSetPreservesOrder(t *testing.T) {
	h := Header{Fields: []Field{{Key: KeyFrom, Value: "a"}, {Key: KeyTo, Value: "b"}, {Key: KeyWs, Value: "c"}}}
	h.Set(KeyTo, "b2")
	if len(h.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(h.Fields))
	}
	if h.Fields[1].Key != KeyTo || h.Fields[1].Value != "b2" {
		t.Fatalf("Set did not update in place: %+v", h.Fields)
	}
}

func TestSetAppendsNewKey(t *testing.T) {
	h := Header{Fields: []Field{{Key: KeyFrom, Value: "a"}}}
	h.Set(KeyUser, "alice")
	v, ok := h.Get(KeyUser)
	if !ok || v != "alice" {
		t.Fatalf("expected user=alice, got %q ok=%v", v, ok)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte{0x01}); err == nil {
		t.Fatal("expected error decoding truncated frame")
	}
	if IsRoutable([]byte("plain text handshake")) {
		t.Fatal("plain text should not be routable")
	}
}

func TestClonePayloadUntouched(t *testing.T) {
	f := &Frame{Header: Header{Fields: []Field{{Key: KeyFrom, Value: "x"}}}, Payload: []byte("abc")}
	clone := f.Header.Clone()
	clone.Set(KeyFrom, "y")
	if v, _ := f.Header.Get(KeyFrom); v != "x" {
		t.Fatalf("clone mutation leaked into original: %q", v)
	}
}
