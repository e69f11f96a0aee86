package transport

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(42, "echo", []byte("hello world"), nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	consumed, counter, command, payload, err, ok := Decode(frame, nil)
	if err != nil || !ok {
		t.Fatalf("Decode: err=%v ok=%v", err, ok)
	}
	if consumed != len(frame) {
		t.Fatalf("consumed = %d, want %d", consumed, len(frame))
	}
	if counter != 42 {
		t.Fatalf("counter = %d, want 42", counter)
	}
	if command != "echo" {
		t.Fatalf("command = %q, want echo", command)
	}
	if !bytes.Equal(payload, []byte("hello world")) {
		t.Fatalf("payload = %q, want %q", payload, "hello world")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	frame, err := Encode(1, "hello", []byte("partial"), nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, _, _, _, err, ok := Decode(frame[:HeaderLen+2], nil)
	if err != nil {
		t.Fatalf("short buffer should not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("short buffer should report ok=false")
	}
}

func TestDecodeBadAuth(t *testing.T) {
	cipher, err := NewCipher([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	frame, err := Encode(7, "echo", []byte("secret"), cipher)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// flip a byte inside the encrypted payload.
	frame[len(frame)-1] ^= 0xFF
	_, _, _, _, err, ok := Decode(frame, cipher)
	if !ok {
		t.Fatalf("corrupted-but-complete frame should report ok=true with an error")
	}
	if err == nil {
		t.Fatalf("expected a decrypt error")
	}
}

func TestEncodeCommandTooLong(t *testing.T) {
	_, err := Encode(1, "this_command_is_way_too_long", nil, nil)
	if err == nil {
		t.Fatalf("expected an oversize-command error")
	}
}
