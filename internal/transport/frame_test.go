package transport

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}

	got, err := readFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFrame() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("readFrame() = %s, want %s", got, payload)
	}
}

func TestReadFrameCaseInsensitiveHeader(t *testing.T) {
	raw := "content-length: 2\r\n\r\nhi"
	got, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("readFrame() error: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("readFrame() = %q, want %q", got, "hi")
	}
}

func TestReadFrameIgnoresExtraHeaders(t *testing.T) {
	raw := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 4\r\n\r\nbody"
	got, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("readFrame() error: %v", err)
	}
	if string(got) != "body" {
		t.Errorf("readFrame() = %q", got)
	}
}

func TestReadFrameMissingLength(t *testing.T) {
	raw := "Content-Type: application/json\r\n\r\n"
	_, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, errMissingLength) {
		t.Errorf("readFrame() error = %v, want errMissingLength", err)
	}
}

func TestReadFrameSequential(t *testing.T) {
	var buf bytes.Buffer
	first := []byte(`{"id":1}`)
	second := []byte(`{"id":2}`)
	if err := writeFrame(&buf, first); err != nil {
		t.Fatal(err)
	}
	if err := writeFrame(&buf, second); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&buf)
	got1, err := readFrame(r)
	if err != nil {
		t.Fatalf("first readFrame() error: %v", err)
	}
	got2, err := readFrame(r)
	if err != nil {
		t.Fatalf("second readFrame() error: %v", err)
	}
	if !bytes.Equal(got1, first) || !bytes.Equal(got2, second) {
		t.Errorf("frames out of order: %s, %s", got1, got2)
	}
}
