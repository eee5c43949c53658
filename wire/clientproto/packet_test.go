package clientproto

import (
	"bytes"
	"testing"

	"github.com/ssbd-io/blockplane/ids"
)

func testFileID(fill byte) ids.FileID {
	var f ids.FileID
	for i := range f {
		f[i] = fill
	}
	return f
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:     TypeWorkerRegister,
		Key:      testFileID(0x01),
		Sequence: 99,
		Salt:     ids.Salt{1, 2, 3, 4},
		DataSize: 7,
	}

	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, h)

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Fatalf("mismatch: got %+v want %+v", got, h)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{
		Header: Header{Type: TypePut, Key: testFileID(0xAB), Salt: ids.Salt{0, 0, 0, 1}},
		Body:   []byte("payload"),
	}

	var buf bytes.Buffer
	if err := WritePacket(&buf, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got.Body, p.Body) {
		t.Fatalf("body mismatch")
	}
}

func TestFileRequestRoundTripWrite(t *testing.T) {
	req := FileRequest{
		SubType:  SubTypeFile,
		Op:       OpWrite,
		FileID:   testFileID(0x11),
		Position: 4096,
		Payload:  []byte("hello"),
	}

	buf := EncodeFileRequest(req)
	got, err := DecodeFileRequest(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Position != req.Position || !bytes.Equal(got.Payload, req.Payload) || got.Size != uint32(len(req.Payload)) {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestFileRequestRoundTripRead(t *testing.T) {
	req := FileRequest{
		SubType:  SubTypeFile,
		Op:       OpRead,
		FileID:   testFileID(0x22),
		Position: 0,
		Size:     128,
	}

	buf := EncodeFileRequest(req)
	got, err := DecodeFileRequest(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Size != req.Size || len(got.Payload) != 0 {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestTriggerSaltConvention(t *testing.T) {
	trigger := ids.Salt{1, 2, 3, 0}
	notTrigger := ids.Salt{1, 2, 3, 9}

	if !trigger.IsTrigger() {
		t.Error("expected trigger salt")
	}
	if notTrigger.IsTrigger() {
		t.Error("expected non-trigger salt")
	}
}

func TestIsErrorBody(t *testing.T) {
	cases := []struct {
		body []byte
		want bool
	}{
		{[]byte("FAIL"), true},
		{ErrorBody("Found Pending 2PC Log"), true},
		{[]byte("hello"), false},
		{[]byte{0x68, 0x65, 0x6c, 0x6c, 0x6f}, false},
	}

	for _, c := range cases {
		if got := IsErrorBody(c.body); got != c.want {
			t.Errorf("IsErrorBody(%q) = %v, want %v", c.body, got, c.want)
		}
	}
}
