package storageproto

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
		Type:     TypeTwoPCPrepare,
		FileID:   testFileID(0x42),
		BlockID:  7,
		Position: 100,
		DataSize: 12,
		Salt:     ids.Salt{0xAA, 0xBB, 0xCC, 0xDD},
	}

	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, h)

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestPacketRoundTripOverStream(t *testing.T) {
	body := []byte("hello block")
	p := Packet{
		Header: Header{
			Type:    TypeGet,
			FileID:  testFileID(0x01),
			BlockID: 3,
			Salt:    ids.Salt{1, 2, 3, 4},
		},
		Body: body,
	}

	var buf bytes.Buffer
	if err := WritePacket(&buf, p); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Type != TypeGet || !bytes.Equal(got.Body, body) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Header.DataSize != uint32(len(body)) {
		t.Fatalf("data size mismatch: got %d want %d", got.Header.DataSize, len(body))
	}
}

func TestReplyEchoesHeaderExceptType(t *testing.T) {
	req := Header{
		Type:    TypeTwoPCPrepare,
		FileID:  testFileID(0x09),
		BlockID: 5,
		Salt:    ids.Salt{9, 9, 9, 9},
	}

	reply := Reply(req, TypeTwoPCPrepareAgree, nil)
	if reply.Header.Type != TypeTwoPCPrepareAgree {
		t.Fatalf("expected type to change")
	}
	if reply.Header.FileID != req.FileID || reply.Header.BlockID != req.BlockID || reply.Header.Salt != req.Salt {
		t.Fatalf("reply header fields must echo request: %+v vs %+v", reply.Header, req)
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
