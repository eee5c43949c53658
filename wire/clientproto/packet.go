// Package clientproto implements the client↔worker wire dialect (spec
// §6.1): the packet framing a client (via the router/proxy) uses to submit
// file read/write requests to a worker, and the control messages a worker
// exchanges with its proxy.
package clientproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ssbd-io/blockplane/ids"
)

// Type identifies the kind of packet on the client↔worker wire.
type Type uint8

const (
	TypeErr                Type = 0
	TypePut                Type = 1
	TypeGet                Type = 2
	TypeAck                Type = 3
	TypeProxyJoin          Type = 4
	TypeSetTimer           Type = 5
	TypeWorkerRegister     Type = 8
	TypeWorkerDeregister   Type = 9
	TypeWorkerPushRequest  Type = 10
	TypeWorkerResponse     Type = 11
	TypeTrigger            Type = 14
	TypeTriggerReject      Type = 15
	TypeCacheTransfer      Type = 16
)

func (t Type) String() string {
	switch t {
	case TypeErr:
		return "Err"
	case TypePut:
		return "Put"
	case TypeGet:
		return "Get"
	case TypeAck:
		return "Ack"
	case TypeProxyJoin:
		return "ProxyJoin"
	case TypeSetTimer:
		return "SetTimer"
	case TypeWorkerRegister:
		return "WorkerRegister"
	case TypeWorkerDeregister:
		return "WorkerDeregister"
	case TypeWorkerPushRequest:
		return "WorkerPushRequest"
	case TypeWorkerResponse:
		return "WorkerResponse"
	case TypeTrigger:
		return "Trigger"
	case TypeTriggerReject:
		return "TriggerReject"
	case TypeCacheTransfer:
		return "CacheTransfer"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// HeaderSize is the fixed header preceding every dialect-A body:
// Type(1) + Key(32) + Sequence(4) + Salt(4) + DataSize(4).
const HeaderSize = 1 + ids.FileIDSize + 4 + 4 + 4

// Header is the fixed header of a dialect-A packet.
type Header struct {
	Type     Type
	Key      ids.FileID
	Sequence uint32
	Salt     ids.Salt
	DataSize uint32
}

// Packet is a decoded dialect-A message.
type Packet struct {
	Header Header
	Body   []byte
}

// EncodeHeader writes h into buf, which must be at least HeaderSize bytes.
func EncodeHeader(buf []byte, h Header) {
	buf[0] = byte(h.Type)
	copy(buf[1:1+ids.FileIDSize], h.Key[:])
	off := 1 + ids.FileIDSize
	binary.BigEndian.PutUint32(buf[off:off+4], h.Sequence)
	copy(buf[off+4:off+8], h.Salt[:])
	binary.BigEndian.PutUint32(buf[off+8:off+12], h.DataSize)
}

// DecodeHeader parses a Header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("clientproto: short header (%d < %d)", len(buf), HeaderSize)
	}

	var h Header
	h.Type = Type(buf[0])
	copy(h.Key[:], buf[1:1+ids.FileIDSize])
	off := 1 + ids.FileIDSize
	h.Sequence = binary.BigEndian.Uint32(buf[off : off+4])
	copy(h.Salt[:], buf[off+4:off+8])
	h.DataSize = binary.BigEndian.Uint32(buf[off+8 : off+12])
	return h, nil
}

// Encode serializes a full packet (header + body).
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Body))
	h := p.Header
	h.DataSize = uint32(len(p.Body))
	EncodeHeader(buf, h)
	copy(buf[HeaderSize:], p.Body)
	return buf
}

// ReadPacket reads one full packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return Packet{}, err
	}
	h, err := DecodeHeader(hdrBuf)
	if err != nil {
		return Packet{}, err
	}

	body := make([]byte, h.DataSize)
	if h.DataSize > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Packet{}, fmt.Errorf("clientproto: read body: %w", err)
		}
	}
	return Packet{Header: h, Body: body}, nil
}

// WritePacket writes a full packet to w.
func WritePacket(w io.Writer, p Packet) error {
	_, err := w.Write(Encode(p))
	return err
}

// SubType distinguishes the kind of payload carried by a file-request body.
type SubType uint8

const (
	SubTypeFile        SubType = 0
	SubTypeMetadata    SubType = 1
	SubTypeWakeup      SubType = 2
	SubTypeStorageTest SubType = 3
)

// Op distinguishes read from write within a file request.
type Op uint8

const (
	OpWrite Op = 0
	OpRead  Op = 1
)

// FileRequest is the decoded body of a client file read/write request
// (spec §6.1: "Body layout for a file request").
type FileRequest struct {
	SubType  SubType
	Op       Op
	FileID   ids.FileID
	Position uint32
	Size     uint32
	Payload  []byte // present (and Size bytes long) only for writes
}

// fileRequestHeaderSize is SubType(1) + Op(1) + FileID(32) + Position(4) + Size(4).
const fileRequestHeaderSize = 1 + 1 + ids.FileIDSize + 4 + 4

// EncodeFileRequest serializes a FileRequest body.
func EncodeFileRequest(r FileRequest) []byte {
	size := len(r.Payload)
	wireSize := uint32(size)
	if r.Op == OpRead {
		wireSize = r.Size
	}
	buf := make([]byte, fileRequestHeaderSize+size)
	buf[0] = byte(r.SubType)
	buf[1] = byte(r.Op)
	copy(buf[2:2+ids.FileIDSize], r.FileID[:])
	off := 2 + ids.FileIDSize
	binary.BigEndian.PutUint32(buf[off:off+4], r.Position)
	binary.BigEndian.PutUint32(buf[off+4:off+8], wireSize)
	if size > 0 {
		copy(buf[off+8:], r.Payload)
	}
	return buf
}

// DecodeFileRequest parses a FileRequest body.
func DecodeFileRequest(buf []byte) (FileRequest, error) {
	if len(buf) < fileRequestHeaderSize {
		return FileRequest{}, fmt.Errorf("clientproto: short file request body (%d < %d)", len(buf), fileRequestHeaderSize)
	}

	var r FileRequest
	r.SubType = SubType(buf[0])
	r.Op = Op(buf[1])
	copy(r.FileID[:], buf[2:2+ids.FileIDSize])
	off := 2 + ids.FileIDSize
	r.Position = binary.BigEndian.Uint32(buf[off : off+4])
	size := binary.BigEndian.Uint32(buf[off+4 : off+8])

	if r.Op == OpWrite {
		want := int(off + 8 + int(size))
		if len(buf) < want {
			return FileRequest{}, fmt.Errorf("clientproto: short write payload (%d < %d)", len(buf), want)
		}
		r.Payload = buf[off+8 : want]
		r.Size = size
	} else {
		r.Size = size
	}

	return r, nil
}

// ErrorPrefix is the ASCII prefix a client-visible error body carries,
// per spec §7: "a body whose first bytes are the ASCII prefix 'Error:'
// followed by a short reason."
const ErrorPrefix = "Error:"

// legacyFail is the 4-byte legacy aborted-prepare indicator clients must
// still accept in place of an Error:-prefixed body (spec §7).
const legacyFail = "FAIL"

// ErrorBody formats a client-visible error body.
func ErrorBody(reason string) []byte {
	return []byte(ErrorPrefix + " " + reason)
}

// IsErrorBody reports whether body denotes a failure, accepting both the
// modern "Error: reason" form and the legacy 4-byte "FAIL" indicator.
func IsErrorBody(body []byte) bool {
	s := string(body)
	return s == legacyFail || (len(s) >= len(ErrorPrefix) && s[:len(ErrorPrefix)] == ErrorPrefix)
}
