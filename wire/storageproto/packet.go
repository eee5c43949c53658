// Package storageproto implements the worker↔storage-node wire dialect
// (spec §6.2): the framing used between a data-function worker and a
// storage node to drive 2PC, replication, and block reads.
package storageproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ssbd-io/blockplane/ids"
)

// Type identifies the kind of packet on the worker↔storage-node wire.
type Type uint16

// Packet types. A response's header echoes the request header, differing
// only in Type (spec §6.2).
const (
	TypeErr                  Type = 0
	TypeAck                  Type = 1
	TypeGet                  Type = 2
	TypeTwoPCPrepare         Type = 8
	TypeTwoPCPrepareAgree    Type = 10
	TypeTwoPCPrepareAbort    Type = 11
	TypeTwoPCCommitExecute   Type = 12
	TypeTwoPCCommitRollback  Type = 13
	TypeTwoPCCommitAck       Type = 14
	TypeReplication          Type = 15
	TypeTwoPCPrepareQuick    Type = 16 // fast-path prepare for a "seen-before" file id (spec §4.4.1.7)
)

func (t Type) String() string {
	switch t {
	case TypeErr:
		return "Err"
	case TypeAck:
		return "Ack"
	case TypeGet:
		return "Get"
	case TypeTwoPCPrepare:
		return "TwoPCPrepare"
	case TypeTwoPCPrepareAgree:
		return "TwoPCPrepareAgree"
	case TypeTwoPCPrepareAbort:
		return "TwoPCPrepareAbort"
	case TypeTwoPCCommitExecute:
		return "TwoPCCommitExecute"
	case TypeTwoPCCommitRollback:
		return "TwoPCCommitRollback"
	case TypeTwoPCCommitAck:
		return "TwoPCCommitAck"
	case TypeReplication:
		return "Replication"
	case TypeTwoPCPrepareQuick:
		return "TwoPCPrepareQuick"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// HeaderSize is the fixed-size portion of every dialect-B packet:
// Type(2) + Uuid(32) + BlockId(4) + Position(2) + DataSize(4) + Salt(4).
const HeaderSize = 2 + ids.FileIDSize + 4 + 2 + 4 + 4

// Header is the fixed header preceding every dialect-B body.
type Header struct {
	Type     Type
	FileID   ids.FileID
	BlockID  ids.BlockID
	Position ids.Offset
	DataSize uint32
	Salt     ids.Salt
}

// Packet is a fully decoded dialect-B message: header plus body.
type Packet struct {
	Header Header
	Body   []byte
}

// EncodeHeader writes h's wire representation into buf, which must be at
// least HeaderSize bytes.
func EncodeHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Type))
	copy(buf[2:2+ids.FileIDSize], h.FileID[:])
	off := 2 + ids.FileIDSize
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(h.BlockID))
	binary.BigEndian.PutUint16(buf[off+4:off+6], uint16(h.Position))
	binary.BigEndian.PutUint32(buf[off+6:off+10], h.DataSize)
	copy(buf[off+10:off+14], h.Salt[:])
}

// DecodeHeader parses a Header from buf, which must be at least HeaderSize
// bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("storageproto: short header (%d < %d)", len(buf), HeaderSize)
	}

	var h Header
	h.Type = Type(binary.BigEndian.Uint16(buf[0:2]))
	copy(h.FileID[:], buf[2:2+ids.FileIDSize])
	off := 2 + ids.FileIDSize
	h.BlockID = ids.BlockID(binary.BigEndian.Uint32(buf[off : off+4]))
	h.Position = ids.Offset(binary.BigEndian.Uint16(buf[off+4 : off+6]))
	h.DataSize = binary.BigEndian.Uint32(buf[off+6 : off+10])
	copy(h.Salt[:], buf[off+10:off+14])
	return h, nil
}

// Encode serializes a full Packet (header + body) into a single buffer.
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Body))
	h := p.Header
	h.DataSize = uint32(len(p.Body))
	EncodeHeader(buf, h)
	copy(buf[HeaderSize:], p.Body)
	return buf
}

// ReadPacket reads one full packet (header then body) from r.
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
			return Packet{}, fmt.Errorf("storageproto: read body: %w", err)
		}
	}

	return Packet{Header: h, Body: body}, nil
}

// WritePacket writes a full packet (header + body) to w.
func WritePacket(w io.Writer, p Packet) error {
	_, err := w.Write(Encode(p))
	return err
}

// Reply builds a response packet that echoes req's header fields except
// Type, per spec §6.2 ("A response's header echoes the request header,
// differing only in Type").
func Reply(req Header, replyType Type, body []byte) Packet {
	h := req
	h.Type = replyType
	h.DataSize = uint32(len(body))
	return Packet{Header: h, Body: body}
}
