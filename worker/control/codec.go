package control

import (
	"encoding/binary"
	"fmt"

	"github.com/ssbd-io/blockplane/worker/cache"
)

// encodeRegister encodes the (ip, port) a WorkerRegister message carries
// (spec §4.8: "sends WorkerRegister with (ip, port)").
func encodeRegister(ip string, port uint16) []byte {
	buf := make([]byte, 1+len(ip)+2)
	buf[0] = byte(len(ip))
	copy(buf[1:], ip)
	binary.BigEndian.PutUint16(buf[1+len(ip):], port)
	return buf
}

func decodeRegister(buf []byte) (ip string, port uint16, err error) {
	if len(buf) < 1 {
		return "", 0, fmt.Errorf("control: empty register payload")
	}
	n := int(buf[0])
	if len(buf) < 1+n+2 {
		return "", 0, fmt.Errorf("control: short register payload")
	}
	ip = string(buf[1 : 1+n])
	port = binary.BigEndian.Uint16(buf[1+n : 1+n+2])
	return ip, port, nil
}

// encodeSetTimer encodes the millisecond duration carried by SetTimer.
func encodeSetTimer(ms uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, ms)
	return buf
}

func decodeSetTimer(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("control: short SetTimer payload")
	}
	return binary.BigEndian.Uint32(buf[:4]), nil
}

// encodeProxyJoin encodes the peer proxy endpoint ProxyJoin announces.
func encodeProxyJoin(host string, port uint16) []byte {
	return encodeRegister(host, port)
}

func decodeProxyJoin(buf []byte) (host string, port uint16, err error) {
	return decodeRegister(buf)
}

// EncodeProxyJoin is the exported form of encodeProxyJoin, used by callers
// outside this package (the router) that announce ring membership changes.
func EncodeProxyJoin(host string, port uint16) []byte {
	return encodeProxyJoin(host, port)
}

// DecodeRegister is the exported form of decodeRegister, used by the proxy
// side of the control channel to read the (ip, port) a WorkerRegister
// message carries.
func DecodeRegister(buf []byte) (ip string, port uint16, err error) {
	return decodeRegister(buf)
}

// ============================================================================
// Cache-transfer digest (spec §4.5 / §4.8): a list of
// (FileId, [range segments], bytes), carried as a WorkerDeregister or
// CacheTransfer payload.
// ============================================================================

func encodeCacheDigest(digests []cache.FileDigest) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(digests)))

	for _, d := range digests {
		entry := make([]byte, 32+4+len(d.Segments)*12+4+len(d.Bytes))
		off := 0
		copy(entry[off:off+32], d.File[:])
		off += 32
		binary.BigEndian.PutUint32(entry[off:off+4], uint32(len(d.Segments)))
		off += 4
		for _, seg := range d.Segments {
			binary.BigEndian.PutUint64(entry[off:off+8], seg.Position)
			binary.BigEndian.PutUint32(entry[off+8:off+12], seg.Size)
			off += 12
		}
		binary.BigEndian.PutUint32(entry[off:off+4], uint32(len(d.Bytes)))
		off += 4
		copy(entry[off:], d.Bytes)

		buf = append(buf, entry...)
	}
	return buf
}

func decodeCacheDigest(buf []byte) ([]cache.FileDigest, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("control: short cache digest")
	}
	count := binary.BigEndian.Uint32(buf[:4])
	pos := 4

	out := make([]cache.FileDigest, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < pos+32+4 {
			return nil, fmt.Errorf("control: truncated cache digest entry %d", i)
		}
		var d cache.FileDigest
		copy(d.File[:], buf[pos:pos+32])
		pos += 32

		segCount := binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4

		d.Segments = make([]cache.Segment, segCount)
		for j := uint32(0); j < segCount; j++ {
			if len(buf) < pos+12 {
				return nil, fmt.Errorf("control: truncated segment in entry %d", i)
			}
			d.Segments[j] = cache.Segment{
				Position: binary.BigEndian.Uint64(buf[pos : pos+8]),
				Size:     binary.BigEndian.Uint32(buf[pos+8 : pos+12]),
			}
			pos += 12
		}

		if len(buf) < pos+4 {
			return nil, fmt.Errorf("control: missing byte-length for entry %d", i)
		}
		byteLen := binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
		if len(buf) < pos+int(byteLen) {
			return nil, fmt.Errorf("control: truncated bytes for entry %d", i)
		}
		d.Bytes = append([]byte(nil), buf[pos:pos+int(byteLen)]...)
		pos += int(byteLen)

		out = append(out, d)
	}
	return out, nil
}
