package server

import (
	"encoding/binary"
	"fmt"

	"github.com/ssbd-io/blockplane/ids"
)

// versionFieldSize is the width of the version prefix carried in a
// TwoPCPrepare/TwoPCPrepareQuick body (spec §6.2 leaves the body layout
// of dialect-B requests unspecified beyond the header; the worker must
// convey the chosen version to the node, so it is encoded as an 8-byte
// big-endian prefix followed by the candidate payload).
const versionFieldSize = 8

func encodeVersion(v ids.Version) []byte {
	buf := make([]byte, versionFieldSize)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeVersion(body []byte) (ids.Version, error) {
	if len(body) < versionFieldSize {
		return 0, fmt.Errorf("storagenode/server: prepare body too short for version (%d < %d)", len(body), versionFieldSize)
	}
	return ids.Version(binary.BigEndian.Uint64(body[:versionFieldSize])), nil
}

// encodeCommittedVersion encodes the CommittedVersion returned alongside
// a PrepareAgree/PrepareAbort reply.
func encodeCommittedVersion(v ids.Version) []byte {
	return encodeVersion(v)
}
