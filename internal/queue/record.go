package queue

import (
	"encoding/binary"
	"hash/crc32"
)

// Frame encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeFrame frames a header and payload with a trailing checksum.
func EncodeFrame(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// Frame is a decoded message frame.
type Frame struct {
	Header  []byte
	Payload []byte
}

// DecodeFrame parses and checksums a frame. ok=false on corruption.
func DecodeFrame(b []byte) (Frame, bool) {
	if len(b) < 1+4 {
		return Frame{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Frame{}, false
	}
	if n+int(hlen)+4 > len(b) {
		return Frame{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Frame{}, false
	}
	return Frame{
		Header:  append([]byte(nil), header...),
		Payload: append([]byte(nil), payload...),
	}, true
}
