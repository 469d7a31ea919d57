package queue

import "encoding/binary"

// Keyspace helpers. All numbers are big-endian so ranges scan in order.

var (
	qPrefix   = []byte("q/")
	metaSeg   = []byte("/m")
	msgSeg    = []byte("/msg/")
	availSeg  = []byte("/avail/")
	delaySeg  = []byte("/delay/")
	leaseSeg  = []byte("/lease/")
	lidxSeg   = []byte("/lidx/")
	dlqSeg    = []byte("/dlq/")
	keySlash  = byte('/')
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func base(queue string, seg []byte) []byte {
	k := make([]byte, 0, len(qPrefix)+len(queue)+len(seg)+24)
	k = append(k, qPrefix...)
	k = append(k, queue...)
	k = append(k, seg...)
	return k
}

func metaKey(queue string) []byte { return base(queue, metaSeg) }

func msgKey(queue string, seq uint64) []byte {
	return appendBE8(base(queue, msgSeg), seq)
}

func availKey(queue string, seq uint64) []byte {
	return appendBE8(base(queue, availSeg), seq)
}

func availPrefix(queue string) []byte { return base(queue, availSeg) }

func delayKey(queue string, fireMs uint64, seq uint64) []byte {
	k := appendBE8(base(queue, delaySeg), fireMs)
	k = append(k, keySlash)
	return appendBE8(k, seq)
}

func delayPrefix(queue string) []byte { return base(queue, delaySeg) }

func leaseKey(queue, group string, seq uint64) []byte {
	k := base(queue, leaseSeg)
	k = append(k, group...)
	k = append(k, keySlash)
	return appendBE8(k, seq)
}

func leaseIdxKey(queue, group string, expMs uint64, seq uint64) []byte {
	k := base(queue, lidxSeg)
	k = append(k, group...)
	k = append(k, keySlash)
	k = appendBE8(k, expMs)
	k = append(k, keySlash)
	return appendBE8(k, seq)
}

func leaseIdxPrefix(queue, group string) []byte {
	k := base(queue, lidxSeg)
	k = append(k, group...)
	k = append(k, keySlash)
	return k
}

func dlqKey(queue, group string, seq uint64) []byte {
	k := base(queue, dlqSeg)
	k = append(k, group...)
	k = append(k, keySlash)
	return appendBE8(k, seq)
}

func dlqPrefix(queue, group string) []byte {
	k := base(queue, dlqSeg)
	k = append(k, group...)
	k = append(k, keySlash)
	return k
}
