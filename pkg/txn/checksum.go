package txn

import "encoding/binary"

// headerChecksum is the rolling two-word checksum used to validate a
// GlobalHeader slot, repurposed from the WAL frame checksum in
// mjm918-tur's pkg/wal (walChecksum) -- same rolling-sum algorithm, but
// applied here to a GlobalHeader's fixed fields instead of a WAL frame, and
// big-endian throughout to match the rest of the on-disk layout.
func headerChecksum(data []byte) (uint32, uint32) {
	var s0, s1 uint32
	padded := data
	if len(padded)%4 != 0 {
		padded = append(append([]byte{}, padded...), make([]byte, 4-len(padded)%4)...)
	}
	for i := 0; i < len(padded); i += 8 {
		var x0, x1 uint32
		x0 = binary.BigEndian.Uint32(padded[i : i+4])
		if i+4 < len(padded) {
			x1 = binary.BigEndian.Uint32(padded[i+4 : i+8])
		}
		s0 += x0 + s1
		s1 += x1 + s0
	}
	return s0, s1
}
