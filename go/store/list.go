package store

import "encoding/binary"

// encodeRecord length-prefixes a single record so a list blob can be split
// back into its constituent Append-ed records.
func encodeRecord(record []byte) []byte {
	var out = make([]byte, 4+len(record))
	binary.BigEndian.PutUint32(out, uint32(len(record)))
	copy(out[4:], record)
	return out
}

// splitRecords decodes a list blob built from encodeRecord calls. A
// truncated trailing record (the tolerated crash scenario of spec §4.3) is
// silently dropped rather than returned as an error.
func splitRecords(blob []byte) [][]byte {
	var records [][]byte
	for len(blob) >= 4 {
		var n = binary.BigEndian.Uint32(blob[:4])
		blob = blob[4:]
		if uint64(len(blob)) < uint64(n) {
			break // truncated trailing record; tolerated on recovery.
		}
		records = append(records, blob[:n])
		blob = blob[n:]
	}
	return records
}
