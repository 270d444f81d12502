package train

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodePacked writes one 40-byte packed record:
// 32-byte position, int16 value, uint16 best move (reserved), uint16 end
// ply, int8 result, one padding byte.
func EncodePacked(rec *Record, out []byte) error {
	if len(out) < PackedRecordSize {
		return fmt.Errorf("train: packed record needs %d bytes", PackedRecordSize)
	}
	for i := range out[:PackedRecordSize] {
		out[i] = 0
	}
	if err := encodePosition(&rec.Pos, out); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(out[32:], uint16(rec.Value))
	// best move (out[34:36]) reserved as zero
	binary.LittleEndian.PutUint16(out[36:], uint16(rec.Pos.Ply))
	out[38] = byte(rec.Outcome)
	return nil
}

// DecodePacked reads one 40-byte packed record.
func DecodePacked(in []byte) (Record, error) {
	var rec Record
	if len(in) < PackedRecordSize {
		return rec, io.ErrUnexpectedEOF
	}
	pos, err := decodePosition(in)
	if err != nil {
		return rec, err
	}
	pos.Ply = int(binary.LittleEndian.Uint16(in[36:]))
	rec.Pos = pos
	rec.Value = int16(binary.LittleEndian.Uint16(in[32:]))
	rec.Outcome = GameOutcome(int8(in[38]))
	return rec, nil
}

// EncodeHCPE writes one 38-byte value-labelled record:
// 32-byte position, int16 eval, uint16 best move (reserved), int8 result,
// one padding byte.
func EncodeHCPE(rec *Record, out []byte) error {
	if len(out) < HCPERecordSize {
		return fmt.Errorf("train: hcpe record needs %d bytes", HCPERecordSize)
	}
	for i := range out[:HCPERecordSize] {
		out[i] = 0
	}
	if err := encodePosition(&rec.Pos, out); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(out[32:], uint16(rec.Value))
	// best move (out[34:36]) reserved as zero
	out[36] = byte(rec.Outcome)
	return nil
}

// DecodeHCPE reads one 38-byte value-labelled record.
func DecodeHCPE(in []byte) (Record, error) {
	var rec Record
	if len(in) < HCPERecordSize {
		return rec, io.ErrUnexpectedEOF
	}
	pos, err := decodePosition(in)
	if err != nil {
		return rec, err
	}
	rec.Pos = pos
	rec.Value = int16(binary.LittleEndian.Uint16(in[32:]))
	rec.Outcome = GameOutcome(int8(in[36]))
	return rec, nil
}

// ReadAll decodes every record of one format from r.
func ReadAll(r io.Reader, recordSize int, decode func([]byte) (Record, error)) ([]Record, error) {
	var records []Record
	buf := make([]byte, recordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		rec, err := decode(buf)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
