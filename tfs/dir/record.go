package dir

import (
	"fmt"
	"hash/crc32"

	"github.com/rarydzu/tfs/utils"
)

const (
	Used = iota + 1
	// MaxNameLen is the longest name a directory slot can hold.
	MaxNameLen = 40
	headerSize = 13 // flags + inumber + name length
	// RecordSize is the on-block size of one directory slot.
	RecordSize = headerSize + MaxNameLen + 4
)

// Record is one directory slot: flags, inumber and name followed by a CRC
// of everything before it.
type Record struct {
	Flags   int8
	Inumber uint64
	Name    string
}

func setBit(n int8, pos uint) int8 {
	n |= (1 << pos)
	return n
}

func hasBit(n int8, pos uint) bool {
	val := n & (1 << pos)
	return (val > 0)
}

func NewRecord(name string, inumber int) *Record {
	return &Record{Flags: setBit(0, Used), Inumber: uint64(inumber), Name: name}
}

func (r *Record) IsUsed() bool {
	return hasBit(r.Flags, Used)
}

func (r *Record) CalculateCRC(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Encode writes the record into a RecordSize slot.
func (r *Record) Encode(buf []byte) error {
	if len(r.Name) > MaxNameLen {
		return fmt.Errorf("name %q: %w", r.Name, ErrNameTooLong)
	}
	if len(buf) < RecordSize {
		return fmt.Errorf("slot of %d bytes too small", len(buf))
	}
	buf = buf[:RecordSize]
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = byte(r.Flags)
	copy(buf[1:9], utils.Uint64ToBytes(r.Inumber))
	copy(buf[9:13], utils.Uint32ToBytes(uint32(len(r.Name))))
	copy(buf[headerSize:], r.Name)
	crcPos := headerSize + MaxNameLen
	crc := r.CalculateCRC(buf[0:crcPos])
	copy(buf[crcPos:], utils.Uint32ToBytes(crc))
	return nil
}

// Decode reads a slot. An all-zero slot decodes to a free record.
func (r *Record) Decode(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("slot of %d bytes too small", len(data))
	}
	r.Flags = int8(data[0])
	if !r.IsUsed() {
		r.Inumber = 0
		r.Name = ""
		return nil
	}
	r.Inumber = utils.BytesToUint64(data[1:9])
	nameLen := utils.BytesToUint32(data[9:13])
	if nameLen > MaxNameLen {
		return fmt.Errorf("name length %d: %w", nameLen, ErrCorrupt)
	}
	r.Name = string(data[headerSize : headerSize+nameLen])
	crcPos := headerSize + MaxNameLen
	stored := utils.BytesToUint32(data[crcPos : crcPos+4])
	crc := r.CalculateCRC(data[0:crcPos])
	if crc != stored {
		return fmt.Errorf("CRC check failed %d != %d: %w", crc, stored, ErrCorrupt)
	}
	return nil
}
