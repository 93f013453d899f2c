package epoch

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/igorcrevar/cardano-go-wallet/core"
)

const (
	refPackMagic    = "RPAK"
	refPackVersion  = byte(1)
	maxRefPackSlots = 1 << 24

	refPackEntryMissing = byte(0)
	refPackEntryPresent = byte(1)
)

type refPackEntry struct {
	hash    core.Hash32
	present bool
}

// RefPack maps every slot of an epoch to the hash of the block produced in it
type RefPack struct {
	entries []refPackEntry
}

func NewRefPack() *RefPack {
	return &RefPack{}
}

func (rp *RefPack) PushBack(hash core.Hash32) {
	rp.entries = append(rp.entries, refPackEntry{hash: hash, present: true})
}

func (rp *RefPack) PushBackMissing() {
	rp.entries = append(rp.entries, refPackEntry{})
}

func (rp *RefPack) Len() int {
	return len(rp.entries)
}

// Get returns the block hash at slot index i, false for missing or out of range slots
func (rp *RefPack) Get(i int) (core.Hash32, bool) {
	if i < 0 || i >= len(rp.entries) {
		return core.Hash32{}, false
	}

	return rp.entries[i].hash, rp.entries[i].present
}

// Lookup returns the block hash at the slot of date, the epoch is not checked
func (rp *RefPack) Lookup(date core.BlockDate) (core.Hash32, bool) {
	if date.Slot >= uint64(len(rp.entries)) {
		return core.Hash32{}, false
	}

	return rp.Get(int(date.Slot))
}

func (rp *RefPack) Write(w io.Writer) error {
	header := make([]byte, 0, len(refPackMagic)+5)
	header = append(header, refPackMagic...)
	header = append(header, refPackVersion)
	header = binary.BigEndian.AppendUint32(header, uint32(len(rp.entries)))

	if _, err := w.Write(header); err != nil {
		return err
	}

	for _, entry := range rp.entries {
		if !entry.present {
			if _, err := w.Write([]byte{refPackEntryMissing}); err != nil {
				return err
			}

			continue
		}

		if _, err := w.Write(append([]byte{refPackEntryPresent}, entry.hash[:]...)); err != nil {
			return err
		}
	}

	return nil
}

func ReadRefPack(r io.Reader) (*RefPack, error) {
	reader := bufio.NewReader(r)

	var header [len(refPackMagic) + 5]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return nil, fmt.Errorf("%w: refpack header: %v", core.ErrDecode, err)
	}

	if string(header[:len(refPackMagic)]) != refPackMagic || header[len(refPackMagic)] != refPackVersion {
		return nil, fmt.Errorf("%w: invalid refpack header %x", core.ErrDecode, header[:len(refPackMagic)+1])
	}

	count := binary.BigEndian.Uint32(header[len(refPackMagic)+1:])
	if count > maxRefPackSlots {
		return nil, fmt.Errorf("%w: refpack has too many slots: %d", core.ErrDecode, count)
	}

	rp := NewRefPack()
	if count > 0 {
		rp.entries = make([]refPackEntry, 0, count)
	}

	for i := uint32(0); i < count; i++ {
		flag, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: refpack entry %d: %v", core.ErrDecode, i, err)
		}

		switch flag {
		case refPackEntryMissing:
			rp.PushBackMissing()
		case refPackEntryPresent:
			var hash core.Hash32
			if _, err := io.ReadFull(reader, hash[:]); err != nil {
				return nil, fmt.Errorf("%w: refpack entry %d: %v", core.ErrDecode, i, err)
			}

			rp.PushBack(hash)
		default:
			return nil, fmt.Errorf("%w: refpack entry %d has invalid flag %d", core.ErrDecode, i, flag)
		}
	}

	if _, err := reader.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after refpack entries", core.ErrDecode)
	}

	return rp, nil
}

// refPackBuilder fills the gaps between blocks with missing markers
type refPackBuilder struct {
	epochID uint64
	cursor  uint64
	refPack *RefPack
}

func newRefPackBuilder(epochID uint64) *refPackBuilder {
	return &refPackBuilder{
		epochID: epochID,
		refPack: NewRefPack(),
	}
}

func (b *refPackBuilder) add(date core.BlockDate, hash core.Hash32) error {
	if date.Epoch != b.epochID {
		return fmt.Errorf("%w: block %s does not belong to epoch %d", core.ErrDecode, date, b.epochID)
	}

	if date.Slot < b.cursor {
		return fmt.Errorf("%w: block %s is behind slot %d", core.ErrDecode, date, b.cursor)
	}

	for b.cursor < date.Slot {
		b.refPack.PushBackMissing()
		b.cursor++
	}

	b.refPack.PushBack(hash)
	b.cursor++

	return nil
}
