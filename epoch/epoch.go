package epoch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/igorcrevar/cardano-go-wallet/core"
)

// CreateFromKnownRefPack persists the pack pointer and the refpack of an epoch
func (s *Storage) CreateFromKnownRefPack(epochID uint64, packHash PackHash, refPack *RefPack) error {
	if refPack == nil {
		return fmt.Errorf("refpack of epoch %d is not specified", epochID)
	}

	if err := os.MkdirAll(s.epochDir(epochID), 0755); err != nil {
		return fmt.Errorf("could not create epoch directory: %w", err)
	}

	if err := atomicWrite(s.packPointerFilePath(epochID), func(w io.Writer) error {
		_, err := io.WriteString(w, packHash.String())

		return err
	}); err != nil {
		return fmt.Errorf("could not write pack pointer of epoch %d: %w", epochID, err)
	}

	if err := atomicWrite(s.refPackFilePath(epochID), refPack.Write); err != nil {
		return fmt.Errorf("could not write refpack of epoch %d: %w", epochID, err)
	}

	s.logger.Debug("Epoch index created", "epoch", epochID, "pack", packHash, "slots", refPack.Len())

	return nil
}

// CreateByRebuilding decodes the whole pack, builds its refpack and persists the epoch
// index. Nothing is written when the pack content does not match packHash.
func (s *Storage) CreateByRebuilding(epochID uint64, packHash PackHash, decoder core.BlockDecoder) error {
	refPack, err := s.rebuildRefPack(epochID, packHash, decoder)
	if err != nil {
		return err
	}

	return s.CreateFromKnownRefPack(epochID, packHash, refPack)
}

func (s *Storage) rebuildRefPack(epochID uint64, packHash PackHash, decoder core.BlockDecoder) (*RefPack, error) {
	// corrupted content must be reported as such and not as a decode failure
	if err := s.verifyPack(packHash); err != nil {
		return nil, fmt.Errorf("epoch %d: %w", epochID, err)
	}

	reader, err := s.OpenPack(packHash)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	builder := newRefPackBuilder(epochID)

	for {
		raw, err := reader.Next()
		if err != nil {
			return nil, err
		} else if raw == nil {
			break
		}

		block, err := decoder.DecodeBlock(raw)
		if err != nil {
			return nil, err
		} else if block == nil {
			continue
		}

		if err := builder.add(block.Date, block.Hash); err != nil {
			return nil, err
		}
	}

	got, err := reader.Finalize()
	if err != nil {
		return nil, err
	}

	if got != packHash {
		return nil, errors.Join(core.ErrIntegrityMismatch,
			fmt.Errorf("epoch %d: expected pack %s, got %s", epochID, packHash, got))
	}

	return builder.refPack, nil
}

func (s *Storage) ReadPackPointer(epochID uint64) (PackHash, error) {
	content, err := os.ReadFile(s.packPointerFilePath(epochID))
	if err != nil {
		return PackHash{}, err
	}

	return NewPackHashFromHex(strings.TrimSpace(string(content)))
}

func (s *Storage) ReadRefPack(epochID uint64) (*RefPack, error) {
	file, err := os.Open(s.refPackFilePath(epochID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadRefPack(file)
}

func (s *Storage) Read(epochID uint64) (PackHash, *RefPack, error) {
	packHash, err := s.ReadPackPointer(epochID)
	if err != nil {
		return packHash, nil, err
	}

	refPack, err := s.ReadRefPack(epochID)
	if err != nil {
		return packHash, nil, err
	}

	return packHash, refPack, nil
}

// GetBlockHash resolves the hash of the block produced at the given date
func (s *Storage) GetBlockHash(date core.BlockDate) (core.Hash32, bool, error) {
	refPack, err := s.ReadRefPack(date.Epoch)
	if err != nil {
		return core.Hash32{}, false, err
	}

	hash, exists := refPack.Lookup(date)

	return hash, exists, nil
}
