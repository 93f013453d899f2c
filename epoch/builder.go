package epoch

import "github.com/igorcrevar/cardano-go-wallet/core"

// Builder collects the blocks of one epoch while syncing and publishes the pack and
// the epoch index on Finalize
type Builder struct {
	storage    *Storage
	epochID    uint64
	packWriter *PackWriter
	refPack    *refPackBuilder
}

var _ core.EpochPackBuilder = (*Builder)(nil)

var _ core.EpochArchiver = (*Storage)(nil)

func (s *Storage) BeginEpoch(epochID uint64) (core.EpochPackBuilder, error) {
	packWriter, err := s.NewPackWriter()
	if err != nil {
		return nil, err
	}

	return &Builder{
		storage:    s,
		epochID:    epochID,
		packWriter: packWriter,
		refPack:    newRefPackBuilder(epochID),
	}, nil
}

func (b *Builder) EpochID() uint64 {
	return b.epochID
}

// Append adds raw block to the pack. block is nil for blocks without a slot.
func (b *Builder) Append(raw *core.RawBlock, block *core.Block) error {
	if block != nil {
		if err := b.refPack.add(block.Date, block.Hash); err != nil {
			return err
		}
	}

	return b.packWriter.Append(raw)
}

func (b *Builder) Finalize() error {
	packHash, err := b.packWriter.Finalize()
	if err != nil {
		return err
	}

	b.storage.logger.Info("Epoch pack finalized", "epoch", b.epochID, "pack", packHash, "blocks", b.packWriter.Count())

	return b.storage.CreateFromKnownRefPack(b.epochID, packHash, b.refPack.refPack)
}

func (b *Builder) Abort() {
	b.packWriter.Abort()
}
