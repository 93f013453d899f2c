package core

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/blinklabs-io/gouroboros/protocol/chainsync"
	"github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/hashicorp/go-hclog"
)

var (
	errWalletSyncerFatal = errors.New("wallet syncer fatal error")
)

type WalletSyncerConfig struct {
	StartingBlockPoint *BlockPoint `json:"startingBlockPoint"`

	// how many children blocks is needed for some block to be considered final
	ConfirmationBlockCount uint `json:"confirmationBlockCount"`

	// number of slots in one epoch
	EpochLength uint64 `json:"epochLength"`
}

type WalletStatus struct {
	WalletID  string
	Ptr       StatePtr
	UtxoCount int
	Balance   Coin
}

// WalletSyncer feeds confirmed blocks from the node into the wallet state, appends the
// produced events to the wallet log and archives the blocks of every epoch it follows
// from the beginning
type WalletSyncer struct {
	blockSyncer BlockSyncer
	config      *WalletSyncerConfig
	decoder     BlockDecoder

	lock  LogLock
	state *WalletState
	// optional read model and epoch archive
	db       WalletDb
	archiver EpochArchiver

	// latest confirmed and saved block point
	latestBlockPoint   *BlockPoint
	unconfirmedBlocks  []*BlockHeader
	epochBuilder       EpochPackBuilder
	lastConfirmedEpoch *uint64

	mutex  sync.Mutex
	logger hclog.Logger
}

var _ BlockSyncerHandler = (*WalletSyncer)(nil)

func NewWalletSyncer(
	config *WalletSyncerConfig, blockSyncer BlockSyncer, decoder BlockDecoder,
	lock LogLock, state *WalletState, db WalletDb, archiver EpochArchiver, logger hclog.Logger,
) *WalletSyncer {
	initPrometheusMetrics()

	if config.EpochLength == 0 {
		config.EpochLength = ByronMainnetEpochLength
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &WalletSyncer{
		blockSyncer: blockSyncer,
		config:      config,
		decoder:     decoder,
		lock:        lock,
		state:       state,
		db:          db,
		archiver:    archiver,
		logger:      logger,
	}
}

func (ws *WalletSyncer) RollBackwardFunc(ctx chainsync.CallbackContext, point common.Point, tip chainsync.Tip) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	prometheusWalletRollbacks.Inc()

	// linear is ok, there will be smaller number of unconfirmed blocks in memory
	for i := len(ws.unconfirmedBlocks) - 1; i >= 0; i-- {
		unc := ws.unconfirmedBlocks[i]
		if unc.BlockSlot == point.Slot && bytes.Equal(unc.BlockHash, point.Hash) {
			ws.logger.Info("Roll backward", "slot", point.Slot, "hash", hex.EncodeToString(point.Hash),
				"dropped", len(ws.unconfirmedBlocks)-i-1)

			ws.unconfirmedBlocks = ws.unconfirmedBlocks[:i+1]

			return nil
		}
	}

	if ws.latestBlockPoint != nil && ws.latestBlockPoint.BlockSlot == point.Slot &&
		bytes.Equal(ws.latestBlockPoint.BlockHash, point.Hash) {
		// reverting to the latest confirmed block
		ws.unconfirmedBlocks = nil

		return nil
	}

	return errors.Join(errWalletSyncerFatal,
		fmt.Errorf("roll backward, block not found = (%d, %s)", point.Slot, hex.EncodeToString(point.Hash)))
}

func (ws *WalletSyncer) RollForwardFunc(
	ctx chainsync.CallbackContext, blockType uint, blockInfo interface{}, tip chainsync.Tip,
) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	blockHeader, err := getBlockHeaderFromBlockInfo(blockInfo)
	if err != nil {
		return errors.Join(errWalletSyncerFatal, err)
	}

	ws.logger.Debug("Roll forward", "slot", blockHeader.BlockSlot, "hash", hex.EncodeToString(blockHeader.BlockHash),
		"tip slot", tip.Point.Slot, "type", blockType)

	ws.unconfirmedBlocks = append(ws.unconfirmedBlocks, blockHeader)

	for uint(len(ws.unconfirmedBlocks)) > ws.config.ConfirmationBlockCount {
		if err := ws.processConfirmedBlock(ws.unconfirmedBlocks[0]); err != nil {
			return err
		}

		// copy whole list because we do not want memory leak
		ws.unconfirmedBlocks = append([]*BlockHeader(nil), ws.unconfirmedBlocks[1:]...)
	}

	return nil
}

func (ws *WalletSyncer) ErrorHandler(err error) {
	ws.logger.Error("Syncing failed", "err", err)

	// retry syncing again if not fatal
	if !errors.Is(err, errWalletSyncerFatal) {
		if err := ws.StartSyncing(); err != nil {
			ws.logger.Error("Failed to restart syncing", "err", err)
		}
	}
}

func (ws *WalletSyncer) StartSyncing() error {
	ws.mutex.Lock()

	if ws.latestBlockPoint == nil {
		ws.latestBlockPoint = ws.getStartingBlockPoint()

		if len(ws.latestBlockPoint.BlockHash) > 0 {
			epochID := ws.latestBlockPoint.BlockSlot / ws.config.EpochLength
			ws.lastConfirmedEpoch = &epochID
		}
	}

	point := *ws.latestBlockPoint
	// node will send everything after the latest confirmed point again
	ws.unconfirmedBlocks = nil

	ws.mutex.Unlock()

	ws.logger.Info("Start syncing", "slot", point.BlockSlot, "hash", hex.EncodeToString(point.BlockHash))

	return ws.blockSyncer.Sync(point, ws)
}

func (ws *WalletSyncer) Status() (WalletStatus, error) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	balance, err := ws.state.Balance()
	if err != nil {
		return WalletStatus{}, err
	}

	return WalletStatus{
		WalletID:  ws.lock.WalletID(),
		Ptr:       ws.state.Ptr(),
		UtxoCount: ws.state.Utxos().Len(),
		Balance:   balance,
	}, nil
}

// Close drops the epoch that is being archived and releases the wallet log lock
func (ws *WalletSyncer) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if ws.epochBuilder != nil {
		ws.epochBuilder.Abort()
		ws.epochBuilder = nil
	}

	return errors.Join(ws.blockSyncer.Close(), ws.lock.Release())
}

func (ws *WalletSyncer) getStartingBlockPoint() *BlockPoint {
	if ptr := ws.state.Ptr(); !ptr.IsBeforeGenesis() {
		return &BlockPoint{
			BlockSlot: ptr.Position.AbsoluteSlot(ws.config.EpochLength),
			BlockHash: append([]byte(nil), ptr.LastHash[:]...),
		}
	}

	if ws.config.StartingBlockPoint != nil {
		return ws.config.StartingBlockPoint
	}

	// from genesis
	return &BlockPoint{}
}

func (ws *WalletSyncer) processConfirmedBlock(header *BlockHeader) error {
	raw, err := ws.blockSyncer.GetFullBlock(header.BlockSlot, header.BlockHash)
	if err != nil {
		return err
	}

	return ws.applyConfirmedBlock(header, raw)
}

func (ws *WalletSyncer) applyConfirmedBlock(header *BlockHeader, raw *RawBlock) error {
	block, err := ws.decoder.DecodeBlock(raw)
	if err != nil {
		return errors.Join(errWalletSyncerFatal, err)
	}

	if block != nil {
		if err := ws.forward(block); err != nil {
			return errors.Join(errWalletSyncerFatal, err)
		}
	}

	ws.archive(header, raw, block)

	ws.latestBlockPoint = &BlockPoint{
		BlockSlot:   header.BlockSlot,
		BlockHash:   header.BlockHash,
		BlockNumber: header.BlockNumber,
	}

	prometheusWalletProcessedBlocks.Inc()

	return nil
}

func (ws *WalletSyncer) forward(block *Block) error {
	events, err := ws.state.Forward([]*Block{block})
	if err != nil {
		return err
	}

	// events are committed only when they are in the log
	if err := ws.lock.Append(events); err != nil {
		return err
	}

	if ws.db != nil {
		dbTx := ws.db.OpenTx()
		if err := ApplyLogEntries(dbTx, ws.lock.WalletID(), events); err != nil {
			return err
		}

		dbTx.SetStatePtr(ws.lock.WalletID(), ws.state.Ptr())

		if err := dbTx.Execute(); err != nil {
			return err
		}
	}

	observeLogEntries(events)
	prometheusWalletUtxoCount.Set(float64(ws.state.Utxos().Len()))

	for _, event := range events {
		if event.Utxo != nil {
			ws.logger.Info("Wallet event", "kind", event.Kind, "utxo", event.Utxo.OutputRef,
				"amount", event.Utxo.Amount, "addr", event.Utxo.AddrTag)
		} else {
			ws.logger.Debug("Wallet event", "kind", event.Kind, "ptr", event.Checkpoint)
		}
	}

	return nil
}

// archive appends the block to the pack of its epoch. Failures only stop archiving of
// the current epoch, the wallet keeps syncing.
func (ws *WalletSyncer) archive(header *BlockHeader, raw *RawBlock, block *Block) {
	if ws.archiver == nil {
		return
	}

	epochID := header.BlockSlot / ws.config.EpochLength

	if ws.epochBuilder != nil && ws.epochBuilder.EpochID() != epochID {
		builder := ws.epochBuilder
		ws.epochBuilder = nil

		if err := builder.Finalize(); err != nil {
			ws.logger.Error("Failed to finalize epoch", "epoch", builder.EpochID(), "err", err)
		} else {
			prometheusWalletEpochsArchived.Inc()
		}
	}

	// epoch is archived only if all of its blocks are seen
	isNewEpoch := ws.lastConfirmedEpoch == nil || *ws.lastConfirmedEpoch < epochID
	ws.lastConfirmedEpoch = &epochID

	if ws.epochBuilder == nil {
		if !isNewEpoch {
			return
		}

		builder, err := ws.archiver.BeginEpoch(epochID)
		if err != nil {
			ws.logger.Error("Failed to begin epoch", "epoch", epochID, "err", err)

			return
		}

		ws.epochBuilder = builder
	}

	if err := ws.epochBuilder.Append(raw, block); err != nil {
		ws.logger.Error("Failed to archive block", "epoch", epochID, "slot", header.BlockSlot, "err", err)
		ws.epochBuilder.Abort()
		ws.epochBuilder = nil
	}
}

func getBlockHeaderFromBlockInfo(blockInfo interface{}) (*BlockHeader, error) {
	blockHeaderFull, ok := blockInfo.(ledger.BlockHeader)
	if !ok {
		return nil, fmt.Errorf("unexpected block info type: %T", blockInfo)
	}

	blockHash, err := hex.DecodeString(blockHeaderFull.Hash())
	if err != nil {
		return nil, fmt.Errorf("invalid block hash: %w", err)
	}

	return &BlockHeader{
		BlockSlot:   blockHeaderFull.SlotNumber(),
		BlockHash:   blockHash,
		BlockNumber: blockHeaderFull.BlockNumber(),
		EraID:       blockHeaderFull.Era().Id,
		EraName:     blockHeaderFull.Era().Name,
	}, nil
}
