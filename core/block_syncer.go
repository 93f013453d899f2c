package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/blinklabs-io/gouroboros/protocol/chainsync"
	"github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/hashicorp/go-hclog"
)

const (
	ProtocolTCP  = "tcp"
	ProtocolUnix = "unix"
)

var errNoConnection = errors.New("no connection")

type BlockSyncerConfig struct {
	NetworkMagic uint32 `json:"networkMagic"`
	NodeAddress  string `json:"nodeAddress"`
	KeepAlive    bool   `json:"keepAlive"`
}

type BlockSyncer interface {
	// Sync starts following the chain from the given point, empty hash means from genesis
	Sync(point BlockPoint, handler BlockSyncerHandler) error
	GetFullBlock(slot uint64, hash []byte) (*RawBlock, error)
	Close() error
}

type BlockSyncerHandler interface {
	RollBackwardFunc(ctx chainsync.CallbackContext, point common.Point, tip chainsync.Tip) error
	RollForwardFunc(ctx chainsync.CallbackContext, blockType uint, blockInfo interface{}, tip chainsync.Tip) error
	ErrorHandler(err error)
}

type BlockSyncerImpl struct {
	config *BlockSyncerConfig

	mutex      sync.Mutex
	connection *ouroboros.Connection
	logger     hclog.Logger
}

var _ BlockSyncer = (*BlockSyncerImpl)(nil)

func NewBlockSyncer(config *BlockSyncerConfig, logger hclog.Logger) *BlockSyncerImpl {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &BlockSyncerImpl{
		config: config,
		logger: logger,
	}
}

func (bs *BlockSyncerImpl) Sync(point BlockPoint, handler BlockSyncerHandler) error {
	connection, err := bs.connect(handler)
	if err != nil {
		return err
	}

	syncPoint := common.NewPointOrigin()
	if len(point.BlockHash) > 0 {
		syncPoint = common.NewPoint(point.BlockSlot, point.BlockHash)
	}

	bs.logger.Debug("Syncing started", "address", bs.config.NodeAddress, "slot", point.BlockSlot)

	// callbacks may fetch full blocks, so the mutex must not be held here
	if err := connection.ChainSync().Client.Sync([]common.Point{syncPoint}); err != nil {
		return fmt.Errorf("chain sync failed: %w", err)
	}

	// async errors of this connection are reported to the handler
	go func() {
		err, ok := <-connection.ErrorChan()
		if !ok {
			return
		}

		handler.ErrorHandler(err)
	}()

	return nil
}

func (bs *BlockSyncerImpl) connect(handler BlockSyncerHandler) (*ouroboros.Connection, error) {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if bs.connection != nil {
		bs.connection.Close() // close previous connection
		bs.connection = nil
	}

	connection, err := ouroboros.NewConnection(
		ouroboros.WithNetworkMagic(bs.config.NetworkMagic),
		ouroboros.WithNodeToNode(true),
		ouroboros.WithKeepAlive(bs.config.KeepAlive),
		ouroboros.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollBackwardFunc(handler.RollBackwardFunc),
			chainsync.WithRollForwardFunc(handler.RollForwardFunc),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create connection: %w", err)
	}

	if err := connection.Dial(getNodeProtocol(bs.config.NodeAddress), bs.config.NodeAddress); err != nil {
		connection.Close()

		return nil, fmt.Errorf("could not dial %s: %w", bs.config.NodeAddress, err)
	}

	bs.connection = connection

	return connection, nil
}

func (bs *BlockSyncerImpl) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if bs.connection == nil {
		return nil
	}

	err := bs.connection.Close()
	bs.connection = nil

	return err
}

func (bs *BlockSyncerImpl) GetFullBlock(slot uint64, hash []byte) (*RawBlock, error) {
	bs.mutex.Lock()
	connection := bs.connection
	bs.mutex.Unlock()

	if connection == nil {
		return nil, errNoConnection
	}

	block, err := connection.BlockFetch().Client.GetBlock(common.NewPoint(slot, hash))
	if err != nil {
		return nil, fmt.Errorf("could not fetch block at slot %d: %w", slot, err)
	}

	return &RawBlock{
		Type: uint(block.Type()),
		Cbor: block.Cbor(),
	}, nil
}

func getNodeProtocol(nodeAddress string) string {
	if strings.HasPrefix(nodeAddress, "/") {
		return ProtocolUnix
	}

	return ProtocolTCP
}
