// Package walletlog is the durable append-only event log of wallets.
//
// Every wallet owns a directory with a lock file and a log file. The log file starts
// with "WLOG" and a version byte, followed by records made of a big endian uint32
// length and a cbor encoded entry.
package walletlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/igorcrevar/cardano-go-wallet/core"
	"golang.org/x/sys/unix"
)

const (
	lockFileName = "lock"
	logFileName  = "log"

	logMagic         = "WLOG"
	logVersion       = byte(1)
	recordHeaderSize = 4
	maxRecordSize    = 1024 * 1024
)

type Store struct {
	rootDir string
	logger  hclog.Logger

	mutex sync.Mutex
	held  map[string]bool
}

var _ core.WalletLog = (*Store)(nil)

func NewStore(rootDir string, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Store{
		rootDir: rootDir,
		logger:  logger,
		held:    make(map[string]bool),
	}
}

// AcquireLock takes the exclusive lock of the wallet directory without waiting
func (s *Store) AcquireLock(walletID string) (core.LogLock, error) {
	if walletID == "" || walletID == "." || walletID == ".." || strings.ContainsAny(walletID, `/\`) {
		return nil, fmt.Errorf("invalid wallet id: %q", walletID)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.held[walletID] {
		return nil, fmt.Errorf("%w: %s", core.ErrLockBusy, walletID)
	}

	dir := filepath.Join(s.rootDir, walletID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Join(core.ErrLockIO, err)
	}

	file, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Join(core.ErrLockIO, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", core.ErrLockBusy, walletID)
		}

		return nil, errors.Join(core.ErrLockIO, err)
	}

	lock := &Lock{
		store:    s,
		walletID: walletID,
		dir:      dir,
		file:     file,
	}

	if err := lock.repairTail(); err != nil {
		// closing the descriptor drops the flock
		file.Close()

		return nil, err
	}

	s.held[walletID] = true

	s.logger.Debug("Wallet log lock acquired", "wallet", walletID, "size", lock.size)

	return lock, nil
}

func (s *Store) release(walletID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.held, walletID)
}

type Lock struct {
	store    *Store
	walletID string
	dir      string

	mutex sync.Mutex
	file  *os.File
	// log size that ends with a complete record
	size int64
}

var _ core.LogLock = (*Lock)(nil)

func (l *Lock) WalletID() string {
	return l.walletID
}

func (l *Lock) logFilePath() string {
	return filepath.Join(l.dir, logFileName)
}

func (l *Lock) isReleased() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.file == nil
}

// Release unlocks the wallet directory. Calling it more than once is allowed.
func (l *Lock) Release() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return nil
	}

	errUnlock := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	errClose := l.file.Close()

	l.file = nil
	l.store.release(l.walletID)

	l.store.logger.Debug("Wallet log lock released", "wallet", l.walletID)

	if err := errors.Join(errUnlock, errClose); err != nil {
		return errors.Join(core.ErrLockIO, err)
	}

	return nil
}

func (l *Lock) OpenReader() (core.LogReader, error) {
	if l.isReleased() {
		return nil, core.ErrLockReleased
	}

	file, err := os.Open(l.logFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrLogNotFound
		}

		return nil, err
	}

	reader := &Reader{
		file:   file,
		reader: bufio.NewReader(file),
	}

	if err := reader.readHeader(); err != nil {
		file.Close()

		return nil, err
	}

	return reader, nil
}

// Append writes all entries with a single write and syncs the log before returning
func (l *Lock) Append(entries []*core.LogEntry) error {
	if l.isReleased() {
		return core.ErrLockReleased
	}

	if len(entries) == 0 {
		return nil
	}

	var buffer []byte

	for i, entry := range entries {
		data, err := encodeLogEntry(entry)
		if err != nil {
			return fmt.Errorf("could not encode entry %d: %w", i, err)
		}

		buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(data)))
		buffer = append(buffer, data...)
	}

	file, err := os.OpenFile(l.logFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("could not open wallet log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("could not stat wallet log: %w", err)
	}

	// someone else touched the log or a previous append was cut short
	if info.Size() != l.size {
		if err := l.repairTail(); err != nil {
			return err
		}
	}

	isNew := l.size == 0
	if isNew {
		buffer = append(append([]byte(logMagic), logVersion), buffer...)
	}

	if err := writeAndSync(file, buffer); err != nil {
		if errTruncate := file.Truncate(l.size); errTruncate != nil {
			return errors.Join(err, fmt.Errorf("could not truncate wallet log: %w", errTruncate))
		}

		return err
	}

	l.size += int64(len(buffer))

	if isNew {
		if err := syncDir(l.dir); err != nil {
			return fmt.Errorf("could not sync wallet directory: %w", err)
		}
	}

	return file.Close()
}

func writeAndSync(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("could not write wallet log: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("could not sync wallet log: %w", err)
	}

	return nil
}

// repairTail cuts a partially written record from the end of the log. Corruption that
// is not a torn tail is reported as a decode error and the log is left untouched.
func (l *Lock) repairTail() error {
	file, err := os.OpenFile(l.logFilePath(), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			l.size = 0

			return nil
		}

		return fmt.Errorf("could not open wallet log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("could not stat wallet log: %w", err)
	}

	end, err := scanLog(bufio.NewReader(file), info.Size())
	if err != nil {
		return err
	}

	if end < info.Size() {
		l.store.logger.Warn("Truncating torn wallet log tail", "wallet", l.walletID,
			"size", info.Size(), "end", end)

		if err := file.Truncate(end); err != nil {
			return fmt.Errorf("could not truncate wallet log: %w", err)
		}

		if err := file.Sync(); err != nil {
			return fmt.Errorf("could not sync wallet log: %w", err)
		}
	}

	l.size = end

	return nil
}

// scanLog returns the offset right after the last complete record
func scanLog(r io.Reader, size int64) (int64, error) {
	header := append([]byte(logMagic), logVersion)

	if size < int64(len(header)) {
		prefix := make([]byte, size)
		if _, err := io.ReadFull(r, prefix); err != nil {
			return 0, fmt.Errorf("%w: wallet log header: %v", core.ErrDecode, err)
		}

		if !bytes.Equal(prefix, header[:size]) {
			return 0, fmt.Errorf("%w: invalid wallet log header %x", core.ErrDecode, prefix)
		}

		return 0, nil
	}

	actual := make([]byte, len(header))
	if _, err := io.ReadFull(r, actual); err != nil {
		return 0, fmt.Errorf("%w: wallet log header: %v", core.ErrDecode, err)
	}

	if !bytes.Equal(actual, header) {
		return 0, fmt.Errorf("%w: invalid wallet log header %x", core.ErrDecode, actual)
	}

	offset := int64(len(header))

	for offset < size {
		if size-offset < recordHeaderSize {
			return offset, nil
		}

		var recordHeader [recordHeaderSize]byte
		if _, err := io.ReadFull(r, recordHeader[:]); err != nil {
			return 0, fmt.Errorf("%w: wallet log record header: %v", core.ErrDecode, err)
		}

		recordSize := int64(binary.BigEndian.Uint32(recordHeader[:]))
		if recordSize == 0 || recordSize > maxRecordSize {
			// space allocated but never written
			if recordSize == 0 && isZeroTail(r) {
				return offset, nil
			}

			return 0, fmt.Errorf("%w: record at offset %d has invalid size %d", core.ErrDecode, offset, recordSize)
		}

		if offset+recordHeaderSize+recordSize > size {
			return offset, nil
		}

		if _, err := io.CopyN(io.Discard, r, recordSize); err != nil {
			return 0, fmt.Errorf("%w: wallet log record: %v", core.ErrDecode, err)
		}

		offset += recordHeaderSize + recordSize
	}

	return offset, nil
}

func isZeroTail(r io.Reader) bool {
	var buffer [4096]byte

	for {
		n, err := r.Read(buffer[:])
		for _, b := range buffer[:n] {
			if b != 0 {
				return false
			}
		}

		if err != nil {
			return errors.Is(err, io.EOF)
		}
	}
}

type Reader struct {
	file   *os.File
	reader *bufio.Reader
	index  int
}

var _ core.LogReader = (*Reader)(nil)

func (r *Reader) readHeader() error {
	var header [len(logMagic) + 1]byte

	n, err := io.ReadFull(r.reader, header[:])
	if n == 0 && errors.Is(err, io.EOF) {
		// created but nothing was written yet
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: wallet log header: %v", core.ErrDecode, err)
	}

	if string(header[:len(logMagic)]) != logMagic {
		return fmt.Errorf("%w: invalid wallet log magic %x", core.ErrDecode, header[:len(logMagic)])
	}

	if header[len(logMagic)] != logVersion {
		return fmt.Errorf("%w: unsupported wallet log version %d", core.ErrDecode, header[len(logMagic)])
	}

	return nil
}

func (r *Reader) Next() (*core.LogEntry, error) {
	var header [recordHeaderSize]byte

	if _, err := io.ReadFull(r.reader, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: record %d header: %v", core.ErrDecode, r.index, err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxRecordSize {
		return nil, fmt.Errorf("%w: record %d has invalid size %d", core.ErrDecode, r.index, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r.reader, data); err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", core.ErrDecode, r.index, err)
	}

	entry, err := decodeLogEntry(data)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.index, err)
	}

	r.index++

	return entry, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}
