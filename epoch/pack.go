package epoch

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"os"

	"github.com/igorcrevar/cardano-go-wallet/core"
	"golang.org/x/crypto/blake2b"
)

const (
	packMagic         = "PACK"
	packVersion       = byte(1)
	packRecordHdrSize = 6
	maxPackBlockSize  = 64 * 1024 * 1024
)

// PackHash is the blake2b-256 hash of the whole pack file
type PackHash [core.HashSize]byte

func NewPackHashFromHex(str string) (PackHash, error) {
	var ph PackHash

	data, err := hex.DecodeString(str)
	if err != nil {
		return ph, fmt.Errorf("%w: %v", core.ErrDecode, err)
	}

	if len(data) != len(ph) {
		return ph, fmt.Errorf("%w: pack hash has %d bytes, expected %d", core.ErrDecode, len(data), len(ph))
	}

	copy(ph[:], data)

	return ph, nil
}

func (ph PackHash) String() string {
	return hex.EncodeToString(ph[:])
}

func newPackHasher() hash.Hash {
	// error only possible for keys longer than 64 bytes
	hasher, _ := blake2b.New256(nil)

	return hasher
}

// PackWriter writes blocks into a temporary pack file. Finalize publishes the pack
// under its content hash.
type PackWriter struct {
	storage *Storage
	file    *os.File
	writer  *bufio.Writer
	hasher  hash.Hash
	out     io.Writer
	count   int
	closed  bool
}

func (s *Storage) NewPackWriter() (*PackWriter, error) {
	file, err := os.CreateTemp(s.packDir(), "pack"+tmpFilePattern)
	if err != nil {
		return nil, fmt.Errorf("could not create pack file: %w", err)
	}

	pw := &PackWriter{
		storage: s,
		file:    file,
		writer:  bufio.NewWriter(file),
		hasher:  newPackHasher(),
	}
	pw.out = io.MultiWriter(pw.writer, pw.hasher)

	if _, err := pw.out.Write(append([]byte(packMagic), packVersion)); err != nil {
		pw.Abort()

		return nil, fmt.Errorf("could not write pack header: %w", err)
	}

	return pw, nil
}

func (pw *PackWriter) Append(raw *core.RawBlock) error {
	if pw.closed {
		return errors.New("pack writer is closed")
	}

	if raw.Type > math.MaxUint16 || len(raw.Cbor) > maxPackBlockSize {
		return fmt.Errorf("block can not be stored in pack: type = %d, size = %d", raw.Type, len(raw.Cbor))
	}

	var header [packRecordHdrSize]byte

	binary.BigEndian.PutUint16(header[:2], uint16(raw.Type))
	binary.BigEndian.PutUint32(header[2:], uint32(len(raw.Cbor)))

	if _, err := pw.out.Write(header[:]); err != nil {
		return err
	}

	if _, err := pw.out.Write(raw.Cbor); err != nil {
		return err
	}

	pw.count++

	return nil
}

func (pw *PackWriter) Count() int {
	return pw.count
}

func (pw *PackWriter) Finalize() (PackHash, error) {
	var packHash PackHash

	if pw.closed {
		return packHash, errors.New("pack writer is closed")
	}

	pw.closed = true

	if err := pw.writer.Flush(); err != nil {
		pw.removeTmp()

		return packHash, fmt.Errorf("could not write pack: %w", err)
	}

	copy(packHash[:], pw.hasher.Sum(nil))

	if err := commitFile(pw.file, pw.storage.packFilePath(packHash)); err != nil {
		pw.removeTmp()

		return packHash, err
	}

	return packHash, nil
}

func (pw *PackWriter) Abort() {
	if pw.closed {
		return
	}

	pw.closed = true
	pw.removeTmp()
}

func (pw *PackWriter) removeTmp() {
	pw.file.Close()
	os.Remove(pw.file.Name())
}

// PackReader reads blocks of a pack in order and recomputes the pack hash
type PackReader struct {
	file   *os.File
	reader io.Reader
	hasher hash.Hash
}

func (s *Storage) OpenPack(packHash PackHash) (*PackReader, error) {
	file, err := os.Open(s.packFilePath(packHash))
	if err != nil {
		return nil, err
	}

	pr := &PackReader{
		file:   file,
		hasher: newPackHasher(),
	}
	pr.reader = io.TeeReader(bufio.NewReader(file), pr.hasher)

	var header [len(packMagic) + 1]byte
	if _, err := io.ReadFull(pr.reader, header[:]); err != nil {
		file.Close()

		return nil, fmt.Errorf("%w: pack header: %v", core.ErrDecode, err)
	}

	if string(header[:len(packMagic)]) != packMagic || header[len(packMagic)] != packVersion {
		file.Close()

		return nil, fmt.Errorf("%w: invalid pack header %x", core.ErrDecode, header)
	}

	return pr, nil
}

// verifyPack hashes the pack file and compares it with the hash it is stored under
func (s *Storage) verifyPack(packHash PackHash) error {
	file, err := os.Open(s.packFilePath(packHash))
	if err != nil {
		return err
	}
	defer file.Close()

	hasher := newPackHasher()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("could not read pack %s: %w", packHash, err)
	}

	var got PackHash

	copy(got[:], hasher.Sum(nil))

	if got != packHash {
		return errors.Join(core.ErrIntegrityMismatch, fmt.Errorf("expected pack %s, got %s", packHash, got))
	}

	return nil
}

// Next returns nil block at the end of the pack
func (pr *PackReader) Next() (*core.RawBlock, error) {
	var header [packRecordHdrSize]byte

	if _, err := io.ReadFull(pr.reader, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: pack record header: %v", core.ErrDecode, err)
	}

	size := binary.BigEndian.Uint32(header[2:])
	if size > maxPackBlockSize {
		return nil, fmt.Errorf("%w: pack record too big: %d", core.ErrDecode, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(pr.reader, data); err != nil {
		return nil, fmt.Errorf("%w: pack record: %v", core.ErrDecode, err)
	}

	return &core.RawBlock{
		Type: uint(binary.BigEndian.Uint16(header[:2])),
		Cbor: data,
	}, nil
}

// Finalize consumes the rest of the pack and returns its hash
func (pr *PackReader) Finalize() (PackHash, error) {
	var packHash PackHash

	if _, err := io.Copy(io.Discard, pr.reader); err != nil {
		return packHash, err
	}

	copy(packHash[:], pr.hasher.Sum(nil))

	return packHash, nil
}

func (pr *PackReader) Close() error {
	return pr.file.Close()
}
