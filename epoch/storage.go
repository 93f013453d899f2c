// Package epoch keeps the per epoch index of immutable block packs.
//
// Layout under the storage root:
//
//	pack/<hex pack hash>    blocks of one epoch, content addressed
//	epoch/<id>/pack         hex encoded hash of the epoch pack
//	epoch/<id>/refpack      slot indexed block hashes of the epoch pack
//
// Every file is published with write to temporary file then rename, so readers never
// observe partially written files.
package epoch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/hashicorp/go-hclog"
)

const (
	packDirName         = "pack"
	epochDirName        = "epoch"
	packPointerFileName = "pack"
	refPackFileName     = "refpack"
	tmpFilePattern      = ".*.tmp"
)

type Storage struct {
	rootDir string
	logger  hclog.Logger
}

func NewStorage(rootDir string, logger hclog.Logger) (*Storage, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	for _, dir := range []string{filepath.Join(rootDir, packDirName), filepath.Join(rootDir, epochDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create storage directory %s: %w", dir, err)
		}
	}

	return &Storage{
		rootDir: rootDir,
		logger:  logger,
	}, nil
}

func (s *Storage) RootDir() string {
	return s.rootDir
}

func (s *Storage) packDir() string {
	return filepath.Join(s.rootDir, packDirName)
}

func (s *Storage) packFilePath(packHash PackHash) string {
	return filepath.Join(s.packDir(), packHash.String())
}

func (s *Storage) epochDir(epochID uint64) string {
	return filepath.Join(s.rootDir, epochDirName, strconv.FormatUint(epochID, 10))
}

func (s *Storage) packPointerFilePath(epochID uint64) string {
	return filepath.Join(s.epochDir(epochID), packPointerFileName)
}

func (s *Storage) refPackFilePath(epochID uint64) string {
	return filepath.Join(s.epochDir(epochID), refPackFileName)
}

// ListEpochs returns ids of epochs that have a pack pointer, in ascending order
func (s *Storage) ListEpochs() ([]uint64, error) {
	entries, err := os.ReadDir(filepath.Join(s.rootDir, epochDirName))
	if err != nil {
		return nil, err
	}

	var result []uint64

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		epochID, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue
		}

		if _, err := os.Stat(s.packPointerFilePath(epochID)); err == nil {
			result = append(result, epochID)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	return result, nil
}

// atomicWrite writes a temporary file next to filePath and renames it into place
func atomicWrite(filePath string, writeFn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(filePath)

	tmpFile, err := os.CreateTemp(dir, filepath.Base(filePath)+tmpFilePattern)
	if err != nil {
		return fmt.Errorf("could not create temporary file in %s: %w", dir, err)
	}

	renamed := false

	defer func() {
		if !renamed {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
		}
	}()

	writer := bufio.NewWriter(tmpFile)

	if err := writeFn(writer); err != nil {
		return err
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("could not write %s: %w", tmpFile.Name(), err)
	}

	if err := commitFile(tmpFile, filePath); err != nil {
		return err
	}

	renamed = true

	return nil
}

// commitFile syncs and closes the temporary file, then renames it to filePath
func commitFile(tmpFile *os.File, filePath string) error {
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("could not sync %s: %w", tmpFile.Name(), err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", tmpFile.Name(), err)
	}

	if err := os.Rename(tmpFile.Name(), filePath); err != nil {
		return fmt.Errorf("could not rename %s to %s: %w", tmpFile.Name(), filePath, err)
	}

	return syncDir(filepath.Dir(filePath))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}
