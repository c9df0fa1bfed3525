// Package backup keeps snappy-compressed copies of a document taken before
// it is overwritten.
//
// A backup file is named <source>.<UTC timestamp>.bak.sz and laid out as
//
//	[magic:4][version:1][timestamp:8][rawLen:4][crc32:4][snappy block:N]
//
// with big-endian integers. The checksum covers the uncompressed bytes, so
// Restore refuses a damaged backup instead of writing garbage.
package backup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

const (
	// Suffix ends every backup file name.
	Suffix = ".bak.sz"

	timeLayout = "20060102T150405.000Z"
	version    = 1
	headerSize = 4 + 1 + 8 + 4 + 4
)

var magic = [4]byte{'F', 'P', 'B', 'K'}

var (
	// ErrCorrupt means a backup failed its header or checksum checks.
	ErrCorrupt = errors.New("backup is corrupt")
	// ErrNoSource means the file to back up does not exist yet.
	ErrNoSource = errors.New("nothing to back up")
)

// Info describes one backup file.
type Info struct {
	Path    string
	Created time.Time
	// RawSize and Size are the uncompressed and on-disk sizes in bytes.
	RawSize int64
	Size    int64
}

// Ratio returns on-disk size over raw size, e.g. 0.25 for 4x compression.
func (i Info) Ratio() float64 {
	if i.RawSize == 0 {
		return 0
	}
	return float64(i.Size) / float64(i.RawSize)
}

// Write backs up the file at source. It returns ErrNoSource when source does
// not exist, which callers writing a new file can ignore.
func Write(source string, now time.Time) (*Info, error) {
	data, err := os.ReadFile(source)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSource
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	now = now.UTC()
	path := source + "." + now.Format(timeLayout) + Suffix
	frame := encode(data, now)

	// O_EXCL so two runs in the same millisecond never clobber each other.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	if _, err := f.Write(frame); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write backup: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sync backup: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close backup: %w", err)
	}

	return &Info{
		Path:    path,
		Created: now.Truncate(time.Millisecond),
		RawSize: int64(len(data)),
		Size:    int64(len(frame)),
	}, nil
}

// Read decodes the backup at path and returns the original bytes.
func Read(path string) ([]byte, *Info, error) {
	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read backup: %w", err)
	}
	data, created, err := decode(frame)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, &Info{
		Path:    path,
		Created: created,
		RawSize: int64(len(data)),
		Size:    int64(len(frame)),
	}, nil
}

// Restore writes the contents of the backup at path to out. The restored
// bytes must parse as a workflow document; out is replaced atomically.
func Restore(path, out string) (*Info, error) {
	data, info, err := Read(path)
	if err != nil {
		return nil, err
	}
	if _, err := workflow.Parse(data); err != nil {
		return nil, fmt.Errorf("restore %s: %w", path, err)
	}
	if err := workflow.WriteFile(out, data); err != nil {
		return nil, err
	}
	return info, nil
}

// List returns the backups of source, oldest first.
func List(source string) ([]string, error) {
	matches, err := filepath.Glob(globEscape(source) + ".*" + Suffix)
	if err != nil {
		return nil, err
	}
	prefix := source + "."
	out := matches[:0]
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(m, prefix), Suffix)
		if _, err := time.Parse(timeLayout, stamp); err == nil {
			out = append(out, m)
		}
	}
	// The timestamp layout sorts lexically.
	sort.Strings(out)
	return out, nil
}

// Prune deletes all but the newest keep backups of source and returns the
// removed paths. keep <= 0 disables pruning.
func Prune(source string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	paths, err := List(source)
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	stale := paths[:len(paths)-keep]
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("prune backup: %w", err)
		}
	}
	return stale, nil
}

func encode(data []byte, created time.Time) []byte {
	compressed := snappy.Encode(nil, data)

	frame := make([]byte, 0, headerSize+len(compressed))
	frame = append(frame, magic[:]...)
	frame = append(frame, version)
	frame = binary.BigEndian.AppendUint64(frame, uint64(created.UnixMilli()))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(data)))
	frame = binary.BigEndian.AppendUint32(frame, crc32.ChecksumIEEE(data))
	return append(frame, compressed...)
}

func decode(frame []byte) ([]byte, time.Time, error) {
	if len(frame) < headerSize || !bytes.Equal(frame[:4], magic[:]) {
		return nil, time.Time{}, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if frame[4] != version {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, frame[4])
	}
	created := time.UnixMilli(int64(binary.BigEndian.Uint64(frame[5:13]))).UTC()
	rawLen := binary.BigEndian.Uint32(frame[13:17])
	checksum := binary.BigEndian.Uint32(frame[17:21])

	data, err := snappy.Decode(nil, frame[headerSize:])
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(len(data)) != rawLen {
		return nil, time.Time{}, fmt.Errorf("%w: length %d, want %d", ErrCorrupt, len(data), rawLen)
	}
	if crc32.ChecksumIEEE(data) != checksum {
		return nil, time.Time{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return data, created, nil
}

// globEscape quotes glob metacharacters in a literal path.
func globEscape(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
