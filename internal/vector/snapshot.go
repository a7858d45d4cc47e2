package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/guilhermexp/kasane/internal/models"
)

// Snapshot format: magic, version, model name, dimensions, count, then
// per vector: path length, path bytes, dimensions*4 bytes little-endian
// float32. The model header is what lets Load refuse vectors produced
// by a different backend.
var snapshotMagic = []byte("KSNV")

const snapshotVersion uint32 = 1

// Save persists the index to path, creating parent directories as needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	w := bufio.NewWriter(f)

	write := func(v interface{}) error { return binary.Write(w, binary.LittleEndian, v) }
	if _, err := w.Write(snapshotMagic); err != nil {
		return closeAndErr(f, tmp, err)
	}
	if err := write(snapshotVersion); err != nil {
		return closeAndErr(f, tmp, err)
	}
	if err := writeString(w, m.model); err != nil {
		return closeAndErr(f, tmp, err)
	}
	if err := write(uint32(m.dimensions)); err != nil {
		return closeAndErr(f, tmp, err)
	}
	if err := write(uint32(len(m.vectors))); err != nil {
		return closeAndErr(f, tmp, err)
	}
	for path, rec := range m.vectors {
		if err := writeString(w, path); err != nil {
			return closeAndErr(f, tmp, err)
		}
		for _, v := range rec.vec {
			if err := write(math.Float32bits(v)); err != nil {
				return closeAndErr(f, tmp, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return closeAndErr(f, tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	// Rename so readers never observe a half-written snapshot.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a persisted index from path. A missing file yields
// an empty index. If the snapshot was produced by a different model or
// dimensionality than configured, a *models.StaleEmbeddingModelError is
// returned together with the empty index so lexical search can proceed
// while regeneration runs.
func LoadSnapshot(path, model string, dimensions int) (*MemoryIndex, error) {
	idx, err := NewMemoryIndex(model, dimensions)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return idx, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read snapshot magic: %w", err)
	}
	if string(magic) != string(snapshotMagic) {
		return nil, fmt.Errorf("not a vector snapshot: %s", path)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read snapshot version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	fileModel, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot model: %w", err)
	}
	var fileDims, count uint32
	if err := binary.Read(r, binary.LittleEndian, &fileDims); err != nil {
		return nil, fmt.Errorf("read snapshot dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read snapshot count: %w", err)
	}

	if fileModel != model || int(fileDims) != dimensions {
		return idx, &models.StaleEmbeddingModelError{
			IndexedModel:    fileModel,
			IndexedDims:     int(fileDims),
			ConfiguredModel: model,
			ConfiguredDims:  dimensions,
		}
	}

	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < count; i++ {
		entryPath, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read snapshot entry: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read snapshot vector: %w", err)
		}
		vec := make([]float32, dimensions)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4 : (j+1)*4]))
		}
		if err := idx.Upsert(entryPath, vec); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func closeAndErr(f *os.File, tmp string, err error) error {
	_ = f.Close()
	_ = os.Remove(tmp)
	return fmt.Errorf("write snapshot: %w", err)
}
