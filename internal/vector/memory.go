package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	fileMagic   = "KVEC"
	fileVersion = uint32(1)
)

// ErrBadFormat is returned by Load when the file is not a vector index written by Save.
var ErrBadFormat = errors.New("not a vector index file")

// MemoryIndex is a brute-force cosine index. Vectors are L2-normalized on insert so that
// search is a plain inner product. Entries keep insertion order, which is also the
// tie-break order for equal scores, so a saved and reloaded index returns the same results.
type MemoryIndex struct {
	dimensions int
	label      string
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// SetLabel stamps the index with an opaque label that is persisted by Save.
func (m *MemoryIndex) SetLabel(label string) {
	m.mu.Lock()
	m.label = label
	m.mu.Unlock()
}

// Label returns the label set by SetLabel or read by Load.
func (m *MemoryIndex) Label() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.label
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Add appends vectors with the given IDs. Either all vectors are added or none.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := make([][]float32, len(vectors))
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		utils.NormalizeL2(vec)
		normalized[i] = vec
	}
	m.ids = append(m.ids, ids...)
	m.vectors = append(m.vectors, normalized...)
	return nil
}

// Search returns up to k hits ordered by descending cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if dims := m.Dimensions(); len(query) != dims {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), dims)
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = scored{pos: i, score: InnerProduct(q, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		result[i] = &VectorResult{ID: m.ids[scores[i].pos], Score: scores[i].score}
	}
	return result, nil
}

// Save writes the index to path. Format, little endian: magic "KVEC", version (4),
// labelLen (4), label, dimension (4), n (4), then per vector: idLen (4), id bytes,
// vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeTo(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	return f.Close()
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []uint32{fileVersion, uint32(len(m.label))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.WriteString(w, m.label); err != nil {
		return fmt.Errorf("write label: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, []uint32{uint32(m.dimensions), uint32(len(m.ids))}); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with the file at path, adopting its dimension and label.
// The index is unchanged when Load fails.
func (m *MemoryIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	loaded, err := readIndex(bufio.NewReader(f), info.Size())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = loaded.dimensions
	m.label = loaded.label
	m.ids = loaded.ids
	m.vectors = loaded.vectors
	return nil
}

// LoadMemoryIndex reads an index written by Save.
func LoadMemoryIndex(path string) (*MemoryIndex, error) {
	m := &MemoryIndex{}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// readIndex decodes a file of size bytes. Every length in the header is checked against
// the bytes still unread before anything is allocated.
func readIndex(r io.Reader, size int64) (*MemoryIndex, error) {
	remaining := size
	take := func(n uint64) bool {
		if n > uint64(remaining) {
			return false
		}
		remaining -= int64(n)
		return true
	}

	magic := make([]byte, len(fileMagic))
	if !take(uint64(len(fileMagic))) {
		return nil, ErrBadFormat
	}
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, ErrBadFormat
	}
	var version, labelLen uint32
	if !take(8) {
		return nil, fmt.Errorf("%w: truncated header", ErrBadFormat)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported vector index version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
		return nil, fmt.Errorf("read label len: %w", err)
	}
	if !take(uint64(labelLen)) {
		return nil, fmt.Errorf("%w: label length %d exceeds file", ErrBadFormat, labelLen)
	}
	label := make([]byte, labelLen)
	if _, err := io.ReadFull(r, label); err != nil {
		return nil, fmt.Errorf("read label: %w", err)
	}
	var dim, n uint32
	if !take(8) {
		return nil, fmt.Errorf("%w: truncated header", ErrBadFormat)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrBadFormat)
	}
	vecBytes := uint64(dim) * 4
	if vecBytes > uint64(remaining) {
		return nil, fmt.Errorf("%w: dimension %d exceeds file", ErrBadFormat, dim)
	}
	// Each entry needs at least its id length word and its vector.
	if uint64(n)*(4+vecBytes) > uint64(remaining) {
		return nil, fmt.Errorf("%w: count %d exceeds file", ErrBadFormat, n)
	}

	m := &MemoryIndex{
		dimensions: int(dim),
		label:      string(label),
		ids:        make([]string, 0, n),
		vectors:    make([][]float32, 0, n),
	}
	buf := make([]byte, vecBytes)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if !take(4) {
			return nil, fmt.Errorf("%w: truncated entry", ErrBadFormat)
		}
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("read id len: %w", err)
		}
		if !take(uint64(idLen) + vecBytes) {
			return nil, fmt.Errorf("%w: id length %d exceeds file", ErrBadFormat, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		m.ids = append(m.ids, string(idBytes))
		m.vectors = append(m.vectors, bytesToFloat32Slice(buf))
	}
	return m, nil
}

// IDs returns the stored chunk IDs in insertion order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ids...)
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
