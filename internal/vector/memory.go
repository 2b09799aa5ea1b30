package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kensaku/internal/models"
)

// indexMagic starts every saved index file.
var indexMagic = [4]byte{'K', 'V', 'X', '1'}

// MemoryIndex is an in-memory vector index using brute-force inner product search.
// Entries are keyed by ID; adding an existing ID replaces it.
type MemoryIndex struct {
	dimensions int
	entries    []*Entry
	pos        map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[string]int),
	}, nil
}

// Dimensions returns the vector size.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add inserts or replaces entries. Vectors are copied.
func (m *MemoryIndex) Add(ctx context.Context, entries ...*Entry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", e.ID, len(e.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := *e
		cp.Vector = append([]float32(nil), e.Vector...)
		if i, ok := m.pos[e.ID]; ok {
			m.entries[i] = &cp
			continue
		}
		m.pos[e.ID] = len(m.entries)
		m.entries = append(m.entries, &cp)
	}
	return nil
}

// Search returns the top-k entries by inner product whose metadata matches filter.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter map[string]interface{}) ([]*Match, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	matches := make([]*Match, 0, len(m.entries))
	for _, e := range m.entries {
		if !models.MatchFilter(e.Metadata, filter) {
			continue
		}
		matches = append(matches, &Match{Entry: e, Score: innerProduct(query, e.Vector)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns the entry for id.
func (m *MemoryIndex) Get(id string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.pos[id]
	if !ok {
		return nil, false
	}
	return m.entries[i], true
}

// Remove deletes entries by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids ...string) error {
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !removeSet[e.ID] {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.pos = make(map[string]int, len(kept))
	for i, e := range kept {
		m.pos[e.ID] = i
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save persists the index to path, creating the directory if needed. Format: magic (4),
// dimension (4), n (4), then per entry: idLen (4), id, vector (dimension*4),
// payloadLen (4), payload JSON {"text", "metadata"}. All integers little endian.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

type entryPayload struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (m *MemoryIndex) write(w io.Writer) error {
	if _, err := w.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range m.entries {
		if err := writeBlock(w, []byte(e.ID)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		payload, err := json.Marshal(entryPayload{Text: e.Text, Metadata: e.Metadata})
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", e.ID, err)
		}
		if err := writeBlock(w, payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if magic != indexMagic {
		return fmt.Errorf("not a vector index file: %s", path)
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	entries := make([]*Entry, 0, n)
	pos := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		raw, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var p entryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode payload for %s: %w", id, err)
		}
		pos[string(id)] = len(entries)
		entries = append(entries, &Entry{
			ID:       string(id),
			Vector:   bytesToFloat32Slice(buf),
			Text:     p.Text,
			Metadata: p.Metadata,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.pos = pos
	return nil
}

// maxBlock bounds a single id or payload read from disk.
const maxBlock = 64 << 20

func writeBlock(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxBlock {
		return nil, fmt.Errorf("block of %d bytes exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
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

// innerProduct is cosine similarity for L2-normalized vectors. Mismatched lengths score 0.
func innerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
