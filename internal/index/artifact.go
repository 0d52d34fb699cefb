package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pubmedflo/internal/models"
	"pubmedflo/internal/util"
)

const (
	metaFile    = "index_meta.json"
	idsFile     = "index_ids.json"
	vectorsFile = "index_vectors.bin"
)

// Meta describes the embedding population an artifact was built from.
// The manager compares it against the live store to decide staleness.
type Meta struct {
	ModelName    string    `json:"model_name"`
	EmbeddingDim int       `json:"embedding_dim"`
	Metric       Metric    `json:"metric"`
	VectorCount  int       `json:"vector_count"`
	BuiltAt      time.Time `json:"built_at"`
}

// Artifact is an immutable index snapshot. It is built complete, served
// read-only, and replaced whole by the next rebuild.
type Artifact struct {
	Meta Meta
	flat *Flat
}

// Build constructs an artifact from the full embedding set of one model.
// Rows are ordered by chunk id so position assignment is reproducible.
func Build(model string, metric Metric, rows []models.StoredEmbedding) (*Artifact, error) {
	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0].Vector)
	}
	flat, err := NewFlat(metric, dim)
	if err != nil {
		return nil, err
	}

	ordered := make([]models.StoredEmbedding, len(rows))
	copy(ordered, rows)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkID < ordered[j].ChunkID })

	for _, row := range ordered {
		if err := flat.Add(row.ChunkID, row.Vector); err != nil {
			return nil, err
		}
	}
	return &Artifact{
		Meta: Meta{
			ModelName:    model,
			EmbeddingDim: dim,
			Metric:       metric,
			VectorCount:  flat.Len(),
			BuiltAt:      time.Now().UTC(),
		},
		flat: flat,
	}, nil
}

func (a *Artifact) Search(query []float32, k int) ([]Hit, error) {
	return a.flat.Search(query, k)
}

// Save persists the artifact as three sibling files: metadata, the
// position-to-chunk-id list, and the raw vectors as little-endian
// float32. Each file is written atomically.
func (a *Artifact) Save(dir string) error {
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, metaFile), a.Meta); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, idsFile), a.flat.ids); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, vec := range a.flat.vectors {
		for _, v := range vec {
			if err := binary.Write(&buf, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return fmt.Errorf("encode index vectors: %w", err)
			}
		}
	}
	return util.WriteBytesAtomic(filepath.Join(dir, vectorsFile), buf.Bytes())
}

// Load reads a persisted artifact. A directory missing any of the three
// files reports os.ErrNotExist; files that disagree with the metadata
// report ErrIndexCorrupt.
func Load(dir string) (*Artifact, error) {
	var meta Meta
	if err := readJSON(filepath.Join(dir, metaFile), &meta); err != nil {
		return nil, err
	}
	if _, err := ParseMetric(string(meta.Metric)); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrIndexCorrupt, err)
	}

	var ids []int64
	if err := readJSON(filepath.Join(dir, idsFile), &ids); err != nil {
		return nil, err
	}
	if len(ids) != meta.VectorCount {
		return nil, fmt.Errorf("%w: metadata expects %d vectors, id list has %d",
			util.ErrIndexCorrupt, meta.VectorCount, len(ids))
	}

	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, err
	}
	want := meta.VectorCount * meta.EmbeddingDim * 4
	if len(raw) != want {
		return nil, fmt.Errorf("%w: vector file has %d bytes, metadata expects %d",
			util.ErrIndexCorrupt, len(raw), want)
	}

	flat, err := NewFlat(meta.Metric, meta.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrIndexCorrupt, err)
	}
	flat.ids = ids
	flat.vectors = make([][]float32, meta.VectorCount)
	offset := 0
	for i := 0; i < meta.VectorCount; i++ {
		vec := make([]float32, meta.EmbeddingDim)
		for j := range vec {
			bits := binary.LittleEndian.Uint32(raw[offset : offset+4])
			vec[j] = math.Float32frombits(bits)
			offset += 4
		}
		flat.vectors[i] = vec
	}
	return &Artifact{Meta: meta, flat: flat}, nil
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", util.ErrIndexCorrupt, filepath.Base(path), err)
	}
	return nil
}
