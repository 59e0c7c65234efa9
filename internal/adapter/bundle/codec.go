package bundle

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"studyrag/internal/adapter/index"
	"studyrag/internal/domain"
)

// wireBundle is the gob payload. Vectors is the row-major embedding matrix.
type wireBundle struct {
	FormatVersion int
	BuildID       string
	CreatedAt     time.Time
	ModelName     string
	Chunking      domain.ChunkConfig
	Dimension     int
	Chunks        []string
	Vectors       []float32
}

// Encode writes b to w.
func Encode(w io.Writer, b *Bundle) error {
	dim, vectors := b.index.Matrix()
	texts := make([]string, len(b.chunks))
	for i, c := range b.chunks {
		texts[i] = c.Text
	}

	wire := wireBundle{
		FormatVersion: FormatVersion,
		BuildID:       b.manifest.BuildID,
		CreatedAt:     b.manifest.CreatedAt,
		ModelName:     b.manifest.ModelName,
		Chunking:      b.manifest.Chunking,
		Dimension:     dim,
		Chunks:        texts,
		Vectors:       vectors,
	}
	if err := gob.NewEncoder(w).Encode(&wire); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return nil
}

// Decode reads a bundle written by Encode. The index is rebuilt directly from
// the stored matrix; nothing is re-embedded.
func Decode(r io.Reader, opts ...index.Option) (*Bundle, error) {
	var wire wireBundle
	if err := gob.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}

	if wire.FormatVersion != FormatVersion {
		return nil, domain.NewStageError("bundle.load", fmt.Sprintf("format_version=%d", wire.FormatVersion),
			fmt.Errorf("%w: unsupported format version, expected %d", domain.ErrInconsistentBundle, FormatVersion))
	}
	if wire.ModelName == "" {
		return nil, domain.NewStageError("bundle.load", "model_name", fmt.Errorf("%w: missing model name", domain.ErrInconsistentBundle))
	}
	if len(wire.Chunks) > 0 && wire.Dimension <= 0 {
		return nil, domain.NewStageError("bundle.load", fmt.Sprintf("dimension=%d", wire.Dimension),
			fmt.Errorf("%w: non-empty bundle without dimension", domain.ErrInconsistentBundle))
	}
	if len(wire.Vectors) != len(wire.Chunks)*wire.Dimension {
		return nil, domain.NewStageError("bundle.load", fmt.Sprintf("%d chunks, %d values, dimension %d", len(wire.Chunks), len(wire.Vectors), wire.Dimension),
			fmt.Errorf("%w: matrix does not match chunk count", domain.ErrInconsistentBundle))
	}

	idx, err := index.NewFlatL2FromMatrix(wire.Dimension, wire.Vectors, opts...)
	if err != nil {
		return nil, domain.NewStageError("bundle.load", "vectors", err)
	}

	chunks := make([]domain.Chunk, len(wire.Chunks))
	for i, text := range wire.Chunks {
		chunks[i] = domain.Chunk{Index: i, Text: text}
	}

	return &Bundle{
		manifest: Manifest{
			FormatVersion: wire.FormatVersion,
			BuildID:       wire.BuildID,
			CreatedAt:     wire.CreatedAt,
			ModelName:     wire.ModelName,
			Dimension:     idx.Dimension(),
			ChunkCount:    len(chunks),
			Chunking:      wire.Chunking,
		},
		chunks: chunks,
		index:  idx,
	}, nil
}

// Marshal returns the serialized form of b.
func Marshal(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte, opts ...index.Option) (*Bundle, error) {
	return Decode(bytes.NewReader(data), opts...)
}

// Save writes b to path. The bundle is written to a temporary file in the
// same directory and renamed into place, so readers see either the previous
// file or the complete new one.
func Save(path string, b *Bundle) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary bundle file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = Encode(w, b); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync bundle: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to publish bundle: %w", err)
	}
	return nil
}

// Open loads the bundle stored at path.
func Open(path string, opts ...index.Option) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	b, err := Decode(bufio.NewReader(f), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return b, nil
}
