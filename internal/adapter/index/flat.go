package index

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// minRowsPerShard keeps small indexes on a single goroutine.
const minRowsPerShard = 4096

// FlatL2 is an exact nearest-neighbor index: every query is compared against
// every stored row by squared Euclidean distance. Rows live in one contiguous
// row-major slice; row i is the embedding of chunk i.
type FlatL2 struct {
	mu      sync.RWMutex
	dim     int
	data    []float32
	workers int
}

var _ port.VectorIndex = (*FlatL2)(nil)

// Option configures a FlatL2.
type Option func(*FlatL2)

// WithWorkers splits large scans across n goroutines. n <= 1 scans serially.
func WithWorkers(n int) Option {
	return func(f *FlatL2) {
		f.workers = n
	}
}

// NewFlatL2 creates an empty index. The dimension is fixed by the first Add.
func NewFlatL2(opts ...Option) *FlatL2 {
	f := &FlatL2{workers: 1}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFlatL2FromMatrix wraps an existing row-major matrix without copying it.
func NewFlatL2FromMatrix(dim int, data []float32, opts ...Option) (*FlatL2, error) {
	if len(data) > 0 && (dim <= 0 || len(data)%dim != 0) {
		return nil, fmt.Errorf("%w: %d values do not form rows of dimension %d", domain.ErrInconsistentBundle, len(data), dim)
	}
	f := NewFlatL2(opts...)
	if len(data) > 0 {
		f.dim = dim
		f.data = data
	}
	return f, nil
}

// Add appends rows. Either every row is added or none is.
func (f *FlatL2) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return domain.NewStageError("index.add", "row 0", fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch))
	}

	for i, v := range vectors {
		if len(v) != dim {
			return domain.NewStageError("index.add", fmt.Sprintf("row %d", f.count()+i),
				fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(v)))
		}
	}

	f.dim = dim
	if cap(f.data)-len(f.data) < len(vectors)*dim {
		grown := make([]float32, len(f.data), len(f.data)+len(vectors)*dim)
		copy(grown, f.data)
		f.data = grown
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search returns the min(k, Count()) nearest rows, ascending by distance,
// equal distances ordered by lower row id.
func (f *FlatL2) Search(query []float32, k int) ([]float32, []int, error) {
	if k <= 0 {
		return nil, nil, domain.NewStageError("index.search", fmt.Sprintf("k=%d", k),
			fmt.Errorf("%w: k must be positive", domain.ErrInvalidArgument))
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.count()
	if n == 0 {
		return []float32{}, []int{}, nil
	}
	if len(query) != f.dim {
		return nil, nil, domain.NewStageError("index.search", "query",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, f.dim, len(query)))
	}
	if k > n {
		k = n
	}

	var best []neighbor
	shards := f.shardCount(n)
	if shards <= 1 {
		best = f.scan(query, 0, n, k)
	} else {
		best = f.scanParallel(query, n, k, shards)
	}

	distances := make([]float32, len(best))
	ids := make([]int, len(best))
	for i, nb := range best {
		distances[i] = nb.dist
		ids[i] = nb.id
	}
	return distances, ids, nil
}

// Count returns the number of stored rows.
func (f *FlatL2) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count()
}

// Dimension returns the established row dimension, 0 while the index is empty.
func (f *FlatL2) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Row returns a copy of row id.
func (f *FlatL2) Row(id int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id < 0 || id >= f.count() {
		return nil, false
	}
	row := make([]float32, f.dim)
	copy(row, f.data[id*f.dim:(id+1)*f.dim])
	return row, true
}

// Matrix returns the dimension and a copy of the row-major data.
func (f *FlatL2) Matrix() (int, []float32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data := make([]float32, len(f.data))
	copy(data, f.data)
	return f.dim, data
}

func (f *FlatL2) count() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

func (f *FlatL2) shardCount(n int) int {
	if f.workers <= 1 {
		return 1
	}
	shards := n / minRowsPerShard
	if shards > f.workers {
		shards = f.workers
	}
	return shards
}

func (f *FlatL2) scanParallel(query []float32, n, k, shards int) []neighbor {
	partial := make([][]neighbor, shards)
	per := (n + shards - 1) / shards

	var g errgroup.Group
	for s := 0; s < shards; s++ {
		lo := s * per
		hi := lo + per
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			partial[s] = f.scan(query, lo, hi, k)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]neighbor, 0, shards*k)
	for _, p := range partial {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].closerThan(merged[j])
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// scan keeps the k best rows in [lo, hi) in a bounded max-heap and returns
// them sorted nearest first.
func (f *FlatL2) scan(query []float32, lo, hi, k int) []neighbor {
	h := make(neighborHeap, 0, k)
	for id := lo; id < hi; id++ {
		row := f.data[id*f.dim : (id+1)*f.dim]
		cand := neighbor{id: id, dist: squaredL2(query, row)}

		if len(h) < k {
			heap.Push(&h, cand)
			continue
		}
		if cand.closerThan(h[0]) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}

	out := make([]neighbor, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(neighbor)
	}
	return out
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type neighbor struct {
	id   int
	dist float32
}

func (n neighbor) closerThan(o neighbor) bool {
	if n.dist != o.dist {
		return n.dist < o.dist
	}
	return n.id < o.id
}

// neighborHeap is a max-heap: the root is the worst neighbor kept so far.
type neighborHeap []neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return h[j].closerThan(h[i]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighborHeap) Push(x any) { *h = append(*h, x.(neighbor)) }

func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
