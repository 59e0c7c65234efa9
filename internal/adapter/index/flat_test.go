package index

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"studyrag/internal/domain"
)

func randomMatrix(r *rand.Rand, n, dim int) [][]float32 {
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = make([]float32, dim)
		for j := range rows[i] {
			rows[i][j] = r.Float32()*2 - 1
		}
	}
	return rows
}

type bruteResult struct {
	id   int
	dist float32
}

func bruteForce(rows [][]float32, q []float32, k int) []bruteResult {
	all := make([]bruteResult, len(rows))
	for i, row := range rows {
		all[i] = bruteResult{id: i, dist: squaredL2(q, row)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].dist < all[j].dist
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

func TestFlatL2Search(t *testing.T) {
	t.Run("known vectors", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{
			{0, 0},
			{3, 4},
			{1, 0},
			{0, 2},
		}))

		dist, ids, err := idx.Search([]float32{0, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 3}, ids)
		assert.Equal(t, []float32{0, 1, 4}, dist)
	})

	t.Run("matches brute force", func(t *testing.T) {
		r := rand.New(rand.NewSource(7))
		rows := randomMatrix(r, 500, 16)
		idx := NewFlatL2()
		require.NoError(t, idx.Add(rows))

		for trial := 0; trial < 20; trial++ {
			q := randomMatrix(r, 1, 16)[0]
			for _, k := range []int{1, 5, 37} {
				dist, ids, err := idx.Search(q, k)
				require.NoError(t, err)

				want := bruteForce(rows, q, k)
				require.Len(t, ids, k)
				for i := range want {
					assert.Equal(t, want[i].id, ids[i])
					assert.Equal(t, want[i].dist, dist[i])
				}
			}
		}
	})

	t.Run("ties broken by lowest id", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{
			{1, 1},
			{5, 5},
			{1, 1},
			{-1, -1},
			{1, 1},
		}))

		dist, ids, err := idx.Search([]float32{0, 0}, 4)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 3, 4}, ids)
		assert.Equal(t, []float32{2, 2, 2, 2}, dist)

		_, ids, err = idx.Search([]float32{1, 1}, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, ids)
	})

	t.Run("k larger than count is clamped", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{{2}, {0}, {1}}))

		dist, ids, err := idx.Search([]float32{0}, 10)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 0}, ids)
		assert.Equal(t, []float32{0, 1, 4}, dist)
	})

	t.Run("empty index returns nothing", func(t *testing.T) {
		idx := NewFlatL2()
		dist, ids, err := idx.Search([]float32{1, 2, 3}, 3)
		require.NoError(t, err)
		assert.Empty(t, dist)
		assert.Empty(t, ids)
	})

	t.Run("non-positive k is rejected", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{{1}}))
		for _, k := range []int{0, -3} {
			_, _, err := idx.Search([]float32{1}, k)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		}
	})

	t.Run("query dimension must match", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{{1, 2}}))
		_, _, err := idx.Search([]float32{1, 2, 3}, 1)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestFlatL2ParallelMatchesSerial(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	rows := randomMatrix(r, 3*minRowsPerShard+17, 8)
	// duplicate rows across shard boundaries to exercise tie-breaking in the merge
	rows[minRowsPerShard+3] = rows[5]
	rows[2*minRowsPerShard+9] = rows[5]

	serial := NewFlatL2()
	parallel := NewFlatL2(WithWorkers(4))
	require.NoError(t, serial.Add(rows))
	require.NoError(t, parallel.Add(rows))

	queries := append(randomMatrix(r, 10, 8), rows[5])
	for _, q := range queries {
		sd, sids, err := serial.Search(q, 25)
		require.NoError(t, err)
		pd, pids, err := parallel.Search(q, 25)
		require.NoError(t, err)
		assert.Equal(t, sids, pids)
		assert.Equal(t, sd, pd)
	}

	_, ids, err := parallel.Search(rows[5], 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5, minRowsPerShard + 3, 2*minRowsPerShard + 9}, ids)
}

func TestFlatL2Add(t *testing.T) {
	t.Run("first add fixes dimension", func(t *testing.T) {
		idx := NewFlatL2()
		assert.Equal(t, 0, idx.Dimension())
		require.NoError(t, idx.Add([][]float32{{1, 2, 3}}))
		assert.Equal(t, 3, idx.Dimension())
		assert.Equal(t, 1, idx.Count())

		require.NoError(t, idx.Add([][]float32{{4, 5, 6}, {7, 8, 9}}))
		assert.Equal(t, 3, idx.Count())

		row, ok := idx.Row(2)
		require.True(t, ok)
		assert.Equal(t, []float32{7, 8, 9}, row)
	})

	t.Run("mismatched dimension is rejected atomically", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add([][]float32{{1, 2}}))

		err := idx.Add([][]float32{{3, 4}, {5, 6, 7}})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.Equal(t, 1, idx.Count())
	})

	t.Run("mismatch within first batch", func(t *testing.T) {
		idx := NewFlatL2()
		err := idx.Add([][]float32{{1, 2}, {3}})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.Equal(t, 0, idx.Count())
		assert.Equal(t, 0, idx.Dimension())
	})

	t.Run("empty vectors are rejected", func(t *testing.T) {
		idx := NewFlatL2()
		assert.ErrorIs(t, idx.Add([][]float32{{}}), domain.ErrDimensionMismatch)
	})

	t.Run("adding nothing is a no-op", func(t *testing.T) {
		idx := NewFlatL2()
		require.NoError(t, idx.Add(nil))
		assert.Equal(t, 0, idx.Count())
	})

	t.Run("stored rows are copies", func(t *testing.T) {
		idx := NewFlatL2()
		v := []float32{1, 1}
		require.NoError(t, idx.Add([][]float32{v}))
		v[0] = 100

		row, _ := idx.Row(0)
		assert.Equal(t, []float32{1, 1}, row)
	})
}

func TestNewFlatL2FromMatrix(t *testing.T) {
	idx, err := NewFlatL2FromMatrix(2, []float32{0, 0, 1, 1, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())
	assert.Equal(t, 2, idx.Dimension())

	dim, data := idx.Matrix()
	assert.Equal(t, 2, dim)
	assert.Equal(t, []float32{0, 0, 1, 1, 2, 2}, data)

	empty, err := NewFlatL2FromMatrix(384, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count())

	_, err = NewFlatL2FromMatrix(4, []float32{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrInconsistentBundle)
}
