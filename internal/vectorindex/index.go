// Package vectorindex is a worker-owned arena of dense embedding vectors:
// a single contiguous float32 buffer of capacity*dimension, growing 1.5x
// when full and shrinking when sparse, with a side table mapping chunk ids
// to buffer rows. Similarity search is an exact brute-force dot-product
// scan with deterministic lexicographic tie-breaks and an explicit
// stride-sampling latency budget, rather than an approximate index.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
)

// LatencyBudgetFactor bounds how many rows a reflex query may scan before
// falling back to stride sampling: at most LatencyBudgetFactor*k rows.
const LatencyBudgetFactor = 8

const initialCapacity = 256
const growthFactor = 1.5
const shrinkUtilisation = 0.5

// Hit is a single similarity search result.
type Hit struct {
	ChunkID string
	Path    string
	Score   float32
}

// Index is a worker-owned, non-concurrent-safe vector store. Callers
// (internal/worker) are responsible for serialising mutations and
// snapshotting for concurrent reads.
type Index struct {
	dimension int
	buffer    []float32 // capacity*dimension
	capacity  int
	highWater int // highest allocated row index + 1 (bounds capacity growth)
	active    int // logical row count currently occupied

	rowOf    map[string]int      // chunk id -> row
	idOfRow  map[int]string      // row -> chunk id
	byPath   map[string][]string // path -> chunk ids
	freeRows []int                // reclaimed rows available for reuse

	underUtilisedSaves int // consecutive save cycles below shrinkUtilisation
}

// New creates an empty Index for the given embedding dimension.
func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		rowOf:     make(map[string]int),
		idOfRow:   make(map[int]string),
		byPath:    make(map[string][]string),
	}
}

// Dimension returns the fixed embedding width every vector must satisfy.
func (ix *Index) Dimension() int { return ix.dimension }

// Len returns the logical row count.
func (ix *Index) Len() int { return ix.active }

func (ix *Index) grow(minCapacity int) {
	newCap := ix.capacity
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap < minCapacity {
		newCap = int(math.Ceil(float64(newCap) * growthFactor))
	}
	newBuf := make([]float32, newCap*ix.dimension)
	copy(newBuf, ix.buffer)
	ix.buffer = newBuf
	ix.capacity = newCap
}

func (ix *Index) allocateRow() int {
	ix.active++
	if n := len(ix.freeRows); n > 0 {
		row := ix.freeRows[n-1]
		ix.freeRows = ix.freeRows[:n-1]
		return row
	}
	row := ix.highWater
	if row >= ix.capacity {
		ix.grow(row + 1)
	}
	ix.highWater++
	return row
}

// UpsertChunks replaces every row currently belonging to path with the
// given chunk vectors (keyed "path#index"), before returning. vectors must
// already be L2-normalised.
func (ix *Index) UpsertChunks(path string, chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("chunk id / vector length mismatch: %d vs %d", len(chunkIDs), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != ix.dimension {
			return fmt.Errorf("vector dimension %d != index dimension %d", len(v), ix.dimension)
		}
	}

	ix.deleteDocumentRows(path)

	ids := make([]string, 0, len(chunkIDs))
	for i, id := range chunkIDs {
		row := ix.allocateRow()
		copy(ix.buffer[row*ix.dimension:(row+1)*ix.dimension], vectors[i])
		ix.rowOf[id] = row
		ix.idOfRow[row] = id
		ids = append(ids, id)
	}
	ix.byPath[path] = ids
	return nil
}

// DeleteDocument frees every row belonging to path.
func (ix *Index) DeleteDocument(path string) {
	ix.deleteDocumentRows(path)
	delete(ix.byPath, path)
}

func (ix *Index) deleteDocumentRows(path string) {
	ids, ok := ix.byPath[path]
	if !ok {
		return
	}
	for _, id := range ids {
		row, ok := ix.rowOf[id]
		if !ok {
			continue
		}
		for i := row * ix.dimension; i < (row+1)*ix.dimension; i++ {
			ix.buffer[i] = 0
		}
		delete(ix.rowOf, id)
		delete(ix.idOfRow, row)
		ix.freeRows = append(ix.freeRows, row)
		ix.active--
	}
	delete(ix.byPath, path)
}

// MaybeShrink compacts the buffer and shrinks capacity (dividing by
// growthFactor until utilisation reaches shrinkUtilisation or capacity is
// at most 64) once logical utilisation has stayed below shrinkUtilisation
// for more than one consecutive call (save cycle).
func (ix *Index) MaybeShrink() {
	if ix.capacity == 0 {
		return
	}
	utilisation := float64(ix.active) / float64(ix.capacity)
	if utilisation >= shrinkUtilisation {
		ix.underUtilisedSaves = 0
		return
	}
	ix.underUtilisedSaves++
	if ix.underUtilisedSaves <= 1 {
		return
	}
	ix.underUtilisedSaves = 0
	ix.compactAndShrink()
}

func (ix *Index) compactAndShrink() {
	newCap := ix.capacity
	for newCap > 64 && float64(ix.active)/float64(newCap) < shrinkUtilisation {
		newCap = int(math.Ceil(float64(newCap) / growthFactor))
	}
	if newCap < ix.active {
		newCap = ix.active
	}

	newBuf := make([]float32, newCap*ix.dimension)
	newRowOf := make(map[string]int, ix.active)
	newIDOfRow := make(map[int]string, ix.active)
	row := 0
	for id, oldRow := range ix.rowOf {
		copy(newBuf[row*ix.dimension:(row+1)*ix.dimension], ix.buffer[oldRow*ix.dimension:(oldRow+1)*ix.dimension])
		newRowOf[id] = row
		newIDOfRow[row] = id
		row++
	}
	ix.buffer = newBuf
	ix.capacity = newCap
	ix.highWater = row
	ix.active = row
	ix.rowOf = newRowOf
	ix.idOfRow = newIDOfRow
	ix.freeRows = nil
}

// SimilarSearch returns the top-k most similar rows to queryVec (cosine
// similarity via dot product; vectors are assumed L2-normalised), filtered
// by minScore and optionally restricted to onlyPaths. Ties break by
// ascending chunk-id. Scans at most LatencyBudgetFactor*k rows in reflex
// mode (budgeted=true); beyond that, remaining rows are stride-sampled.
func (ix *Index) SimilarSearch(queryVec []float32, k int, minScore float32, onlyPaths map[string]bool, budgeted bool) ([]Hit, error) {
	if len(queryVec) != ix.dimension {
		return nil, fmt.Errorf("query vector dimension %d != index dimension %d", len(queryVec), ix.dimension)
	}
	if k <= 0 || ix.active == 0 {
		return nil, nil
	}

	rows := ix.rowsToScan(k, budgeted)

	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		id, ok := ix.idOfRow[row]
		if !ok {
			continue
		}
		path := pathOf(id)
		if onlyPaths != nil && !onlyPaths[path] {
			continue
		}
		score := dot(queryVec, ix.buffer[row*ix.dimension:(row+1)*ix.dimension])
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{ChunkID: id, Path: path, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// rowsToScan returns which allocated rows to examine for this query. In
// budgeted mode, only LatencyBudgetFactor*k rows are scanned exhaustively;
// the rest of the index is stride-sampled to keep reflex queries fast.
func (ix *Index) rowsToScan(k int, budgeted bool) []int {
	allocated := make([]int, 0, ix.active)
	for row := range ix.idOfRow {
		allocated = append(allocated, row)
	}
	sort.Ints(allocated)

	if !budgeted {
		return allocated
	}

	budget := LatencyBudgetFactor * k
	if len(allocated) <= budget {
		return allocated
	}

	exhaustive := allocated[:budget]
	remainder := allocated[budget:]
	stride := len(remainder) / budget
	if stride < 1 {
		stride = 1
	}
	var sampled []int
	for i := 0; i < len(remainder); i += stride {
		sampled = append(sampled, remainder[i])
	}
	return append(exhaustive, sampled...)
}

// DocumentVector returns the mean (re-normalised) of path's chunk vectors,
// used as the query vector for similar-to-seed lookups. ok is false if path
// has no rows.
func (ix *Index) DocumentVector(path string) (vec []float32, ok bool) {
	ids, exists := ix.byPath[path]
	if !exists || len(ids) == 0 {
		return nil, false
	}
	mean := make([]float32, ix.dimension)
	for _, id := range ids {
		row, rowOK := ix.rowOf[id]
		if !rowOK {
			continue
		}
		for i := 0; i < ix.dimension; i++ {
			mean[i] += ix.buffer[row*ix.dimension+i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(ids))
	}
	return Normalise(mean), true
}

func pathOf(chunkID string) string {
	for i := len(chunkID) - 1; i >= 0; i-- {
		if chunkID[i] == '#' {
			return chunkID[:i]
		}
	}
	return chunkID
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalise L2-normalises v in place and returns it.
func Normalise(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	mag := math.Sqrt(sumSquares)
	if mag == 0 {
		return v
	}
	for i, x := range v {
		v[i] = float32(float64(x) / mag)
	}
	return v
}
