package visibility

import (
	"sort"
)

// Coordinate is a normalized equirectangular coordinate in [0, 1]x[0, 1].
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TileLocator resolves equirectangular coordinates to tile ids.
type TileLocator interface {
	// Returns the id of the tile covering c. ok is false when c lies beyond
	// the last tile corner on either axis.
	Locate(c Coordinate) (id int, ok bool)

	// Returns the id of the tile covering c, resolving coordinates beyond the
	// last tile corner to the last tile of the axis.
	LocateClamped(c Coordinate) int
}

// TileIndex is a TileLocator that keeps the tile upper corners as sorted x
// breakpoints, each one pointing to the sorted y breakpoints of the tiles
// ending at that x.
//
// A coordinate resolves to the tile with the smallest x corner greater or
// equal to its x, then within that column, to the smallest y corner greater
// or equal to its y.
type TileIndex struct {
	xs      []float64
	columns []indexColumn
}

type indexColumn struct {
	ys  []float64
	ids []int
}

// NewTileIndex builds the index of the given layout.
func NewTileIndex(l Layout) (*TileIndex, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	byX := make(map[float64]map[float64]int)
	for i, t := range l.Tiles {
		c := l.corner(t)

		column, ok := byX[c.X]
		if !ok {
			column = make(map[float64]int)
			byX[c.X] = column
		}
		column[c.Y] = i
	}

	idx := &TileIndex{
		xs:      make([]float64, 0, len(byX)),
		columns: make([]indexColumn, 0, len(byX)),
	}

	for x := range byX {
		idx.xs = append(idx.xs, x)
	}
	sort.Float64s(idx.xs)

	for _, x := range idx.xs {
		byY := byX[x]

		column := indexColumn{
			ys:  make([]float64, 0, len(byY)),
			ids: make([]int, 0, len(byY)),
		}
		for y := range byY {
			column.ys = append(column.ys, y)
		}
		sort.Float64s(column.ys)

		for _, y := range column.ys {
			column.ids = append(column.ids, byY[y])
		}
		idx.columns = append(idx.columns, column)
	}

	return idx, nil
}

func (idx *TileIndex) Locate(c Coordinate) (int, bool) {
	i := sort.SearchFloat64s(idx.xs, c.X)
	if i == len(idx.xs) {
		return -1, false
	}

	column := idx.columns[i]
	j := sort.SearchFloat64s(column.ys, c.Y)
	if j == len(column.ys) {
		return -1, false
	}

	return column.ids[j], true
}

func (idx *TileIndex) LocateClamped(c Coordinate) int {
	i := sort.SearchFloat64s(idx.xs, c.X)
	if i == len(idx.xs) {
		i--
	}

	column := idx.columns[i]
	j := sort.SearchFloat64s(column.ys, c.Y)
	if j == len(column.ys) {
		j--
	}

	return column.ids[j]
}

// Columns returns the number of distinct x breakpoints.
func (idx *TileIndex) Columns() int {
	return len(idx.xs)
}
