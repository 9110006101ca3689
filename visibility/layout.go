package visibility

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// The maximum number of tiles of a layout.
	MaxTiles = 1 << 16

	// The maximum width or height of a frame, in pixels.
	MaxFrameDimension = 1 << 20
)

// Tile is the spatial relationship descriptor of a tile: its offset and size
// in the full frame, in pixels.
type Tile struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Layout describes how an equirectangular frame is split into tiles. Tile
// ids are the indexes in Tiles.
type Layout struct {
	// The number of tiles per row.
	Columns int `json:"columns"`

	// The number of tiles per column.
	Rows int `json:"rows"`

	// The base tile dimensions in pixels.
	TileWidth  int `json:"tile_width"`
	TileHeight int `json:"tile_height"`

	Tiles []Tile `json:"tiles"`
}

// NewGridLayout returns a uniform grid layout with tiles ordered row by row,
// starting from the top left corner.
func NewGridLayout(columns, rows, tileWidth, tileHeight int) Layout {
	l := Layout{
		Columns:    columns,
		Rows:       rows,
		TileWidth:  tileWidth,
		TileHeight: tileHeight,
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			l.Tiles = append(l.Tiles, Tile{
				X:      c * tileWidth,
				Y:      r * tileHeight,
				Width:  tileWidth,
				Height: tileHeight,
			})
		}
	}

	return l
}

// LayoutFromTiles returns a layout where the base tile dimensions are the
// ones of the first tile, as described in manifests where every tile
// declares the same grid divisors.
func LayoutFromTiles(columns, rows int, tiles []Tile) Layout {
	l := Layout{
		Columns: columns,
		Rows:    rows,
		Tiles:   tiles,
	}

	if len(tiles) != 0 {
		l.TileWidth = tiles[0].Width
		l.TileHeight = tiles[0].Height
	}

	return l
}

// FrameSize returns the full frame dimensions in pixels.
func (l Layout) FrameSize() (width, height int) {
	return l.Columns * l.TileWidth, l.Rows * l.TileHeight
}

// Validate returns an error when the layout cannot be used to resolve
// coordinates to tiles.
func (l Layout) Validate() error {
	if len(l.Tiles) == 0 {
		return errors.New("layout has no tiles").
			WithType(ErrTypeInvalidLayout)
	}

	if err := l.ValidateGrid(); err != nil {
		return err
	}

	if len(l.Tiles) > MaxTiles {
		return errors.New("layout has too many tiles").
			WithType(ErrTypeInvalidLayout).
			WithTag("tiles", len(l.Tiles)).
			WithTag("max_tiles", MaxTiles)
	}

	frameWidth, frameHeight := l.FrameSize()
	corners := make(map[Coordinate]int, len(l.Tiles))

	for i, t := range l.Tiles {
		if t.X < 0 || t.Y < 0 || t.Width <= 0 || t.Height <= 0 ||
			t.X > frameWidth || t.Y > frameHeight ||
			t.Width > frameWidth || t.Height > frameHeight ||
			t.X+t.Width > frameWidth || t.Y+t.Height > frameHeight {
			return errors.New("tile is outside of the frame").
				WithType(ErrTypeInvalidLayout).
				WithTag("tile", i).
				WithTag("frame_width", frameWidth).
				WithTag("frame_height", frameHeight)
		}

		corner := l.corner(t)
		if other, ok := corners[corner]; ok {
			return errors.New("tiles share the same corner").
				WithType(ErrTypeInvalidLayout).
				WithTag("tile", i).
				WithTag("other_tile", other)
		}
		corners[corner] = i
	}

	return nil
}

// ValidateGrid returns an error when the grid divisors or the base tile
// dimensions are not positive, or describe more than MaxTiles tiles or a frame
// wider or taller than MaxFrameDimension.
func (l Layout) ValidateGrid() error {
	if l.Columns <= 0 || l.Rows <= 0 {
		return errors.New("layout grid divisors must be positive").
			WithType(ErrTypeInvalidLayout).
			WithTag("columns", l.Columns).
			WithTag("rows", l.Rows)
	}

	if l.TileWidth <= 0 || l.TileHeight <= 0 {
		return errors.New("layout tile dimensions must be positive").
			WithType(ErrTypeInvalidLayout).
			WithTag("tile_width", l.TileWidth).
			WithTag("tile_height", l.TileHeight)
	}

	// Each factor is bounded first so that the products cannot overflow.
	if l.Columns > MaxTiles || l.Rows > MaxTiles || l.Columns*l.Rows > MaxTiles {
		return errors.New("layout grid has too many tiles").
			WithType(ErrTypeInvalidLayout).
			WithTag("columns", l.Columns).
			WithTag("rows", l.Rows).
			WithTag("max_tiles", MaxTiles)
	}

	if l.TileWidth > MaxFrameDimension || l.TileHeight > MaxFrameDimension ||
		l.Columns*l.TileWidth > MaxFrameDimension || l.Rows*l.TileHeight > MaxFrameDimension {
		return errors.New("layout frame is too large").
			WithType(ErrTypeInvalidLayout).
			WithTag("tile_width", l.TileWidth).
			WithTag("tile_height", l.TileHeight).
			WithTag("max_frame_dimension", MaxFrameDimension)
	}

	return nil
}

// Returns the normalized upper corner of the given tile: its offset plus its
// size, divided by the frame size.
func (l Layout) corner(t Tile) Coordinate {
	frameWidth, frameHeight := l.FrameSize()

	return Coordinate{
		X: float64(t.X+t.Width) / float64(frameWidth),
		Y: float64(t.Y+t.Height) / float64(frameHeight),
	}
}
