// internal/game/world.go
package game

import "fmt"

// Tile values.
const (
	TileEmpty = 0
	TileWall  = 1
	TileBrick = 2
)

// Default world dimensions.
const (
	DefaultGridW = 27
	DefaultGridH = 14
)

// World is the static tile grid of a match. Tiles are row-major,
// len(Tiles) == GridW*GridH.
type World struct {
	GridW     int    `json:"gridW"`
	GridH     int    `json:"gridH"`
	Tiles     []int  `json:"tiles"`
	WorldHash string `json:"worldHash"`
}

// FNV-1a 32-bit parameters. Used for world hashing and the enemy RNG so
// reruns with identical inputs are bit-identical.
const (
	fnvOffsetBasis uint32 = 0x811C9DC5
	fnvPrime       uint32 = 0x01000193
)

func fnv1a32Bytes(data []byte) uint32 {
	h := fnvOffsetBasis
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

// fnv1a32String hashes a string with FNV-1a-32.
func fnv1a32String(s string) uint32 {
	return fnv1a32Bytes([]byte(s))
}

// HashTiles computes the hex-encoded FNV-1a-32 over the tile bytes.
func HashTiles(tiles []int) string {
	buf := make([]byte, len(tiles))
	for i, t := range tiles {
		buf[i] = byte(t)
	}
	return fmt.Sprintf("%08x", fnv1a32Bytes(buf))
}

// BuildWorldTiles generates the deterministic tile layout: hard walls on the
// outer border and at even-even pillar positions, bricks on interior cells
// where (x+y)%3==0, and a cleared 3x3 spawn region in each corner. The
// corner clearing wins over the pillar rule so spawns stay safe.
func BuildWorldTiles(w, h int) []int {
	tiles := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			switch {
			case x == 0 || y == 0 || x == w-1 || y == h-1:
				tiles[i] = TileWall
			case x%2 == 0 && y%2 == 0:
				tiles[i] = TileWall
			case (x+y)%3 == 0:
				tiles[i] = TileBrick
			default:
				tiles[i] = TileEmpty
			}
		}
	}
	for _, region := range spawnRegions(w, h) {
		for dy := 0; dy < 3; dy++ {
			for dx := 0; dx < 3; dx++ {
				x, y := region[0]+dx, region[1]+dy
				if x > 0 && y > 0 && x < w-1 && y < h-1 {
					tiles[y*w+x] = TileEmpty
				}
			}
		}
	}
	return tiles
}

// spawnRegions returns the top-left cell of each 3x3 spawn-safe region in
// slot order: top-left, top-right, bottom-left, bottom-right.
func spawnRegions(w, h int) [4][2]int {
	return [4][2]int{
		{1, 1},
		{w - 4, 1},
		{1, h - 4},
		{w - 4, h - 4},
	}
}

// SpawnCorners returns the four spawn cells in slot order: top-left,
// top-right, bottom-left, bottom-right.
func SpawnCorners(w, h int) [4][2]int {
	return [4][2]int{
		{1, 1},
		{w - 2, 1},
		{1, h - 2},
		{w - 2, h - 2},
	}
}

// NewWorld builds a world with its deterministic hash.
func NewWorld(w, h int) *World {
	tiles := BuildWorldTiles(w, h)
	return &World{
		GridW:     w,
		GridH:     h,
		Tiles:     tiles,
		WorldHash: HashTiles(tiles),
	}
}

// TileAt returns the tile value at (x, y), or TileWall out of bounds.
func (w *World) TileAt(x, y int) int {
	if x < 0 || y < 0 || x >= w.GridW || y >= w.GridH {
		return TileWall
	}
	return w.Tiles[y*w.GridW+x]
}

// SetTile overwrites the tile at (x, y). Out-of-bounds writes are ignored.
func (w *World) SetTile(x, y, tile int) {
	if x < 0 || y < 0 || x >= w.GridW || y >= w.GridH {
		return
	}
	w.Tiles[y*w.GridW+x] = tile
}
