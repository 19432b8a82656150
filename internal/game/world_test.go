// internal/game/world_test.go
package game

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inSpawnRegion(w, h, x, y int) bool {
	for _, r := range spawnRegions(w, h) {
		if x >= r[0] && x < r[0]+3 && y >= r[1] && y < r[1]+3 {
			return true
		}
	}
	return false
}

func TestBuildWorldTilesInvariants(t *testing.T) {
	w, h := DefaultGridW, DefaultGridH
	tiles := BuildWorldTiles(w, h)
	require.Len(t, tiles, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tile := tiles[y*w+x]
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				assert.Equal(t, TileWall, tile, "border at (%d,%d)", x, y)
				continue
			}
			if inSpawnRegion(w, h, x, y) {
				assert.Equal(t, TileEmpty, tile, "spawn region at (%d,%d)", x, y)
				continue
			}
			if x%2 == 0 && y%2 == 0 {
				assert.Equal(t, TileWall, tile, "pillar at (%d,%d)", x, y)
				continue
			}
			if (x+y)%3 == 0 {
				assert.Equal(t, TileBrick, tile, "brick at (%d,%d)", x, y)
			} else {
				assert.Equal(t, TileEmpty, tile, "floor at (%d,%d)", x, y)
			}
		}
	}
}

func TestWorldHashDeterministic(t *testing.T) {
	w1 := NewWorld(DefaultGridW, DefaultGridH)
	w2 := NewWorld(DefaultGridW, DefaultGridH)
	assert.Equal(t, w1.WorldHash, w2.WorldHash)
	assert.Equal(t, w1.Tiles, w2.Tiles)

	// Cross-check the FNV-1a-32 implementation against the stdlib.
	ref := fnv.New32a()
	buf := make([]byte, len(w1.Tiles))
	for i, tile := range w1.Tiles {
		buf[i] = byte(tile)
	}
	_, _ = ref.Write(buf)
	assert.Equal(t, ref.Sum32(), fnv1a32Bytes(buf))
	assert.Len(t, w1.WorldHash, 8)
}

func TestWorldHashChangesWithTiles(t *testing.T) {
	w := NewWorld(DefaultGridW, DefaultGridH)
	orig := w.WorldHash
	w.SetTile(5, 5, TileEmpty)
	assert.NotEqual(t, orig, HashTiles(w.Tiles))
}

func TestSpawnCornersAreWalkable(t *testing.T) {
	w := NewWorld(DefaultGridW, DefaultGridH)
	for _, c := range SpawnCorners(w.GridW, w.GridH) {
		assert.Equal(t, TileEmpty, w.TileAt(c[0], c[1]), "spawn (%d,%d)", c[0], c[1])
	}
}

func TestTileAtOutOfBounds(t *testing.T) {
	w := NewWorld(DefaultGridW, DefaultGridH)
	assert.Equal(t, TileWall, w.TileAt(-1, 0))
	assert.Equal(t, TileWall, w.TileAt(0, -1))
	assert.Equal(t, TileWall, w.TileAt(w.GridW, 0))
	assert.Equal(t, TileWall, w.TileAt(0, w.GridH))
}
