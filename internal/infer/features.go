package infer

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/weiqilab/katacore/internal/board"
)

// Plane and global layout for the KataGo-style 22-plane/19-global schema.
const (
	Planes  = 22
	Globals = 19

	planePlayer    = 1
	planeOpponent  = 2
	planeLib1      = 3
	planeLib2      = 4
	planeLib3      = 5
	planeKo        = 6
	planeHistStart = 9 // planes 9..13, one per history ply (1..5 back)
)

// SpatialSize returns the element count of one spatial feature tensor for
// the given board size (22 planes of boardSize² each).
func SpatialSize(boardSize int) int { return Planes * boardSize * boardSize }

// Featurize fills spatial and global with the dense input tensors for pos,
// at the given batch offset (in tensor elements, not batch index), per the
// 22-plane/19-global schema. spatial and global must be large enough to
// hold one item starting at their respective offsets.
func Featurize(pos *board.Position, spatial, global []float32, spatialOffset, globalOffset int) {
	n := pos.Size
	planeSize := n * n
	sp := spatial[spatialOffset : spatialOffset+Planes*planeSize]
	gl := global[globalOffset : globalOffset+Globals]

	for i := range sp {
		sp[i] = 0
	}
	for i := range gl {
		gl[i] = 0
	}

	me := pos.NextToPlay
	opp := me.Opponent()

	// Plane 0: constant 1.
	for i := 0; i < planeSize; i++ {
		sp[i] = 1
	}

	liberties := pos.GroupLiberties()

	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			idx := row*n + col
			switch pos.Grid[idx] {
			case me:
				sp[planePlayer*planeSize+idx] = 1
			case opp:
				sp[planeOpponent*planeSize+idx] = 1
			}
			if pos.Grid[idx] != board.Empty {
				switch liberties[idx] {
				case 1:
					sp[planeLib1*planeSize+idx] = 1
				case 2:
					sp[planeLib2*planeSize+idx] = 1
				case 3:
					sp[planeLib3*planeSize+idx] = 1
				}
			}
		}
	}

	if pos.Ko != nil && pos.Ko.ForbiddenSide == me {
		kv := pos.Ko.Vertex
		if kv.Col >= 0 && kv.Row >= 0 && kv.Col < n && kv.Row < n {
			sp[planeKo*planeSize+kv.Row*n+kv.Col] = 1
		}
	}

	last5 := pos.LastN(5)
	for i, c := range last5 {
		if c.IsPass() {
			continue
		}
		// last5 is oldest first; the most recent move goes to plane 9.
		sp[(planeHistStart+len(last5)-1-i)*planeSize+c.Row*n+c.Col] = 1
	}

	for i, c := range last5 {
		if c.IsPass() {
			gl[i] = 1
		}
	}
	gl[5] = float32(pos.Komi / 20.0)
}

// Fingerprint computes the 64-bit cache key of (signMap, komi, last-5
// history, ko, nextToPlay). xxhash is already pulled in transitively via
// badger/ristretto; reused here directly rather than reaching for the
// standard library's weaker fnv.
func Fingerprint(pos *board.Position) uint64 {
	h := xxhash.New()

	buf := make([]byte, 9)
	for _, s := range pos.Grid {
		buf[0] = byte(s)
		h.Write(buf[:1])
	}

	binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(pos.Komi))
	h.Write(buf[:8])

	for _, c := range pos.LastN(5) {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(c.Col)))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(c.Row)))
		h.Write(buf[:8])
	}

	if pos.Ko != nil {
		buf[0] = byte(pos.Ko.ForbiddenSide)
		binary.LittleEndian.PutUint32(buf[1:5], uint32(int32(pos.Ko.Vertex.Col)))
		binary.LittleEndian.PutUint32(buf[5:9], uint32(int32(pos.Ko.Vertex.Row)))
		h.Write(buf[:9])
	} else {
		h.Write([]byte{0xFF})
	}

	h.Write([]byte{byte(pos.NextToPlay)})

	return h.Sum64()
}
