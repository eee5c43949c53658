package replica

// mt19937 is a from-scratch implementation of the standard 32-bit Mersenne
// Twister generator (Matsumoto & Nishimura, 1998), seeded with an
// init_by_array-style key so a 32-byte FileID can be used directly as seed
// material. No library in the retrieval corpus ships an MT19937
// implementation, and spec §4.3 requires exact, bit-for-bit reproducible
// output across independently-run workers, so the generator cannot be
// swapped for math/rand (whose algorithm and stream are not part of Go's
// compatibility guarantee) or math/rand/v2's PCG — it must be this specific,
// pinned algorithm. This is the interoperability appendix spec §4.3 asks
// for: any reimplementation that reproduces init_by_array + genrand_uint32
// below byte-for-byte will agree with this one.
const (
	mtN          = 624
	mtM          = 397
	mtMatrixA    = 0x9908b0df
	mtUpperMask  = 0x80000000
	mtLowerMask  = 0x7fffffff
)

type mt19937 struct {
	state [mtN]uint32
	index int
}

// newMT19937FromKey seeds a generator from an arbitrary-length key, using
// the reference init_by_array algorithm so keys longer than 32 bits (our
// 32-byte FileID, as eight uint32 words) are mixed in fully rather than
// truncated to a single seed word.
func newMT19937FromKey(key []uint32) *mt19937 {
	g := &mt19937{}
	g.initGenrand(19650218)

	i, j := 1, 0
	k := mtN
	if len(key) > k {
		k = len(key)
	}
	for ; k > 0; k-- {
		g.state[i] = (g.state[i] ^ ((g.state[i-1] ^ (g.state[i-1] >> 30)) * 1664525)) + key[j] + uint32(j)
		i++
		j++
		if i >= mtN {
			g.state[0] = g.state[mtN-1]
			i = 1
		}
		if j >= len(key) {
			j = 0
		}
	}
	for k = mtN - 1; k > 0; k-- {
		g.state[i] = (g.state[i] ^ ((g.state[i-1] ^ (g.state[i-1] >> 30)) * 1566083941)) - uint32(i)
		i++
		if i >= mtN {
			g.state[0] = g.state[mtN-1]
			i = 1
		}
	}
	g.state[0] = 0x80000000
	return g
}

func (g *mt19937) initGenrand(seed uint32) {
	g.state[0] = seed
	for i := 1; i < mtN; i++ {
		g.state[i] = 1812433253*(g.state[i-1]^(g.state[i-1]>>30)) + uint32(i)
	}
	g.index = mtN
}

// nextUint32 returns the next 32-bit draw from the stream.
func (g *mt19937) nextUint32() uint32 {
	if g.index >= mtN {
		g.generate()
	}

	y := g.state[g.index]
	g.index++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// skip advances the stream by n draws without materializing the values.
func (g *mt19937) skip(n uint64) {
	for ; n > 0; n-- {
		g.nextUint32()
	}
}

func (g *mt19937) generate() {
	var mag01 = [2]uint32{0, mtMatrixA}

	for i := 0; i < mtN-mtM; i++ {
		y := (g.state[i] & mtUpperMask) | (g.state[i+1] & mtLowerMask)
		g.state[i] = g.state[i+mtM] ^ (y >> 1) ^ mag01[y&1]
	}
	for i := mtN - mtM; i < mtN-1; i++ {
		y := (g.state[i] & mtUpperMask) | (g.state[i+1] & mtLowerMask)
		g.state[i] = g.state[i+(mtM-mtN)] ^ (y >> 1) ^ mag01[y&1]
	}
	y := (g.state[mtN-1] & mtUpperMask) | (g.state[0] & mtLowerMask)
	g.state[mtN-1] = g.state[mtM-1] ^ (y >> 1) ^ mag01[y&1]

	g.index = 0
}
