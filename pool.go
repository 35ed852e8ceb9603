package depot

// blockPool hands out fixed-size chunk blocks. Released blocks go on a free
// list and are reused before new memory is allocated.
type blockPool struct {
	size      int
	max       int
	allocated int
	free      [][]byte
}

func newBlockPool(size, max int) *blockPool {
	return &blockPool{size: size, max: max}
}

func (p *blockPool) get() []byte {
	if n := len(p.free); n > 0 {
		block := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		clear(block)
		return block
	}
	if p.max > 0 && p.allocated >= p.max {
		panic(CapacityExhaustedError{MaxChunks: p.max})
	}
	p.allocated++
	return make([]byte, p.size)
}

func (p *blockPool) put(block []byte) {
	p.free = append(p.free, block)
}

// trim drops the free list so the collector can reclaim idle blocks.
func (p *blockPool) trim() int {
	n := len(p.free)
	clear(p.free)
	p.free = p.free[:0]
	p.allocated -= n
	return n
}

func (p *blockPool) inUse() int {
	return p.allocated - len(p.free)
}
