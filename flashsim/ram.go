package flashsim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
)

// RAMStart is where the device RAM begins.
const RAMStart flashctl.Addr = 0x2400

// RAM is the device RAM. It is the heap for holding buffers and the target
// of relocated routines.
type RAM struct {
	mu     sync.Mutex
	device *Device
	base   flashctl.Addr
	size   int
	spans  []span
}

type span struct {
	base flashctl.Addr
	size int
	name string
}

func newRAM(device *Device, base flashctl.Addr, size int) *RAM {
	return &RAM{device: device, base: base, size: size}
}

// Size returns the RAM size in bytes.
func (r *RAM) Size() int {
	return r.size
}

// Used returns how many bytes are currently allocated.
func (r *RAM) Used() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	used := 0
	for _, s := range r.spans {
		used += s.size
	}

	return used
}

// Live returns how many allocations have not been freed.
func (r *RAM) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.spans)
}

// Alloc reserves size bytes with a first-fit search.
func (r *RAM) Alloc(size int) (flashctl.Allocation, error) {
	a, err := r.alloc(size, "heap")
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (r *RAM) alloc(size int, name string) (*allocation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %d bytes for %s: invalid size", size, name)
	}

	size = (size + 1) &^ 1

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.base
	at := -1

	for i, s := range r.spans {
		if int(s.base-next) >= size {
			at = i
			break
		}

		next = s.base + flashctl.Addr(s.size)
	}

	if at < 0 {
		if int(r.base)+r.size-int(next) < size {
			return nil, fmt.Errorf("allocate %d bytes for %s: %w",
				size, name, flashctl.ErrNoMemory)
		}

		at = len(r.spans)
	}

	s := span{base: next, size: size, name: name}
	r.spans = append(r.spans, span{})
	copy(r.spans[at+1:], r.spans[at:])
	r.spans[at] = s

	return &allocation{ram: r, span: s}, nil
}

func (r *RAM) free(base flashctl.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.spans), func(i int) bool {
		return r.spans[i].base >= base
	})

	if i < len(r.spans) && r.spans[i].base == base {
		r.spans = append(r.spans[:i], r.spans[i+1:]...)
	}
}

type allocation struct {
	ram   *RAM
	span  span
	freed bool
}

func (a *allocation) Base() flashctl.Addr {
	return a.span.base
}

func (a *allocation) Size() int {
	return a.span.size
}

func (a *allocation) Free() {
	if a.freed {
		return
	}

	a.freed = true
	a.ram.free(a.span.base)
}

// Relocate copies a routine into RAM. Running inside the returned region
// keeps the CPU off the flash bus.
func (r *RAM) Relocate(name string, size int) (flashctl.Region, error) {
	alloc, err := r.alloc(size, name)
	if err != nil {
		return nil, err
	}

	return &region{alloc: alloc}, nil
}

type region struct {
	alloc *allocation
}

func (g *region) Enter() func() {
	d := g.alloc.ram.device

	d.mu.Lock()
	d.ramDepth++
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		d.ramDepth--
		d.mu.Unlock()
	}
}

func (g *region) Release() {
	g.alloc.Free()
}

var (
	_ flashctl.Heap      = (*RAM)(nil)
	_ flashctl.Relocator = (*RAM)(nil)
)
