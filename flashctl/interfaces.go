package flashctl

// Bus is the CPU's view of the device. Every access takes CPU time.
type Bus interface {
	// ReadReg reads a flash controller register.
	ReadReg(r Reg) uint16

	// WriteReg writes a flash controller register.
	WriteReg(r Reg, v uint16)

	// Read reads a word from memory.
	Read(a Addr) uint16

	// Write stores a word. In flash, the store is what triggers an erase or
	// a write once the controller is set up.
	Write(a Addr, v uint16)

	// Nop executes a single no-operation instruction.
	Nop()
}

// An Allocation is a piece of reserved RAM.
type Allocation interface {
	Base() Addr
	Size() int
	Free()
}

// Heap hands out the scarce device RAM.
type Heap interface {
	// Alloc reserves size bytes. It returns ErrNoMemory when the RAM is
	// exhausted.
	Alloc(size int) (Allocation, error)
}

// A Region is a routine copied into RAM.
type Region interface {
	// Enter moves execution into the region. The returned function moves it
	// back to flash.
	Enter() (leave func())

	// Release frees the RAM the routine occupies.
	Release()
}

// Relocator copies routines into RAM.
type Relocator interface {
	// Relocate copies the named routine of the given size into RAM. It
	// returns ErrNoMemory when the RAM cannot be reserved.
	Relocate(name string, size int) (Region, error)
}
