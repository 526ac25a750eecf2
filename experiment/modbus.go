package experiment

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Holding register layout of the Modbus data logger.
//
// The header block sits at the base address. Every segment owns a block of
// SlotsPerSegment registers after it. 32- and 64-bit values are stored most
// significant word first.
const (
	SlotChipID     = 0 // 4 registers
	SlotCycles     = 4 // 2 registers
	SlotCheckpoint = 6
	HeaderSlots    = 8

	SlotIncorrectBits = 0 // 2 registers
	SlotUnstableBits  = 2 // 2 registers
	SlotWriteLatency  = 4
	SlotEraseLatency  = 5
	SlotPartialWrite  = 6
	SlotPartialErase  = 7
	SlotSegmentCycles = 8 // 2 registers
	SlotsPerSegment   = 10
)

// RegisterWriter writes holding registers of one unit.
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// ModbusConfig configures the connection to a Modbus TCP data logger.
type ModbusConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// ModbusClient is a single TCP connection to a data logger. Requests are
// serialized because the unit ID is set per request.
type ModbusClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// DialModbus connects to the data logger.
func DialModbus(cfg ModbusConfig) (*ModbusClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("experiment: modbus endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &ModbusClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// WriteRegisters writes regs starting at addr.
func (c *ModbusClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	_, err := c.client.WriteMultipleRegisters(
		addr, uint16(len(regs)), packRegisters(regs))

	return err
}

// Close closes the connection.
func (c *ModbusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.handler.Close()
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}

	return out
}

// ModbusReporter mirrors the latest results into the holding registers of a
// data logger, so that a long run can be watched from the lab's SCADA panel.
type ModbusReporter struct {
	writer RegisterWriter
	unitID uint8
	base   uint16
}

// NewModbusReporter creates a reporter writing to unit unitID with its
// header block at base.
func NewModbusReporter(w RegisterWriter, unitID uint8, base uint16) *ModbusReporter {
	return &ModbusReporter{writer: w, unitID: unitID, base: base}
}

// Header writes the chip ID and clears the progress registers.
func (r *ModbusReporter) Header(h Header) error {
	return r.writer.WriteRegisters(r.unitID, r.base, EncodeHeader(h))
}

// Checkpoint writes the cycle count and checkpoint index.
func (r *ModbusReporter) Checkpoint(c Checkpoint) error {
	regs := make([]uint16, HeaderSlots-SlotCycles)
	putUint32(regs[SlotCycles-SlotCycles:], c.Cycles)
	regs[SlotCheckpoint-SlotCycles] = uint16(c.Index)

	return r.writer.WriteRegisters(r.unitID, r.base+SlotCycles, regs)
}

// Segment writes the block of the segment.
func (r *ModbusReporter) Segment(s SegmentStats) error {
	addr := r.base + HeaderSlots + uint16(s.Segment)*SlotsPerSegment
	return r.writer.WriteRegisters(r.unitID, addr, EncodeSegment(s))
}

// EncodeHeader converts a header into the header block. Progress registers
// are zero.
func EncodeHeader(h Header) []uint16 {
	regs := make([]uint16, HeaderSlots)
	putUint64(regs[SlotChipID:], h.ChipID)

	return regs
}

// EncodeSegment converts segment statistics into a segment block.
func EncodeSegment(s SegmentStats) []uint16 {
	regs := make([]uint16, SlotsPerSegment)

	putUint32(regs[SlotIncorrectBits:], s.Stats.IncorrectBitCount)
	putUint32(regs[SlotUnstableBits:], s.Stats.UnstableBitCount)
	regs[SlotWriteLatency] = s.Stats.WriteLatency
	regs[SlotEraseLatency] = s.Stats.EraseLatency
	regs[SlotPartialWrite] = s.Stats.PartialWriteLatency
	regs[SlotPartialErase] = s.Stats.PartialEraseLatency
	putUint32(regs[SlotSegmentCycles:], s.Cycles)

	return regs
}

func putUint32(regs []uint16, v uint32) {
	regs[0] = uint16(v >> 16)
	regs[1] = uint16(v)
}

func putUint64(regs []uint16, v uint64) {
	for i := 0; i < 4; i++ {
		regs[i] = uint16(v >> (48 - 16*i))
	}
}
