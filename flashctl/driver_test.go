package flashctl

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
	"github.com/typicaltaco116/msp430-flash-experiment1/hooking"
	"github.com/typicaltaco116/msp430-flash-experiment1/tracing"
)

var _ = Describe("Driver", func() {
	var (
		mockCtrl *gomock.Controller
		bus      *MockBus
		counter  *MockCounter
		heap     *MockHeap
		driver   *Driver
		seg      Addr
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bus = NewMockBus(mockCtrl)
		counter = NewMockCounter(mockCtrl)
		heap = NewMockHeap(mockCtrl)
		driver = MakeBuilder().
			WithBus(bus).
			WithTimer(eventtimer.New(counter)).
			WithHeap(heap).
			WithBusyPollLimit(3).
			Build("Driver")
		seg = F5529.Segment(F5529.Bank(3), 2)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectOpen := func() *gomock.Call {
		return bus.EXPECT().ReadReg(FCTL3).Return(FRPW | LOCK | WAIT)
	}

	expectClose := func(status uint16) []any {
		return []any{
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | status),
			bus.EXPECT().WriteReg(FCTL1, FWPW),
			bus.EXPECT().WriteReg(FCTL3, FWPW|LOCK),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | LOCK | WAIT),
		}
	}

	It("should follow the segment erase protocol", func() {
		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|ERASE),
			bus.EXPECT().Write(seg, uint16(0x0000)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | BUSY),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		gomock.InOrder(append(calls, expectClose(WAIT)...)...)

		Expect(driver.EraseSegment(seg)).To(Succeed())
	})

	It("should select mass erase for a bank", func() {
		bank := F5529.Bank(3)
		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|MERAS),
			bus.EXPECT().Write(bank, uint16(0x0000)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		gomock.InOrder(append(calls, expectClose(WAIT)...)...)

		Expect(driver.EraseBank(bank)).To(Succeed())
	})

	It("should store the value for a word write", func() {
		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|WRT),
			bus.EXPECT().Write(seg+6, uint16(0x1234)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		gomock.InOrder(append(calls, expectClose(WAIT)...)...)

		Expect(driver.WriteWord(0x1234, seg+6)).To(Succeed())
	})

	It("should time an operation from before the busy wait to after the lock", func() {
		calls := []any{
			counter.EXPECT().Clear(),
			counter.EXPECT().Start(eventtimer.Fast),
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|WRT),
			bus.EXPECT().Write(seg, uint16(0x00FF)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		calls = append(calls, expectClose(WAIT)...)
		calls = append(calls,
			counter.EXPECT().Count().Return(uint16(80)),
			counter.EXPECT().Halt(),
		)
		gomock.InOrder(calls...)

		ticks, err := driver.WriteWordTimed(0x00FF, seg)

		Expect(err).NotTo(HaveOccurred())
		Expect(ticks).To(Equal(uint16(77)))
		Expect(driver.Timer().Value()).To(Equal(uint16(77)))
	})

	It("should reject addresses outside the array without touching the bus", func() {
		err := driver.EraseSegment(seg + 2)
		Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())

		err = driver.WriteWord(0, 0x2400)
		Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())

		_, err = driver.EraseBankTimed(seg)
		Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())
	})

	It("should report an access violation after relocking", func() {
		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|WRT),
			bus.EXPECT().Write(seg, uint16(0)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		gomock.InOrder(append(calls, expectClose(WAIT|ACCVIFG)...)...)

		err := driver.WriteWord(0, seg)

		Expect(errors.Is(err, ErrAccessViolation)).To(BeTrue())
	})

	It("should stop a hung operation and relock", func() {
		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|ERASE),
			bus.EXPECT().Write(seg, uint16(0)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | BUSY).Times(3),
			bus.EXPECT().WriteReg(FCTL3, FWPW|EMEX),
		}
		gomock.InOrder(append(calls, expectClose(EMEX)...)...)

		err := driver.EraseSegment(seg)

		Expect(errors.Is(err, ErrBusyTimeout)).To(BeTrue())
	})

	It("should give up before unlocking when the controller never idles", func() {
		bus.EXPECT().ReadReg(FCTL3).Return(FRPW | BUSY).Times(3)

		err := driver.WriteWord(0, seg)

		Expect(errors.Is(err, ErrBusyTimeout)).To(BeTrue())
	})

	It("should panic when the controller does not read back locked", func() {
		gomock.InOrder(
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|WRT),
			bus.EXPECT().Write(seg, uint16(0)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW|WAIT),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW|WAIT),
			bus.EXPECT().WriteReg(FCTL1, FWPW),
			bus.EXPECT().WriteReg(FCTL3, FWPW|LOCK),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW|WAIT),
		)

		Expect(func() { _ = driver.WriteWord(0, seg) }).To(Panic())
	})

	It("should abort a safe write before erasing when RAM is exhausted", func() {
		heap.EXPECT().
			Alloc(F5529.SegmentSize).
			Return(nil, fmt.Errorf("heap: %w", ErrNoMemory))

		err := driver.SafeWriteWord(0, seg+4, seg)

		Expect(errors.Is(err, ErrNoMemory)).To(BeTrue())
	})

	It("should reject a safe write target outside the segment", func() {
		err := driver.SafeWriteWord(0, seg+512, seg)

		Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())
	})

	It("should trace public operations when hooked", func() {
		var kinds []string
		driver.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == tracing.HookPosTaskStart {
				kinds = append(kinds, ctx.Item.(tracing.Task).What)
			}
		}))

		calls := []any{
			expectOpen(),
			bus.EXPECT().WriteReg(FCTL3, FWPW),
			bus.EXPECT().WriteReg(FCTL1, FWPW|ERASE),
			bus.EXPECT().Write(seg, uint16(0)),
			bus.EXPECT().ReadReg(FCTL3).Return(FRPW | WAIT),
		}
		gomock.InOrder(append(calls, expectClose(WAIT)...)...)

		Expect(driver.EraseSegment(seg)).To(Succeed())
		Expect(kinds).To(Equal([]string{"segment"}))
	})
})

var _ = Describe("Driver on an ideal controller", func() {
	var (
		mockCtrl *gomock.Controller
		bus      *fakeBus
		heap     *MockHeap
		driver   *Driver
		seg      Addr
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bus = newFakeBus(tiny)
		heap = NewMockHeap(mockCtrl)
		driver = MakeBuilder().
			WithBus(bus).
			WithTimer(eventtimer.New(NewMockCounter(mockCtrl))).
			WithHeap(heap).
			WithGeometry(tiny).
			Build("Driver")
		seg = tiny.Start
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should erase to all ones and write only the target word", func() {
		bus.mem[seg] = 0x0000
		bus.mem[seg+2] = 0x1234

		Expect(driver.EraseSegment(seg)).To(Succeed())
		Expect(driver.WriteWord(0xA5A5, seg+4)).To(Succeed())

		words, err := driver.ReadSegment(seg)
		Expect(err).NotTo(HaveOccurred())
		Expect(words).To(Equal([]uint16{0xFFFF, 0xFFFF, 0xA5A5, 0xFFFF}))
		Expect(driver.Locked()).To(BeTrue())
	})

	It("should keep the neighbours of a safe write", func() {
		bus.mem[seg] = 0x1234
		bus.mem[seg+4] = 0x00F0
		bus.mem[seg+6] = 0xABCD
		bus.mem[seg+8] = 0x0BAD

		alloc := NewMockAllocation(mockCtrl)
		heap.EXPECT().Alloc(tiny.SegmentSize).Return(alloc, nil)
		alloc.EXPECT().Free()

		Expect(driver.SafeWriteWord(0x5555, seg+4, seg)).To(Succeed())

		words, _ := driver.ReadSegment(seg)
		Expect(words).To(Equal([]uint16{0x1234, 0xFFFF, 0x5555, 0xABCD}))
		Expect(bus.mem[seg+8]).To(Equal(uint16(0x0BAD)))
		Expect(driver.Locked()).To(BeTrue())
	})

	It("should erase every segment of a bank", func() {
		bus.mem[seg] = 0
		bus.mem[seg+8] = 0

		Expect(driver.EraseBank(tiny.Start)).To(Succeed())

		Expect(bus.mem).To(BeEmpty())
	})
})
