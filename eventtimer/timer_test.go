package eventtimer

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Timer", func() {
	var (
		mockCtrl *gomock.Controller
		counter  *MockCounter
		timer    *Timer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		counter = NewMockCounter(mockCtrl)
		timer = New(counter)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectStart := func(src ClockSource) {
		gomock.InOrder(
			counter.EXPECT().Clear(),
			counter.EXPECT().Start(src),
		)
	}

	expectStop := func(count uint16) {
		gomock.InOrder(
			counter.EXPECT().Count().Return(count),
			counter.EXPECT().Halt(),
		)
	}

	It("should clear and arm the counter on start", func() {
		expectStart(Fast)

		timer.Start(Fast)

		Expect(timer.Running()).To(BeTrue())
		Expect(timer.Source()).To(Equal(Fast))
	})

	It("should subtract the sampling overhead on stop", func() {
		expectStart(Fast)
		expectStop(103)

		timer.Start(Fast)
		v := timer.Stop()

		Expect(v).To(Equal(uint16(100)))
		Expect(timer.Value()).To(Equal(uint16(100)))
		Expect(timer.Running()).To(BeFalse())
	})

	It("should not wrap below zero", func() {
		expectStart(Fast)
		expectStop(1)

		timer.Start(Fast)

		Expect(timer.Stop()).To(Equal(uint16(0)))
	})

	It("should keep the value until the next start", func() {
		expectStart(Slow)
		expectStop(13)
		timer.Start(Slow)
		timer.Stop()

		Expect(timer.Value()).To(Equal(uint16(10)))

		expectStart(Fast)
		timer.Start(Fast)

		Expect(timer.Value()).To(Equal(uint16(0)))
	})

	It("should panic on nested regions", func() {
		expectStart(Fast)
		timer.Start(Fast)

		Expect(func() { timer.Start(Fast) }).To(Panic())
	})

	It("should panic on stop without start", func() {
		Expect(func() { timer.Stop() }).To(Panic())
	})

	It("should convert ticks to time", func() {
		expectStart(Slow)
		expectStop(32768 + StopOverhead)

		timer.Start(Slow)
		timer.Stop()

		Expect(timer.Elapsed()).To(Equal(time.Second))
	})

	Context("when measuring a scope", func() {
		It("should return the elapsed ticks", func() {
			expectStart(Fast)
			expectStop(50)

			ran := false
			ticks := timer.Measure(Fast, func() { ran = true })

			Expect(ran).To(BeTrue())
			Expect(ticks).To(Equal(uint16(47)))
		})

		It("should stop the timer when the scope panics", func() {
			expectStart(Fast)
			expectStop(20)

			boom := errors.New("boom")
			Expect(func() {
				timer.Measure(Fast, func() { panic(boom) })
			}).To(PanicWith(boom))

			Expect(timer.Running()).To(BeFalse())
			Expect(timer.Value()).To(Equal(uint16(17)))
		})

		It("should end a region only once", func() {
			expectStart(Fast)
			expectStop(9)

			r := timer.Begin(Fast)

			Expect(r.End()).To(Equal(uint16(6)))
			Expect(r.End()).To(Equal(uint16(6)))
		})
	})
})

var _ = Describe("ClockSource", func() {
	It("should report whole Hertz", func() {
		Expect(Fast.Hz()).To(Equal(uint64(1024000)))
		Expect(Slow.Hz()).To(Equal(uint64(32768)))
	})

	It("should know when the counter wraps", func() {
		Expect(Slow.Wrap()).To(Equal(2 * time.Second))
		Expect(Fast.Wrap()).To(Equal(64 * time.Millisecond))
	})

	It("should convert fast ticks", func() {
		Expect(Fast.Duration(1024)).To(Equal(time.Millisecond))
	})
})
