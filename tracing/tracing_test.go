package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/typicaltaco116/msp430-flash-experiment1/hooking"
	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

type fakeDomain struct {
	*hooking.HookableBase
}

func (d fakeDomain) Name() string { return "Driver" }

type fakeClock struct {
	now timing.VTimeInCycle
}

func (c *fakeClock) CurrentTime() timing.VTimeInCycle { return c.now }

type recordingBackend struct {
	tables  []string
	rows    []any
	flushed int
}

func (b *recordingBackend) CreateTable(name string, _ any) {
	b.tables = append(b.tables, name)
}

func (b *recordingBackend) InsertData(_ string, entry any) {
	b.rows = append(b.rows, entry)
}

func (b *recordingBackend) ListTables() []string { return b.tables }

func (b *recordingBackend) Flush() { b.flushed++ }

func (b *recordingBackend) Close() error { return nil }

var _ = Describe("Task API", func() {
	var domain fakeDomain

	BeforeEach(func() {
		domain = fakeDomain{HookableBase: hooking.NewHookableBase()}
	})

	It("should not invoke anything when no hook is attached", func() {
		Expect(func() {
			StartTask("", "", domain, "", "", nil)
		}).NotTo(Panic())
	})

	It("should reject tasks with missing fields once hooked", func() {
		domain.AcceptHook(hooking.HookFunc(func(hooking.HookCtx) {}))

		Expect(func() {
			StartTask("1", "", domain, "", "erase", nil)
		}).To(Panic())
	})

	It("should deliver start and end to the tracer", func() {
		clock := &fakeClock{}
		tracer := NewTotalTimeTracer(clock, func(t Task) bool {
			return t.Kind == "erase"
		})
		CollectTrace(domain, tracer)

		clock.now = 100
		StartTask("1", "", domain, "erase", "segment", nil)
		StartTask("2", "", domain, "write", "word", nil)
		clock.now = 24100
		EndTask("1", domain)
		EndTask("2", domain)

		Expect(tracer.TotalTime()).To(Equal(timing.VTimeInCycle(24000)))
		Expect(tracer.Count()).To(Equal(uint64(1)))
	})
})

var _ = Describe("DBTracer", func() {
	var (
		domain  fakeDomain
		clock   *fakeClock
		backend *recordingBackend
		tracer  *DBTracer
	)

	BeforeEach(func() {
		domain = fakeDomain{HookableBase: hooking.NewHookableBase()}
		clock = &fakeClock{}
		backend = &recordingBackend{}
		tracer = NewDBTracer(clock, backend)
		CollectTrace(domain, tracer)
	})

	It("should create the trace table", func() {
		Expect(backend.tables).To(ConsistOf(TraceTable))
	})

	It("should write finished tasks with location and cycles", func() {
		clock.now = 10
		StartTask("7", "", domain, "write", "word", nil)
		clock.now = 85
		EndTask("7", domain)

		Expect(backend.rows).To(HaveLen(1))
		row := backend.rows[0].(taskTableEntry)
		Expect(row.Location).To(Equal("Driver"))
		Expect(row.StartTime).To(Equal(uint64(10)))
		Expect(row.EndTime).To(Equal(uint64(85)))
	})

	It("should ignore tasks that end before the range", func() {
		tracer.SetTimeRange(1000, 0)

		StartTask("1", "", domain, "write", "word", nil)
		clock.now = 500
		EndTask("1", domain)

		Expect(backend.rows).To(BeEmpty())
	})

	It("should ignore tasks that start after the range", func() {
		tracer.SetTimeRange(0, 100)

		clock.now = 200
		StartTask("1", "", domain, "write", "word", nil)
		clock.now = 300
		EndTask("1", domain)

		Expect(backend.rows).To(BeEmpty())
	})

	It("should drop in-flight tasks and flush on terminate", func() {
		StartTask("1", "", domain, "erase", "bank", nil)
		tracer.Terminate()
		EndTask("1", domain)

		Expect(backend.rows).To(BeEmpty())
		Expect(backend.flushed).To(Equal(1))
	})
})
