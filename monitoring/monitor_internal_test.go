package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

type sampleEngine struct {
	now    timing.VTimeInCycle
	paused bool
}

func (e *sampleEngine) Pause()                           { e.paused = true }
func (e *sampleEngine) Continue()                        { e.paused = false }
func (e *sampleEngine) CurrentTime() timing.VTimeInCycle { return e.now }

type sampleComponent struct {
	Erases  int
	Latency uint16
	Inner   *sampleComponent
}

func (c *sampleComponent) Name() string { return "Comp" }

type guardedComponent struct {
	Erases int

	mu    sync.Mutex
	locks int
}

func (c *guardedComponent) Name() string { return "Guarded" }

func (c *guardedComponent) Lock() {
	c.mu.Lock()
	c.locks++
}

func (c *guardedComponent) Unlock() { c.mu.Unlock() }

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		engine *sampleEngine
		comp   *sampleComponent
		router http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	BeforeEach(func() {
		engine = &sampleEngine{now: 2048000}
		comp = &sampleComponent{Erases: 1234, Latency: 77}

		m = NewMonitor()
		m.profileDuration = 10 * time.Millisecond
		m.RegisterEngine(engine, 1024*timing.KHz)
		m.RegisterComponent(comp)
		router = m.Router()
	})

	It("should refuse privileged ports", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should pause and continue the engine", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(engine.paused).To(BeTrue())

		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
		Expect(engine.paused).To(BeFalse())
	})

	It("should report the current time", func() {
		var rsp nowRsp
		Expect(json.Unmarshal(get("/api/now").Body.Bytes(), &rsp)).To(Succeed())

		Expect(rsp.Now).To(Equal(uint64(2048000)))
		Expect(rsp.Seconds).To(BeNumerically("~", 2.0, 1e-9))
	})

	It("should list components", func() {
		Expect(get("/api/list_components").Body.String()).To(Equal(`["Comp"]`))
	})

	It("should serialize a component", func() {
		rec := get("/api/component/Comp")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("1234"))
	})

	It("should serialize a single field", func() {
		req := url.PathEscape(`{"comp_name":"Comp","field_name":"Latency"}`)
		rec := get("/api/field/" + req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("77"))
	})

	It("should hold a lockable component while serializing it", func() {
		g := &guardedComponent{Erases: 42}
		m.RegisterComponent(g)
		router = m.Router()

		g.Lock()
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() { done <- get("/api/component/Guarded") }()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
		g.Unlock()

		var rec *httptest.ResponseRecorder
		Eventually(done).Should(Receive(&rec))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("42"))
		Expect(g.locks).To(Equal(2))
	})

	It("should return 404 for unknown components", func() {
		Expect(get("/api/component/Nope").Code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		Expect(get("/api/field/notjson").Code).To(Equal(http.StatusBadRequest))
	})

	It("should list and complete progress bars", func() {
		bar := m.CreateProgressBar("Checkpoints", 10)
		bar.IncrementFinished(3)
		bar.IncrementInProgress(1)

		var bars []progressBarState
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("Checkpoints"))
		Expect(bars[0].Finished).To(Equal(uint64(3)))
		Expect(bars[0].ID).NotTo(BeEmpty())

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should report process resources", func() {
		var rsp resourceRsp
		Expect(json.Unmarshal(get("/api/resource").Body.Bytes(), &rsp)).
			To(Succeed())

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		rec := get("/api/profile")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
	})

	It("should serve the dashboard", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Flash Wear Monitor"))
	})

	It("should start, open and stop the server", func() {
		var opened string
		m.openURL = func(u string) error {
			opened = u
			return nil
		}

		Expect(m.OpenBrowser()).NotTo(Succeed())

		u, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(HavePrefix("http://localhost:"))

		rsp, err := http.Get(u + "/api/list_components")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		Expect(m.OpenBrowser()).To(Succeed())
		Expect(opened).To(Equal(u))
		Expect(m.StopServer()).To(Succeed())
	})
})

var _ = Describe("ProgressBar", func() {
	It("should move in-progress items to finished", func() {
		b := &ProgressBar{Total: 4}
		b.IncrementInProgress(2)
		b.MoveInProgressToFinished(1)

		Expect(b.InProgress).To(Equal(uint64(1)))
		Expect(b.Finished).To(Equal(uint64(1)))
	})

	It("should estimate the remaining time", func() {
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		b := &ProgressBar{StartTime: start, Total: 10}

		Expect(b.ETA(start.Add(time.Minute))).To(BeZero())

		b.IncrementFinished(2)
		Expect(b.ETA(start.Add(time.Minute))).To(Equal(4 * time.Minute))
	})
})
