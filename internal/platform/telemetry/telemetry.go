// Package telemetry records HTTP and decode metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

var defaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// ---------------------------------------------------------------------------
// Labeled series
// ---------------------------------------------------------------------------

// counterVec is a counter keyed by its rendered label set.
type counterVec struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterVec() *counterVec {
	return &counterVec{items: make(map[string]*int64)}
}

func (v *counterVec) add(labels string, n int64) {
	v.mu.RLock()
	p, ok := v.items[labels]
	v.mu.RUnlock()
	if !ok {
		v.mu.Lock()
		if p, ok = v.items[labels]; !ok {
			p = new(int64)
			v.items[labels] = p
		}
		v.mu.Unlock()
	}
	atomic.AddInt64(p, n)
}

func (v *counterVec) get(labels string) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if p, ok := v.items[labels]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func (v *counterVec) snapshot() map[string]int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make(map[string]int64, len(v.items))
	for k, p := range v.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}

type histogramVec struct {
	mu    sync.RWMutex
	items map[string]*histogram
}

func (v *histogramVec) get(labels string) *histogram {
	v.mu.RLock()
	h, ok := v.items[labels]
	v.mu.RUnlock()
	if ok {
		return h
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok = v.items[labels]; !ok {
		h = newHistogram(defaultDurationBuckets)
		v.items[labels] = h
	}
	return h
}

func (v *histogramVec) snapshot() map[string]*histogram {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make(map[string]*histogram, len(v.items))
	for k, h := range v.items {
		cp[k] = h
	}
	return cp
}

// Label renders label pairs as a Prometheus label set: Label("key", "PID")
// gives `key="PID"`.
func Label(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, pairs[i]+"="+strconv.Quote(pairs[i+1]))
	}
	return strings.Join(parts, ",")
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// knownMessageCodes bounds the message_code label; MSH-9 is client input.
var knownMessageCodes = map[string]bool{
	"ACK": true, "ADR": true, "ADT": true, "BAR": true, "DFT": true,
	"DSR": true, "MDM": true, "MFN": true, "OMG": true, "OML": true,
	"ORL": true, "ORM": true, "ORR": true, "ORU": true, "PPR": true,
	"QBP": true, "QRY": true, "RAS": true, "RDE": true, "RDS": true,
	"REF": true, "RRI": true, "RSP": true, "SIU": true, "VXU": true,
}

// messageCodeLabel maps MSH-9.1 to a label value. Unknown codes fold into
// "other" and a missing code stays empty.
func messageCodeLabel(code string) string {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return ""
	case knownMessageCodes[code]:
		return code
	default:
		return "other"
	}
}

// Metrics holds every series the service exports.
type Metrics struct {
	activeRequests int64
	requests       *histogramVec
	messages       *counterVec
	segments       *counterVec
	skipped        *counterVec
	duplicates     *counterVec
	warnings       *counterVec
}

// NewMetrics creates an empty metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		requests:   &histogramVec{items: make(map[string]*histogram)},
		messages:   newCounterVec(),
		segments:   newCounterVec(),
		skipped:    newCounterVec(),
		duplicates: newCounterVec(),
		warnings:   newCounterVec(),
	}
}

// ObserveReport counts one decoded message. It satisfies hl7v2.Observer.
func (m *Metrics) ObserveReport(rep hl7v2.Report) {
	code := ""
	if msh, ok := rep.Result.Record("MSH"); ok {
		code, _, _ = strings.Cut(msh.Text("messageType"), "^")
	}
	m.messages.add(Label("message_code", messageCodeLabel(code)), 1)

	for _, key := range rep.Result.Keys() {
		n := int64(len(rep.Result.Records(key)))
		if _, ok := rep.Result.Record(key); ok {
			n = 1
		}
		m.segments.add(Label("key", key), n)
	}
	// Skipped tags come from arbitrary input so they are not used as labels.
	if n := len(rep.Diagnostics.Skipped); n > 0 {
		m.skipped.add("", int64(n))
	}
	for _, d := range rep.Diagnostics.Duplicates {
		m.duplicates.add(Label("key", d.Key), 1)
	}
	for _, w := range rep.Diagnostics.Warnings {
		m.warnings.add(Label("tag", w.Tag, "field", w.Field), 1)
	}
}

// Middleware records request duration by method, route and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.activeRequests, 1)
			defer atomic.AddInt64(&m.activeRequests, -1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			// unmatched paths come from the client and must not become labels
			route := c.Path()
			if route == "" || errors.Is(err, echo.ErrNotFound) || errors.Is(err, echo.ErrMethodNotAllowed) {
				route = "unmatched"
			}

			labels := Label("method", c.Request().Method, "route", route, "status_code", strconv.Itoa(status))
			m.requests.get(labels).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves GET /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		hists := m.requests.snapshot()
		for _, labels := range sortedKeys(hists) {
			writeHistogram(&b, "http_server_request_duration_seconds", labels, hists[labels])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.activeRequests))

		writeCounter(&b, "hl7v2_messages_decoded_total", "Decoded HL7v2 messages by message code.", m.messages)
		writeCounter(&b, "hl7v2_segments_decoded_total", "Decoded segments by result key.", m.segments)
		writeCounter(&b, "hl7v2_segments_skipped_total", "Segments without a registered decoder.", m.skipped)
		writeCounter(&b, "hl7v2_duplicate_singletons_total", "Repeated singleton segments by result key.", m.duplicates)
		writeCounter(&b, "hl7v2_field_warnings_total", "Malformed field values by tag and field.", m.warnings)

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func writeCounter(b *strings.Builder, name, help string, v *counterVec) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	snap := v.snapshot()
	for _, labels := range sortedKeys(snap) {
		if labels == "" {
			fmt.Fprintf(b, "%s %d\n", name, snap[labels])
			continue
		}
		fmt.Fprintf(b, "%s{%s} %d\n", name, labels, snap[labels])
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
