package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

const sampleA01 = "MSH|^~\\&|AppA|FacA|AppB|FacB|20230101||ADT^A01|MSG001|P|2.5\rPID|1||12345^^^MR||Doe^John||19800101|M"

// ---------------------------------------------------------------------------
// Shared test-suite that can run against ANY Store implementation
// ---------------------------------------------------------------------------

func runStoreTests(t *testing.T, name string, newStore func() Store) {
	t.Run(name+"/SaveAndList", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()
		base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			e := &Entry{
				ID:          uuid.New(),
				ControlID:   fmt.Sprintf("MSG%03d", i),
				MessageType: "ADT^A01",
				Raw:         "MSH|...",
				Decoded:     json.RawMessage(`{}`),
				ReceivedAt:  base.Add(time.Duration(i) * time.Minute),
			}
			if err := store.Save(ctx, e); err != nil {
				t.Fatalf("Save: unexpected error: %v", err)
			}
		}

		entries, total, err := store.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("List: unexpected error: %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		if len(entries) != 2 {
			t.Fatalf("len(entries) = %d, want 2", len(entries))
		}
		if entries[0].ControlID != "MSG002" {
			t.Errorf("entries[0].ControlID = %q, want newest %q", entries[0].ControlID, "MSG002")
		}
		if entries[1].ControlID != "MSG001" {
			t.Errorf("entries[1].ControlID = %q, want %q", entries[1].ControlID, "MSG001")
		}

		page2, _, err := store.List(ctx, 2, 2)
		if err != nil {
			t.Fatalf("List page 2: unexpected error: %v", err)
		}
		if len(page2) != 1 || page2[0].ControlID != "MSG000" {
			t.Errorf("unexpected second page: %+v", page2)
		}
	})

	t.Run(name+"/ListEmpty", func(t *testing.T) {
		store := newStore()
		entries, total, err := store.List(context.Background(), 10, 0)
		if err != nil {
			t.Fatalf("List: unexpected error: %v", err)
		}
		if total != 0 || len(entries) != 0 {
			t.Errorf("expected empty store, got total=%d len=%d", total, len(entries))
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, "Memory", func() Store { return NewMemoryStore(0) })
}

func TestMemoryStore_Bounded(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		store.Save(ctx, &Entry{ControlID: fmt.Sprintf("MSG%d", i)})
	}

	entries, total, _ := store.List(ctx, 10, 0)
	if total != 2 {
		t.Errorf("expected 2 retained entries, got %d", total)
	}
	if len(entries) != 2 || entries[0].ControlID != "MSG4" || entries[1].ControlID != "MSG3" {
		t.Errorf("unexpected retained entries: %+v", entries)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Save(ctx, &Entry{ID: uuid.New()})
		}()
		go func() {
			defer wg.Done()
			store.List(ctx, 5, 0)
		}()
	}
	wg.Wait()

	if _, total, _ := store.List(ctx, 1, 0); total != 20 {
		t.Errorf("expected 20 entries, got %d", total)
	}
}

// ---------------------------------------------------------------------------
// PGStore tests (unit tests with a mock DB layer)
// ---------------------------------------------------------------------------

type mockPGRow struct {
	total   int
	scanErr error
}

func (r *mockPGRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if p, ok := dest[0].(*int); ok {
		*p = r.total
	}
	return nil
}

type mockPGRows struct {
	entries []*Entry
	pos     int
}

func (r *mockPGRows) Next() bool {
	r.pos++
	return r.pos <= len(r.entries)
}

func (r *mockPGRows) Scan(dest ...any) error {
	e := r.entries[r.pos-1]
	*dest[0].(*uuid.UUID) = e.ID
	*dest[1].(*string) = e.ControlID
	*dest[2].(*string) = e.MessageType
	*dest[3].(*string) = e.Raw
	*dest[4].(*[]byte) = []byte(e.Decoded)
	*dest[5].(*time.Time) = e.ReceivedAt
	return nil
}

func (r *mockPGRows) Err() error { return nil }
func (r *mockPGRows) Close()     {}

// mockPGConn implements pgConn by keeping inserted rows in memory.
type mockPGConn struct {
	mu       sync.Mutex
	entries  []*Entry
	queries  []string
	execErr  error
	queryErr error
}

func (m *mockPGConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.queryErr != nil {
		return &mockPGRow{scanErr: m.queryErr}
	}
	return &mockPGRow{total: len(m.entries)}
}

func (m *mockPGConn) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	limit, _ := args[0].(int)
	offset, _ := args[1].(int)

	// ORDER BY received_at DESC over insertion-ordered rows
	var page []*Entry
	for i := len(m.entries) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, m.entries[i])
	}
	return &mockPGRows{entries: page}, nil
}

func (m *mockPGConn) Exec(ctx context.Context, sql string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.execErr != nil {
		return m.execErr
	}
	if strings.HasPrefix(sql, "INSERT") && len(args) == 6 {
		decoded, _ := args[4].([]byte)
		m.entries = append(m.entries, &Entry{
			ID:          args[0].(uuid.UUID),
			ControlID:   args[1].(string),
			MessageType: args[2].(string),
			Raw:         args[3].(string),
			Decoded:     decoded,
			ReceivedAt:  args[5].(time.Time),
		})
	}
	return nil
}

func TestPGStore(t *testing.T) {
	runStoreTests(t, "PG", func() Store { return NewPGStore(&mockPGConn{}) })
}

func TestPGStore_SaveError(t *testing.T) {
	store := NewPGStore(&mockPGConn{execErr: errors.New("connection reset")})
	err := store.Save(context.Background(), &Entry{ID: uuid.New()})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "save decoded message") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestPGStore_ListError(t *testing.T) {
	store := NewPGStore(&mockPGConn{queryErr: errors.New("connection reset")})
	if _, _, err := store.List(context.Background(), 10, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestPGStore_ListQueryOrdersNewestFirst(t *testing.T) {
	conn := &mockPGConn{}
	NewPGStore(conn).List(context.Background(), 10, 0)

	found := false
	for _, q := range conn.queries {
		if strings.Contains(q, "ORDER BY received_at DESC") {
			found = true
		}
	}
	if !found {
		t.Error("expected list query to order by received_at DESC")
	}
}

// ---------------------------------------------------------------------------
// Service tests
// ---------------------------------------------------------------------------

func TestService_Archive(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store)
	fixed := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	res := hl7v2.Decode(sampleA01)
	if err := svc.Archive(context.Background(), sampleA01, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, total, _ := store.List(context.Background(), 10, 0)
	if total != 1 {
		t.Fatalf("expected 1 entry, got %d", total)
	}
	e := entries[0]
	if e.ControlID != "MSG001" {
		t.Errorf("expected control id 'MSG001', got %q", e.ControlID)
	}
	if e.MessageType != "ADT^A01" {
		t.Errorf("expected message type 'ADT^A01', got %q", e.MessageType)
	}
	if e.Raw != sampleA01 {
		t.Error("expected raw message stored verbatim")
	}
	if !e.ReceivedAt.Equal(fixed) {
		t.Errorf("expected received_at %v, got %v", fixed, e.ReceivedAt)
	}
	if e.ID == uuid.Nil {
		t.Error("expected generated id")
	}

	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal(e.Decoded, &decoded); err != nil {
		t.Fatalf("decoded is not valid JSON: %v", err)
	}
	if decoded["Patient"]["id"] != "12345" {
		t.Errorf("expected decoded Patient.id '12345', got %v", decoded["Patient"]["id"])
	}
}

func TestService_ArchiveWithoutMSH(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store)

	if err := svc.Archive(context.Background(), "ZZZ|foo", hl7v2.Result{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, _, _ := store.List(context.Background(), 1, 0)
	if entries[0].ControlID != "" || entries[0].MessageType != "" {
		t.Errorf("expected empty header fields, got %+v", entries[0])
	}
	if string(entries[0].Decoded) != "{}" {
		t.Errorf("expected empty decoded object, got %s", entries[0].Decoded)
	}
}

func TestService_ArchiveStoreError(t *testing.T) {
	svc := NewService(NewPGStore(&mockPGConn{execErr: errors.New("boom")}))
	if err := svc.Archive(context.Background(), sampleA01, hl7v2.Decode(sampleA01)); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_ListMessages(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store)
	for i := 0; i < 3; i++ {
		svc.Archive(context.Background(), sampleA01, hl7v2.Decode(sampleA01))
	}

	h := NewHandler(svc)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7v2/messages?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data    []Entry `json:"data"`
		Total   int     `json:"total"`
		HasMore bool    `json:"has_more"`
		Links   []struct {
			Relation string `json:"relation"`
			URL      string `json:"url"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	if body.Total != 3 {
		t.Errorf("expected total 3, got %d", body.Total)
	}
	if len(body.Data) != 2 {
		t.Errorf("expected 2 entries, got %d", len(body.Data))
	}
	if !body.HasMore {
		t.Error("expected has_more to be true")
	}
	if len(body.Links) < 2 || body.Links[1].URL != "/api/v1/hl7v2/messages?limit=2&offset=2" {
		t.Errorf("unexpected links: %+v", body.Links)
	}
}

func TestHandler_ListMessages_Empty(t *testing.T) {
	h := NewHandler(NewService(NewMemoryStore(0)))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7v2/messages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}

func TestHandler_ListMessages_StoreError(t *testing.T) {
	h := NewHandler(NewService(NewPGStore(&mockPGConn{queryErr: errors.New("down")})))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7v2/messages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(NewService(NewMemoryStore(0))).RegisterRoutes(e.Group("/api/v1"))

	found := false
	for _, r := range e.Routes() {
		if r.Method == http.MethodGet && r.Path == "/api/v1/hl7v2/messages" {
			found = true
		}
	}
	if !found {
		t.Error("missing expected route: GET:/api/v1/hl7v2/messages")
	}
}
