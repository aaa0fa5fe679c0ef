// Package archive stores decoded HL7v2 messages alongside their raw text so
// they can be listed and audited later.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

// Entry is one archived message.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ControlID   string          `json:"control_id"`
	MessageType string          `json:"message_type"`
	Raw         string          `json:"raw"`
	Decoded     json.RawMessage `json:"decoded"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// Store persists archive entries.
type Store interface {
	Save(ctx context.Context, e *Entry) error
	// List returns entries newest first together with the total count.
	List(ctx context.Context, limit, offset int) ([]*Entry, int, error)
}

// Service turns decoded results into archive entries. It satisfies
// hl7v2.Archiver.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service writing to store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Archive stores raw and its decoded result. The control id and message type
// are copied from the MSH record when present.
func (s *Service) Archive(ctx context.Context, raw string, res hl7v2.Result) error {
	decoded, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal decoded message: %w", err)
	}

	e := &Entry{
		ID:         uuid.New(),
		Raw:        raw,
		Decoded:    decoded,
		ReceivedAt: s.now().UTC(),
	}
	if msh, ok := res.Record("MSH"); ok {
		e.ControlID = msh.Text("messageControlId")
		e.MessageType = msh.Text("messageType")
	}

	if err := s.store.Save(ctx, e); err != nil {
		return fmt.Errorf("archive message %s: %w", e.ID, err)
	}
	return nil
}

// List returns a page of archived entries.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	return s.store.List(ctx, limit, offset)
}
