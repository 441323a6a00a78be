package s3blob

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// recordingWriter captures uploads and which upload path was taken.
type recordingWriter struct {
	puts       []string
	multiparts []string
	lastBody   []byte
	lastType   string
}

func (w *recordingWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, path)
	w.lastBody = body
	w.lastType = contentType
	return nil
}

func (w *recordingWriter) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multiparts = append(w.multiparts, path)
	w.lastBody = body
	w.lastType = contentType
	return nil
}

type fakeOrderStore struct {
	orders []domain.Order
}

func (s *fakeOrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return s.orders, nil
}

type fakeFillStore struct {
	fills []domain.Fill
}

func (s *fakeFillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	return s.fills, nil
}

type fakeAuditStore struct {
	events []string
}

func (s *fakeAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestUploadSwitchesToMultipart(t *testing.T) {
	w := &recordingWriter{}
	a := &ArchiveImpl{writer: w}
	ctx := context.Background()

	if err := a.upload(ctx, "archive/orders/2026-01.jsonl", []byte("small\n")); err != nil {
		t.Fatalf("small upload: %v", err)
	}
	if len(w.puts) != 1 || len(w.multiparts) != 0 {
		t.Fatalf("small payload: puts=%v multiparts=%v, want single Put", w.puts, w.multiparts)
	}
	if w.lastType != jsonlContentType {
		t.Fatalf("content type = %q, want %q", w.lastType, jsonlContentType)
	}

	big := bytes.Repeat([]byte{'x'}, multipartThreshold)
	if err := a.upload(ctx, "archive/fills/2026-01.jsonl", big); err != nil {
		t.Fatalf("big upload: %v", err)
	}
	if len(w.multiparts) != 1 || w.multiparts[0] != "archive/fills/2026-01.jsonl" {
		t.Fatalf("big payload: multiparts=%v, want the fills archive", w.multiparts)
	}
	if w.lastType != jsonlContentType {
		t.Fatalf("multipart content type = %q, want %q", w.lastType, jsonlContentType)
	}
}

func TestArchiveOrders(t *testing.T) {
	cutoff := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	w := &recordingWriter{}
	audit := &fakeAuditStore{}
	a := NewArchiver(w, &fakeOrderStore{orders: []domain.Order{
		{ID: 1, Asset: "BTC", Status: domain.OrderStatusFilled},
		{ID: 2, Asset: "BTC", Status: domain.OrderStatusCancelled},
	}}, &fakeFillStore{}, audit)

	n, err := a.ArchiveOrders(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("archive orders: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived count = %d, want 2", n)
	}
	if len(w.puts) != 1 || w.puts[0] != "archive/orders/2026-02.jsonl" {
		t.Fatalf("uploads = %v, want [archive/orders/2026-02.jsonl]", w.puts)
	}
	if lines := bytes.Count(w.lastBody, []byte{'\n'}); lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.orders" {
		t.Fatalf("audit events = %v, want [archive.orders]", audit.events)
	}
}

func TestArchiveFillsEmpty(t *testing.T) {
	w := &recordingWriter{}
	a := NewArchiver(w, &fakeOrderStore{}, &fakeFillStore{}, &fakeAuditStore{})

	n, err := a.ArchiveFills(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("archive fills: %v", err)
	}
	if n != 0 || len(w.puts) != 0 || len(w.multiparts) != 0 {
		t.Fatalf("empty month produced an upload: n=%d puts=%v multiparts=%v", n, w.puts, w.multiparts)
	}
}
