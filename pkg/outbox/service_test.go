package outbox

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	if err := conn.Exec(ddl).Error; err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return conn
}

func TestEmitQueuesEnvelope(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	loadID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventLoadPublished,
			AggregateType: enums.AggregateLoad,
			AggregateID:   loadID,
			Data:          map[string]any{"referenceNumber": "HB-100"},
		})
	})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	var rows []models.OutboxEvent
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if rows[0].EventType != enums.EventLoadPublished {
		t.Fatalf("unexpected event type %s", rows[0].EventType)
	}
	if rows[0].AggregateID != loadID {
		t.Fatalf("unexpected aggregate id %s", rows[0].AggregateID)
	}
	if rows[0].PublishedAt != nil {
		t.Fatal("new events must start unpublished")
	}
}

func TestEmitIfNotExistsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	event := DomainEvent{
		EventType:     enums.EventLoadCancelled,
		AggregateType: enums.AggregateLoad,
		AggregateID:   uuid.New(),
		Data:          map[string]any{"reason": "shipper withdrew"},
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		if err != nil {
			t.Fatalf("emit %d failed: %v", i, err)
		}
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row after duplicate emit, got %d", count)
	}
}
