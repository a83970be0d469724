package snapshot

import (
	"bytes"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/models"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := &models.SnapshotPayload{
		SessionID: "sess-1",
		CompactID: "compact-7",
		ActiveSubtasks: []models.Subtask{
			{
				ID:          "st-1",
				TaskID:      "task-1",
				SessionID:   "sess-1",
				AgentType:   "developer",
				AgentID:     "agent-1",
				Description: "refactor the store layer",
				Status:      models.SubtaskStatusRunning,
				Priority:    5,
				BlockedBy:   []string{"st-0"},
			},
		},
		ModifiedFiles: []string{"internal/store/store.go"},
		SavedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	blob, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.HasPrefix(blob, magic) {
		t.Error("encoded blob missing format magic")
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.SessionID != payload.SessionID || got.CompactID != payload.CompactID {
		t.Errorf("identity fields lost: %+v", got)
	}
	if len(got.ActiveSubtasks) != 1 || got.ActiveSubtasks[0].ID != "st-1" {
		t.Errorf("subtasks lost: %+v", got.ActiveSubtasks)
	}
	if !got.SavedAt.Equal(payload.SavedAt) {
		t.Errorf("saved_at = %v, want %v", got.SavedAt, payload.SavedAt)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	if _, err := Decode([]byte("not a snapshot")); err == nil {
		t.Error("expected error for missing magic")
	}
	if _, err := Decode(nil); err == nil {
		t.Error("expected error for empty blob")
	}
}

func TestDecodeRejectsCorruptedBody(t *testing.T) {
	blob := append(append([]byte{}, magic...), []byte("garbage after magic")...)
	if _, err := Decode(blob); err == nil {
		t.Error("expected error for corrupted gzip body")
	}
}
