package models

import "testing"

func TestItemKindValid(t *testing.T) {
	for _, k := range []ItemKind{KindRoot, KindEpic, KindTask} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if ItemKind("story").Valid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestItemStatusTerminal(t *testing.T) {
	tests := []struct {
		status   ItemStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusActive, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestIsLeaf(t *testing.T) {
	if !(&WorkItem{Kind: KindTask}).IsLeaf() {
		t.Error("task should be a leaf")
	}
	if (&WorkItem{Kind: KindEpic}).IsLeaf() {
		t.Error("epic should not be a leaf")
	}
	if (&WorkItem{Kind: KindRoot}).IsLeaf() {
		t.Error("root should not be a leaf")
	}
}

func TestCheckpointMarker(t *testing.T) {
	if got := CheckpointMarker("ROOT-9"); got != "checkpoint:ROOT-9" {
		t.Errorf("CheckpointMarker = %q", got)
	}
}
