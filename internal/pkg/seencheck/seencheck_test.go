package seencheck

import "testing"

func TestSeencheck(t *testing.T) {
	if err := Start(t.TempDir()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer Close()

	if IsSeen("12345_deadbeef") {
		t.Error("IsSeen() = true for fresh database")
	}

	MarkSeen("12345_deadbeef", "sha256:abc")

	if !IsSeen("12345_deadbeef") {
		t.Error("IsSeen() = false after MarkSeen")
	}

	if IsSeen("67890_cafebabe") {
		t.Error("IsSeen() = true for unrecorded ID")
	}

	if got := SeenCount(); got != 1 {
		t.Errorf("SeenCount() = %d, want 1", got)
	}
}
