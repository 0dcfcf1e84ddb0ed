package log

import "testing"

// Collaborators are often built as bare struct literals in tests, leaving
// their logger nil; logging through one must be a safe no-op, not a panic.
func TestNilFieldedLoggerDoesNotPanic(t *testing.T) {
	var fl *FieldedLogger

	fl.Debug("debug", "k", "v")
	fl.Info("info")
	fl.Warn("warn", "err", "boom")
	fl.Error("error")
}

func TestFieldedLoggerOrdersFields(t *testing.T) {
	fl := NewFieldedLogger(&Fields{"component": "test", "batch": 7})

	want := []any{"batch", 7, "component", "test"}
	if len(fl.fields) != len(want) {
		t.Fatalf("fields = %v", fl.fields)
	}
	for i := range want {
		if fl.fields[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, fl.fields[i], want[i])
		}
	}

	// logging with no destinations configured is a no-op
	fl.Info("message", "k", "v")
}
