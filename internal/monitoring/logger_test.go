package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("muted logger should not reach the previous logger")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestCapture(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var c Capture
	SetLogger(c.Logf)
	Logf("binder: %s", "ready")
	Logf("count=%d", 3)

	got := c.Lines()
	if len(got) != 2 || got[0] != "binder: ready" || got[1] != "count=3" {
		t.Fatalf("Lines() = %q", got)
	}

	c.Reset()
	if n := len(c.Lines()); n != 0 {
		t.Errorf("after Reset got %d lines, want 0", n)
	}
}
