package engine

import (
	"testing"

	"github.com/steve-o/openpgm-sub004/pgmtime"
)

func TestNewEngineRefCount(t *testing.T) {
	e := NewEngine(pgmtime.Monotonic)
	if e.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", e.RefCount())
	}
	e.Retain()
	if e.RefCount() != 2 {
		t.Fatalf("RefCount() after Retain = %d, want 2", e.RefCount())
	}
	if e.Release() {
		t.Fatal("Release() should not report last reference yet")
	}
	if !e.Release() {
		t.Fatal("Release() should report last reference")
	}
}

func TestEngineClockNotNil(t *testing.T) {
	e := NewEngine(pgmtime.Monotonic)
	if e.Clock() == nil {
		t.Fatal("Clock() returned nil")
	}
	a := e.Clock().NowMicros()
	b := e.Clock().NowMicros()
	if b < a {
		t.Fatal("clock went backwards")
	}
}

func TestInitSharedSingleton(t *testing.T) {
	e1 := Init(pgmtime.Monotonic)
	e2 := Init(pgmtime.Monotonic)
	if e1 != e2 {
		t.Fatal("Init should return the same shared Engine")
	}
}
