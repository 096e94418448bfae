// internal/testutil/helpers.go
package testutil

import (
	"testing"
)

func label(msg []string, fallback string) string {
	if len(msg) > 0 {
		return msg[0]
	}
	return fallback
}

// AssertEqual verifica que dos valores sean iguales.
func AssertEqual(t *testing.T, got, want interface{}, msg ...string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", label(msg, "AssertEqual"), got, want)
	}
}

// AssertNotEqual verifica que dos valores sean diferentes.
func AssertNotEqual(t *testing.T, got, want interface{}, msg ...string) {
	t.Helper()
	if got == want {
		t.Errorf("%s: got %v, should not equal %v", label(msg, "AssertNotEqual"), got, want)
	}
}

// AssertNotNil verifica que un valor no sea nil.
func AssertNotNil(t *testing.T, got interface{}, msg ...string) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: expected non-nil value", label(msg, "AssertNotNil"))
	}
}

// AssertError verifica que un error no sea nil.
func AssertError(t *testing.T, err error, msg ...string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", label(msg, "AssertError"))
	}
}

// AssertNoError verifica que no haya error.
func AssertNoError(t *testing.T, err error, msg ...string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", label(msg, "AssertNoError"), err)
	}
}

// AssertTrue verifica que una condición sea verdadera.
func AssertTrue(t *testing.T, condition bool, msg ...string) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected true, got false", label(msg, "AssertTrue"))
	}
}

// AssertFalse verifica que una condición sea falsa.
func AssertFalse(t *testing.T, condition bool, msg ...string) {
	t.Helper()
	if condition {
		t.Errorf("%s: expected false, got true", label(msg, "AssertFalse"))
	}
}
