package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("DSE_ENV_STRING_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("DSE_ENV_STRING_KEY", "value")
	if got := String("DSE_ENV_STRING_KEY", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestString_BlankKeepsDefault(t *testing.T) {
	t.Setenv("DSE_ENV_STRING_BLANK", "   ")
	if got := String("DSE_ENV_STRING_BLANK", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("DSE_ENV_DURATION_MISSING", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration()=%v err=%v, want 5s", got, err)
	}

	t.Setenv("DSE_ENV_DURATION_KEY", "250ms")
	got, err = Duration("DSE_ENV_DURATION_KEY", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v err=%v, want 250ms", got, err)
	}

	t.Setenv("DSE_ENV_DURATION_BAD", "not-a-duration")
	if _, err := Duration("DSE_ENV_DURATION_BAD", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("DSE_ENV_BOOL_KEY", "false")
	got, err := Bool("DSE_ENV_BOOL_KEY", true)
	if err != nil || got {
		t.Fatalf("Bool()=%v err=%v, want false", got, err)
	}
	t.Setenv("DSE_ENV_BOOL_BAD", "nope")
	if _, err := Bool("DSE_ENV_BOOL_BAD", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("DSE_ENV_INT_MISSING", 42)
	if err != nil || got != 42 {
		t.Fatalf("Int()=%v err=%v, want 42", got, err)
	}
	t.Setenv("DSE_ENV_INT_KEY", "7")
	got, err = Int("DSE_ENV_INT_KEY", 42)
	if err != nil || got != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", got, err)
	}
}

func TestInts(t *testing.T) {
	t.Setenv("DSE_ENV_INTS_KEY", "50, 100,,200")
	got, err := Ints("DSE_ENV_INTS_KEY", nil)
	if err != nil {
		t.Fatalf("Ints() err=%v", err)
	}
	want := []int{50, 100, 200}
	if len(got) != len(want) {
		t.Fatalf("Ints()=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ints()=%v, want %v", got, want)
		}
	}

	t.Setenv("DSE_ENV_INTS_BAD", "1,x")
	if _, err := Ints("DSE_ENV_INTS_BAD", nil); err == nil {
		t.Fatalf("Ints() expected error")
	}
}
