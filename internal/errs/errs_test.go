package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/playwright-community/playwright-go"
	"pgregory.net/rapid"
)

var allCodes = []Code{
	ElementNotFound,
	Timeout,
	PageClosed,
	AssertionFailed,
	InvalidArgument,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error lost its cause")
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	untyped := errors.New("boom")
	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != "internal error" {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q", got)
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
}

func TestFromPlaywright_Classification(t *testing.T) {
	t.Parallel()

	timeout := fmt.Errorf("%w: locator.click: Timeout 30000ms exceeded", playwright.ErrTimeout)
	if got := CodeOf(FromPlaywright(timeout, "click")); got != Timeout {
		t.Fatalf("timeout classified as %q", got)
	}

	closed := fmt.Errorf("%w: page has been closed", playwright.ErrTargetClosed)
	if got := CodeOf(FromPlaywright(closed, "click")); got != PageClosed {
		t.Fatalf("target closed classified as %q", got)
	}

	if got := CodeOf(FromPlaywright(errors.New("weird"), "click")); got != Internal {
		t.Fatalf("unknown error classified as %q", got)
	}

	coded := New(ElementNotFound, "no match")
	if got := FromPlaywright(coded, "click"); got != coded {
		t.Fatal("already-coded error should pass through unchanged")
	}

	if FromPlaywright(nil, "click") != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestRecoverableAndRetryable(t *testing.T) {
	t.Parallel()
	cases := map[Code][2]bool{
		ElementNotFound: {true, true},
		Timeout:         {true, true},
		Unavailable:     {true, true},
		AssertionFailed: {true, false},
		PageClosed:      {false, false},
		InvalidArgument: {false, false},
		Internal:        {false, false},
	}
	for code, want := range cases {
		err := New(code, "x")
		if got := Recoverable(err); got != want[0] {
			t.Errorf("Recoverable(%s) = %v, want %v", code, got, want[0])
		}
		if got := Retryable(err); got != want[1] {
			t.Errorf("Retryable(%s) = %v, want %v", code, got, want[1])
		}
	}
}
