package systemd

import (
	"errors"
	"testing"
)

func TestStatesSent(t *testing.T) {
	orig := notify
	t.Cleanup(func() { notify = orig })

	var got []string
	notify = func(_ bool, state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}

	if ok, err := Ready(); !ok || err != nil {
		t.Fatalf("Ready = %v, %v", ok, err)
	}
	_, _ = Status("%d subscribers", 3)
	_, _ = Stopping()

	want := []string{"READY=1", "STATUS=3 subscribers", "STOPPING=1"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNotifyError(t *testing.T) {
	orig := notify
	t.Cleanup(func() { notify = orig })
	notify = func(bool, string) (bool, error) { return false, errors.New("socket gone") }

	if _, err := Ready(); err == nil {
		t.Fatalf("expected error")
	}
}
