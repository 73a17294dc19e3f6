package testutil

import (
	"testing"
)

func TestWaitForChannel_Closed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	WaitForChannel(t, ch, DefaultTestTimeout, "closed channel should be received immediately")
}

func TestAssertNoSignal_Idle(t *testing.T) {
	AssertNoSignal(t, make(chan struct{}), ShortTestTimeout, "idle channel must not fire")
}
