package admission

import (
	"sync"
	"testing"
)

func TestLockMapSerializesPerKey(t *testing.T) {
	locks := newLockMap()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("same")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := len(locks.entries); n != 0 {
		t.Errorf("%d lock entries left after release, want 0", n)
	}
}

func TestLockMapIndependentKeys(t *testing.T) {
	locks := newLockMap()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done // key b must not block while a is held
	unlockA()
}
