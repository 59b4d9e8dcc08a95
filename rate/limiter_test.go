package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 10 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(burst, 100*time.Minute, lim)
	defer r.Close()

	tooshort := 1 * time.Millisecond

	client := "cart_01"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	client := "cart_01"
	burst := 10

	interval := 100 * time.Millisecond
	lim := Every(interval)

	tooshort := 10 * time.Millisecond

	shortest := 1 * time.Millisecond

	expected := []bool{true, true, true, true, true, true, true, true, true, true}
	waits := []time.Duration{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	expected = append(expected, false, true, true, false, false, false)
	waits = append(waits, interval, interval, tooshort, tooshort, shortest, shortest)

	rr := NewLimiter(burst, 100*time.Minute, lim)
	defer rr.Close()
	for i, exp := range expected {
		if got := rr.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	r := NewLimiter(1, 100*time.Minute, Every(time.Hour))
	defer r.Close()

	if !r.Check("cart_a") {
		t.Fatal("first call on cart_a should pass")
	}
	if r.Check("cart_a") {
		t.Fatal("second call on cart_a should be limited")
	}
	if !r.Check("cart_b") {
		t.Fatal("cart_b should not share cart_a's bucket")
	}
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	r := NewLimiter(1, time.Millisecond, Every(time.Hour))
	defer r.Close()

	r.Check("cart_a")
	time.Sleep(5 * time.Millisecond)
	r.evict()

	if n := r.size(); n != 0 {
		t.Fatalf("expected idle key to be evicted, %d left", n)
	}
	if !r.Check("cart_a") {
		t.Fatal("an evicted key starts with a full bucket")
	}
}
