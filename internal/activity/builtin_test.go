package activity

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	for _, name := range []string{"hello", "calculate_primes", "heavy_computation"} {
		if _, err := r.Lookup(name); err != nil {
			t.Fatalf("builtin %q missing: %v", name, err)
		}
	}
	if _, err := r.Lookup("nope"); err == nil {
		t.Fatalf("want error for unregistered activity")
	}
}

func TestHello(t *testing.T) {
	out, err := Hello(context.Background(), json.RawMessage(`"City 7"`))
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	var s string
	_ = json.Unmarshal(out, &s)
	if s != "Hello City 7" {
		t.Fatalf("greeting: %q", s)
	}
}

func TestCalculatePrimes(t *testing.T) {
	out, err := CalculatePrimes(context.Background(), json.RawMessage(`10`))
	if err != nil {
		t.Fatalf("primes: %v", err)
	}
	var res PrimesResult
	_ = json.Unmarshal(out, &res)
	want := []int{2, 3, 5, 7}
	if res.Count != 4 || len(res.Primes) != 4 {
		t.Fatalf("primes up to 10: %+v", res)
	}
	for i, p := range want {
		if res.Primes[i] != p {
			t.Fatalf("prime %d: want %d got %d", i, p, res.Primes[i])
		}
	}
}

func TestCalculatePrimesRejectsBadInput(t *testing.T) {
	if _, err := CalculatePrimes(context.Background(), json.RawMessage(`"ten"`)); err == nil {
		t.Fatalf("want input error")
	}
}

func TestHeavyComputation(t *testing.T) {
	in, _ := json.Marshal(HeavyInput{Seed: 1, Size: 8})
	out, err := HeavyComputation(context.Background(), in)
	if err != nil {
		t.Fatalf("heavy: %v", err)
	}
	var res HeavyResult
	_ = json.Unmarshal(out, &res)
	if res.Sum <= 0 {
		t.Fatalf("sum of positive random matrix product must be > 0: %+v", res)
	}
}

func TestHeavyComputationBareSeed(t *testing.T) {
	// orchestrations pass the slot index as a bare int
	if _, err := HeavyComputation(context.Background(), json.RawMessage(`3`)); err != nil {
		t.Fatalf("bare seed input: %v", err)
	}
}
