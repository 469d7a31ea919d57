package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RegisterBuiltins installs the bundled activities.
func RegisterBuiltins(r *Registry) {
	r.Register("hello", Hello)
	r.Register("calculate_primes", CalculatePrimes)
	r.Register("heavy_computation", HeavyComputation)
}

// Hello greets the named city. Input: JSON string.
func Hello(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
	var city string
	if err := json.Unmarshal(input, &city); err != nil {
		return nil, fmt.Errorf("hello: input must be a string: %w", err)
	}
	return json.Marshal("Hello " + city)
}

// PrimesResult is the calculate_primes output.
type PrimesResult struct {
	Count  int   `json:"count"`
	Primes []int `json:"primes"`
}

// CalculatePrimes returns all primes up to the input limit.
func CalculatePrimes(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
	var limit int
	if err := json.Unmarshal(input, &limit); err != nil {
		return nil, fmt.Errorf("calculate_primes: input must be an int: %w", err)
	}
	var primes []int
	for num := 2; num <= limit; num++ {
		isPrime := true
		for i := 2; i <= int(math.Sqrt(float64(num))); i++ {
			if num%i == 0 {
				isPrime = false
				break
			}
		}
		if isPrime {
			primes = append(primes, num)
		}
	}
	return json.Marshal(PrimesResult{Count: len(primes), Primes: primes})
}

// HeavyInput tunes the heavy_computation workload.
type HeavyInput struct {
	// Seed distinguishes task slots; the numeric work itself is not
	// required to be deterministic.
	Seed int `json:"seed"`
	// Size is the square matrix dimension. Zero means the default.
	Size int `json:"size,omitempty"`
}

// HeavyResult is the heavy_computation output.
type HeavyResult struct {
	Sum       float64 `json:"sum"`
	ElapsedMs int64   `json:"elapsedMs"`
}

const defaultMatrixSize = 64

// HeavyComputation multiplies two random square matrices and returns the
// element sum of the product. CPU- and memory-bound on purpose.
func HeavyComputation(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in HeavyInput
	if err := json.Unmarshal(input, &in); err != nil {
		// plain ints are accepted as a bare seed
		var seed int
		if err2 := json.Unmarshal(input, &seed); err2 != nil {
			return nil, fmt.Errorf("heavy_computation: bad input: %w", err)
		}
		in = HeavyInput{Seed: seed}
	}
	size := in.Size
	if size <= 0 {
		size = defaultMatrixSize
	}

	rng := rand.New(rand.NewSource(int64(in.Seed) + time.Now().UnixNano()))
	a := randomMatrix(rng, size)
	b := randomMatrix(rng, size)

	start := time.Now()
	sum := 0.0
	for i := 0; i < size; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for j := 0; j < size; j++ {
			acc := 0.0
			for k := 0; k < size; k++ {
				acc += a[i*size+k] * b[k*size+j]
			}
			sum += acc
		}
	}
	return json.Marshal(HeavyResult{Sum: sum, ElapsedMs: time.Since(start).Milliseconds()})
}

func randomMatrix(rng *rand.Rand, size int) []float64 {
	m := make([]float64, size*size)
	for i := range m {
		m[i] = rng.Float64()
	}
	return m
}
