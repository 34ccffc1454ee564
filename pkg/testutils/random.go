// Package testutils holds helpers for randomized, reproducible tests.
package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"testing"
	"time"
)

var Seed uint64 //nolint:gochecknoglobals // intentionally global for test reproducibility

func init() { //nolint:gochecknoinits // intentionally using init to set seed
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		parsed, err := strconv.ParseUint(envSeed, 0, 64)
		if err == nil { // Only set using the env if it's valid
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

// NewRand returns a PRNG seeded from Seed, so a failing run can be replayed with TEST_SEED.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	return rand.New(rand.NewPCG(Seed, Seed)) //nolint:gosec // weak RNG is fine for tests
}

// RandOpWeights assigns a random weight in [1, 100] to each operation name.
func RandOpWeights(r *rand.Rand, ops []string) map[string]int {
	weights := make(map[string]int, len(ops))
	for _, op := range ops {
		weights[op] = r.IntN(100) + 1
	}
	return weights
}

// RandWeightedOp picks an operation from weights, proportionally to each weight.
// Iteration happens over the sorted keys so a seed always yields the same sequence.
func RandWeightedOp(r *rand.Rand, weights map[string]int) string {
	keys := make([]string, 0, len(weights))
	total := 0
	for k, w := range weights {
		keys = append(keys, k)
		total += w
	}
	slices.Sort(keys)

	pick := r.IntN(total)
	for _, k := range keys {
		if pick < weights[k] {
			return k
		}
		pick -= weights[k]
	}
	panic("unreachable")
}

// RandString generates a random alphanumeric string of the given length.
func RandString(r *rand.Rand, length int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[r.IntN(len(chars))]
	}
	return string(b)
}

// RandWord generates a random lower-case word of 1 to maxLen letters.
func RandWord(r *rand.Rand, maxLen int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, r.IntN(maxLen)+1)
	for i := range b {
		b[i] = letters[r.IntN(len(letters))]
	}
	return string(b)
}
