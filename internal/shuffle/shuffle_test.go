package shuffle

import (
	"math/rand"
	"testing"
)

func TestPermute_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{0, 1, 2, 5, 17, 100} {
		orig := make([]int, n)
		for i := range orig {
			orig[i] = i
		}
		s := append([]int(nil), orig...)

		Permute(rng, s)

		if len(s) != n {
			t.Fatalf("n=%d: length changed to %d", n, len(s))
		}
		seen := make(map[int]bool, n)
		for _, v := range s {
			if v < 0 || v >= n || seen[v] {
				t.Fatalf("n=%d: not a permutation: %v", n, s)
			}
			seen[v] = true
		}
	}
}

func TestPermute_TinySequencesAreNoOps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var empty []string
	Permute(rng, empty)

	one := []string{"only"}
	Permute(rng, one)
	if one[0] != "only" {
		t.Fatalf("single element moved: %v", one)
	}
}

// Each element should land in each final position with roughly uniform
// frequency. With 30000 trials over 5 positions the expected count per cell is
// 6000; a ±10% band is far beyond any plausible statistical fluctuation for a
// correct Fisher-Yates.
func TestPermute_UniformPositions(t *testing.T) {
	const (
		n      = 5
		trials = 30000
	)
	rng := rand.New(rand.NewSource(42))

	counts := [n][n]int{} // counts[element][position]
	for i := 0; i < trials; i++ {
		s := []int{0, 1, 2, 3, 4}
		Permute(rng, s)
		for pos, elem := range s {
			counts[elem][pos]++
		}
	}

	expected := trials / n
	for elem := 0; elem < n; elem++ {
		for pos := 0; pos < n; pos++ {
			c := counts[elem][pos]
			if c < expected*9/10 || c > expected*11/10 {
				t.Errorf("element %d at position %d: count %d, expected ~%d", elem, pos, c, expected)
			}
		}
	}
}

func TestPermute_DeterministicWithFixedSource(t *testing.T) {
	a := []int{0, 1, 2, 3, 4, 5, 6, 7}
	b := []int{0, 1, 2, 3, 4, 5, 6, 7}

	Permute(rand.New(rand.NewSource(7)), a)
	Permute(rand.New(rand.NewSource(7)), b)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different permutations: %v vs %v", a, b)
		}
	}
}
