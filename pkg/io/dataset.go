package io

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// Split holds the row indices of a train/test partition, in ascending order.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit holds out testSize of the rows for testing, keeping the share of
// every label the same in both partitions up to rounding. The same labels, size and
// seed always produce the same split.
func StratifiedSplit(labels []int, testSize float64, seed uint64) (Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return Split{}, fmt.Errorf("test size must be in (0, 1), got %f", testSize)
	}
	n := len(labels)
	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	if nTest == 0 || nTest >= n {
		return Split{}, fmt.Errorf("cannot hold out %d of %d rows", nTest, n)
	}

	groups := map[int][]int{}
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	classes := make([]int, 0, len(groups))
	for l := range groups {
		classes = append(classes, l)
	}
	sort.Ints(classes)

	// proportional allocation, remainders to the largest fractional parts
	alloc := make(map[int]int, len(classes))
	type remainder struct {
		class int
		frac  float64
	}
	var remainders []remainder
	assigned := 0
	for _, c := range classes {
		exact := float64(len(groups[c])) * float64(nTest) / float64(n)
		alloc[c] = int(math.Floor(exact))
		assigned += alloc[c]
		remainders = append(remainders, remainder{class: c, frac: exact - math.Floor(exact)})
	}
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})
	for i := 0; assigned < nTest; i = (i + 1) % len(remainders) {
		c := remainders[i].class
		if alloc[c] < len(groups[c]) {
			alloc[c]++
			assigned++
		}
	}

	r := rand.New(rand.NewSource(seed))
	var split Split
	for _, c := range classes {
		indices := append([]int(nil), groups[c]...)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		split.Test = append(split.Test, indices[:alloc[c]]...)
		split.Train = append(split.Train, indices[alloc[c]:]...)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}
