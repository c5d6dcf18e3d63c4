package gaps_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/gaps"
)

func TestFindMissing(t *testing.T) {
	tests := []struct {
		name string
		in   []int32
		want []int32
	}{
		{"empty", nil, nil},
		{"single", []int32{9}, nil},
		{"contiguous", []int32{3, 4, 5, 6}, nil},
		{"one gap", []int32{1, 2, 4, 5}, []int32{3}},
		{"unordered", []int32{5, 1, 4, 2}, []int32{3}},
		{"several gaps", []int32{1, 3, 7}, []int32{2, 4, 5, 6}},
		{"duplicates", []int32{6, 7, 7, 8}, nil},
		{"negative", []int32{-2, 1}, []int32{-1, 0}},
		{"past one byte", []int32{254, 258}, []int32{255, 256, 257}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gaps.FindMissing(tt.in))
		})
	}
}

func TestFindMissing_MatchesNaive(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		set := map[int32]bool{}
		var in []int32
		for i := 0; i < 1+r.Intn(40); i++ {
			v := int32(r.Intn(120)) - 20
			if !set[v] {
				set[v] = true
				in = append(in, v)
			}
		}

		sorted := append([]int32(nil), in...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var want []int32
		for v := sorted[0]; v <= sorted[len(sorted)-1]; v++ {
			if !set[v] {
				want = append(want, v)
			}
		}

		assert.Equal(t, want, gaps.FindMissing(in), "input %v", in)
	}
}

func TestFindMissing_Idempotent(t *testing.T) {
	in := []int32{10, 2, 5, 2}
	orig := append([]int32(nil), in...)

	first := gaps.FindMissing(in)
	second := gaps.FindMissing(in)

	assert.Equal(t, first, second)
	assert.Equal(t, orig, in)
}

func TestSpan(t *testing.T) {
	assert.Equal(t, int64(0), gaps.Span(nil))
	assert.Equal(t, int64(1), gaps.Span([]int32{4}))
	assert.Equal(t, int64(5), gaps.Span([]int32{5, 1, 3}))
	assert.Equal(t, int64(1)<<32, gaps.Span([]int32{-1 << 31, 1<<31 - 1}))
}
