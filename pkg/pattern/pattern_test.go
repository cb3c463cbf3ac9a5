package pattern

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		want    []float32
	}{
		{
			name:    "const",
			pattern: Const{Value: 10, N: 5},
			want:    []float32{10, 10, 10, 10, 10},
		},
		{
			name:    "const - zero samples",
			pattern: Const{Value: 10, N: 0},
			want:    nil,
		},
		{
			name:    "const - negative samples",
			pattern: Const{Value: 10, N: -3},
			want:    nil,
		},
		{
			name:    "increasing",
			pattern: Increasing{Start: 10, Step: 2, Max: 20},
			want:    []float32{10, 12, 14, 16, 18, 20},
		},
		{
			name:    "increasing - bound not on a step",
			pattern: Increasing{Start: 0, Step: 3, Max: 10},
			want:    []float32{0, 3, 6, 9},
		},
		{
			name:    "increasing - single value",
			pattern: Increasing{Start: 5, Step: 1, Max: 5},
			want:    []float32{5},
		},
		{
			name:    "increasing - invalid interval",
			pattern: Increasing{Start: 20, Step: 2, Max: 10},
			want:    nil,
		},
		{
			name:    "increasing - zero step",
			pattern: Increasing{Start: 0, Step: 0, Max: 10},
			want:    nil,
		},
		{
			name:    "decreasing",
			pattern: Decreasing{Start: 20, Step: 2, Min: 10},
			want:    []float32{20, 18, 16, 14, 12, 10},
		},
		{
			name:    "decreasing - invalid interval",
			pattern: Decreasing{Start: 10, Step: 2, Min: 20},
			want:    nil,
		},
		{
			name:    "decreasing - negative step",
			pattern: Decreasing{Start: 10, Step: -1, Min: 0},
			want:    nil,
		},
		{
			name:    "random - invalid interval",
			pattern: Random{Min: 20, Max: 10, N: 5},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sequence(tt.pattern, nil, 0))
		})
	}
}

func TestRandom_WithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	p := Random{Min: 10, Max: 20, N: 1000}

	got := Sequence(p, rnd, 0)
	require.Len(t, got, 1000)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, float32(10))
		assert.LessOrEqual(t, v, float32(20))
	}
}

func TestRandom_DegenerateInterval(t *testing.T) {
	got := Sequence(Random{Min: 7, Max: 7, N: 3}, nil, 0)
	assert.Equal(t, []float32{7, 7, 7}, got)
}

func TestRandom_Seeded(t *testing.T) {
	p := Random{Min: -1, Max: 1, N: 16}
	a := Sequence(p, rand.New(rand.NewPCG(42, 0)), 0)
	b := Sequence(p, rand.New(rand.NewPCG(42, 0)), 0)
	assert.Equal(t, a, b)
}

func TestSequence_Limit(t *testing.T) {
	got := Sequence(Increasing{Start: 0, Step: 1, Max: 1e6}, nil, 4)
	assert.Equal(t, []float32{0, 1, 2, 3}, got)
}

func TestAt_NegativeTick(t *testing.T) {
	for _, p := range []Pattern{
		Const{Value: 1, N: 1},
		Increasing{Start: 0, Step: 1, Max: 1},
		Decreasing{Start: 1, Step: 1, Min: 0},
		Random{Min: 0, Max: 1, N: 1},
	} {
		_, ok := p.At(-1, nil)
		assert.False(t, ok, p.Kind().String())
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "const", KindConst.String())
	assert.Equal(t, "increasing", KindIncreasing.String())
	assert.Equal(t, "decreasing", KindDecreasing.String())
	assert.Equal(t, "random", KindRandom.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "increasing(start=10, step=2, max=20)", Describe(Increasing{Start: 10, Step: 2, Max: 20}))
	assert.Equal(t, "const(value=1.5, n=3)", Describe(Const{Value: 1.5, N: 3}))
	assert.Equal(t, "none", Describe(nil))
}
