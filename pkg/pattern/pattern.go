// Package pattern evaluates the synthetic sample patterns a simulated sensor can produce.
//
// A Pattern is a closed set of variants (Const, Increasing, Decreasing, Random). Each variant
// maps a 0-based generation tick index k to a value, or reports that the run is exhausted.
// Patterns carry no timing; the generation clock decides when tick k happens.
package pattern

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"
)

// Kind identifies a pattern variant. The numeric values are the wire codes used by the
// start-pattern command.
type Kind int

const (
	KindConst      Kind = 0
	KindIncreasing Kind = 1
	KindDecreasing Kind = 2
	KindRandom     Kind = 3
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConst:
		return "const"
	case KindIncreasing:
		return "increasing"
	case KindDecreasing:
		return "decreasing"
	case KindRandom:
		return "random"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultSequenceLimit caps Sequence when the caller passes no limit.
const DefaultSequenceLimit = 1 << 20

// Pattern is implemented only by the variants in this package.
type Pattern interface {
	// Kind returns the variant tag.
	Kind() Kind
	// At returns the value for tick k, or false once the run is exhausted.
	// rnd is only consulted by Random; nil falls back to the global source.
	At(k int, rnd *rand.Rand) (float32, bool)

	sealed()
}

var (
	_ Pattern = Const{}
	_ Pattern = Increasing{}
	_ Pattern = Decreasing{}
	_ Pattern = Random{}
)

// Const repeats Value for N ticks.
type Const struct {
	Value float32
	N     int
}

func (Const) Kind() Kind { return KindConst }
func (Const) sealed()    {}

func (p Const) At(k int, _ *rand.Rand) (float32, bool) {
	if k < 0 || k >= p.N {
		return 0, false
	}
	return p.Value, true
}

// Increasing yields Start + k*Step while the value does not exceed Max.
type Increasing struct {
	Start float32
	Step  float32
	Max   float32
}

func (Increasing) Kind() Kind { return KindIncreasing }
func (Increasing) sealed()    {}

func (p Increasing) At(k int, _ *rand.Rand) (float32, bool) {
	if k < 0 || p.Step <= 0 || p.Start > p.Max {
		return 0, false
	}
	v := p.Start + float32(k)*p.Step
	if v > p.Max {
		return 0, false
	}
	return v, true
}

// Decreasing yields Start - k*Step while the value is not below Min.
type Decreasing struct {
	Start float32
	Step  float32
	Min   float32
}

func (Decreasing) Kind() Kind { return KindDecreasing }
func (Decreasing) sealed()    {}

func (p Decreasing) At(k int, _ *rand.Rand) (float32, bool) {
	if k < 0 || p.Step <= 0 || p.Start < p.Min {
		return 0, false
	}
	v := p.Start - float32(k)*p.Step
	if v < p.Min {
		return 0, false
	}
	return v, true
}

// Random draws N independent values uniformly from [Min, Max].
type Random struct {
	Min float32
	Max float32
	N   int
}

func (Random) Kind() Kind { return KindRandom }
func (Random) sealed()    {}

func (p Random) At(k int, rnd *rand.Rand) (float32, bool) {
	if k < 0 || k >= p.N || p.Min > p.Max {
		return 0, false
	}
	var u float32
	if rnd != nil {
		u = rnd.Float32()
	} else {
		u = rand.Float32()
	}
	// Float32 is half-open; the clamp keeps rounding from stepping past Max.
	return math32.Min(p.Min+u*(p.Max-p.Min), p.Max), true
}

// Sequence evaluates p from tick 0 until it is exhausted or limit values were produced.
// A limit <= 0 means DefaultSequenceLimit.
func Sequence(p Pattern, rnd *rand.Rand, limit int) []float32 {
	if limit <= 0 {
		limit = DefaultSequenceLimit
	}
	var out []float32
	for k := 0; k < limit; k++ {
		v, ok := p.At(k, rnd)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Describe renders p for logs.
func Describe(p Pattern) string {
	switch p := p.(type) {
	case Const:
		return fmt.Sprintf("const(value=%g, n=%d)", p.Value, p.N)
	case Increasing:
		return fmt.Sprintf("increasing(start=%g, step=%g, max=%g)", p.Start, p.Step, p.Max)
	case Decreasing:
		return fmt.Sprintf("decreasing(start=%g, step=%g, min=%g)", p.Start, p.Step, p.Min)
	case Random:
		return fmt.Sprintf("random(min=%g, max=%g, n=%d)", p.Min, p.Max, p.N)
	default:
		return "none"
	}
}
