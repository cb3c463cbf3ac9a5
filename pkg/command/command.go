// Package command implements the line-oriented control protocol of the simulated sensor.
//
// Each line holds one command: a numeric type followed by whitespace-separated arguments.
//
//	0 <rate>                      set data (generation) rate in Hz
//	1 <rate>                      set read (resampling) rate in Hz
//	2 <rate>                      set send (transmission) rate in Hz
//	3 0 <value> <n_samples>       start a const run
//	3 1 <start> <inc> <max>       start an increasing run
//	3 2 <start> <dec> <min>       start a decreasing run
//	3 3 <min> <max> <n_samples>   start a random run
//
// The device never acknowledges commands; malformed lines are dropped by the caller.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chewxy/math32"

	"github.com/itohio/simsensor/pkg/pattern"
)

var (
	// ErrUnknownCommand is returned for an unrecognized command type or pattern kind.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformed is returned when a command has the wrong arguments.
	ErrMalformed = errors.New("malformed command")
)

// Type is the numeric command code.
type Type int

const (
	SetDataRate  Type = 0
	SetReadRate  Type = 1
	SetSendRate  Type = 2
	StartPattern Type = 3
)

// String returns the name of the command type.
func (t Type) String() string {
	switch t {
	case SetDataRate:
		return "set_data_rate"
	case SetReadRate:
		return "set_read_rate"
	case SetSendRate:
		return "set_send_rate"
	case StartPattern:
		return "start_pattern"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Command is a parsed control command. Rate is set for the rate commands, Pattern for
// StartPattern.
type Command struct {
	Type    Type
	Rate    int
	Pattern pattern.Pattern
}

// DataRate builds a set-data-rate command.
func DataRate(hz int) Command { return Command{Type: SetDataRate, Rate: hz} }

// ReadRate builds a set-read-rate command.
func ReadRate(hz int) Command { return Command{Type: SetReadRate, Rate: hz} }

// SendRate builds a set-send-rate command.
func SendRate(hz int) Command { return Command{Type: SetSendRate, Rate: hz} }

// Start builds a start-pattern command.
func Start(p pattern.Pattern) Command { return Command{Type: StartPattern, Pattern: p} }

// String encodes the command in wire format, without the line terminator.
func (c Command) String() string {
	switch c.Type {
	case SetDataRate, SetReadRate, SetSendRate:
		return fmt.Sprintf("%d %d", c.Type, c.Rate)
	case StartPattern:
		switch p := c.Pattern.(type) {
		case pattern.Const:
			return fmt.Sprintf("%d %d %s %d", c.Type, p.Kind(), formatArg(p.Value), p.N)
		case pattern.Increasing:
			return fmt.Sprintf("%d %d %s %s %s", c.Type, p.Kind(), formatArg(p.Start), formatArg(p.Step), formatArg(p.Max))
		case pattern.Decreasing:
			return fmt.Sprintf("%d %d %s %s %s", c.Type, p.Kind(), formatArg(p.Start), formatArg(p.Step), formatArg(p.Min))
		case pattern.Random:
			return fmt.Sprintf("%d %d %s %s %d", c.Type, p.Kind(), formatArg(p.Min), formatArg(p.Max), p.N)
		}
	}
	return ""
}

// Parse parses a single command line. Surrounding whitespace and a trailing CR/LF are ignored.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: invalid type %q", ErrMalformed, fields[0])
	}

	args := fields[1:]
	switch t := Type(code); t {
	case SetDataRate, SetReadRate, SetSendRate:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: %s expects 1 argument, got %d", ErrMalformed, t, len(args))
		}
		rate, err := strconv.Atoi(args[0])
		if err != nil || rate <= 0 {
			return Command{}, fmt.Errorf("%w: invalid rate %q", ErrMalformed, args[0])
		}
		return Command{Type: t, Rate: rate}, nil

	case StartPattern:
		p, err := parsePattern(args)
		if err != nil {
			return Command{}, err
		}
		return Command{Type: t, Pattern: p}, nil

	default:
		return Command{}, fmt.Errorf("%w: type %d", ErrUnknownCommand, code)
	}
}

func parsePattern(args []string) (pattern.Pattern, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: start_pattern expects a pattern", ErrMalformed)
	}

	code, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern %q", ErrMalformed, args[0])
	}
	kind := pattern.Kind(code)
	args = args[1:]

	want, ok := patternArgs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: pattern %d", ErrUnknownCommand, code)
	}
	if len(args) != want {
		return nil, fmt.Errorf("%w: %s pattern expects %d arguments, got %d", ErrMalformed, kind, want, len(args))
	}

	switch kind {
	case pattern.KindConst:
		value, err := parseValue(args[0])
		if err != nil {
			return nil, err
		}
		n, err := parseCount(args[1])
		if err != nil {
			return nil, err
		}
		return pattern.Const{Value: value, N: n}, nil

	case pattern.KindIncreasing, pattern.KindDecreasing:
		vals, err := parseValues(args)
		if err != nil {
			return nil, err
		}
		if kind == pattern.KindIncreasing {
			return pattern.Increasing{Start: vals[0], Step: vals[1], Max: vals[2]}, nil
		}
		return pattern.Decreasing{Start: vals[0], Step: vals[1], Min: vals[2]}, nil

	default: // pattern.KindRandom
		vals, err := parseValues(args[:2])
		if err != nil {
			return nil, err
		}
		n, err := parseCount(args[2])
		if err != nil {
			return nil, err
		}
		return pattern.Random{Min: vals[0], Max: vals[1], N: n}, nil
	}
}

// patternArgs is the number of arguments following each pattern code.
var patternArgs = map[pattern.Kind]int{
	pattern.KindConst:      2,
	pattern.KindIncreasing: 3,
	pattern.KindDecreasing: 3,
	pattern.KindRandom:     3,
}

func parseValues(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := parseValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid value %q", ErrMalformed, s)
	}
	v := float32(f)
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrMalformed, s)
	}
	return v, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid sample count %q", ErrMalformed, s)
	}
	return n, nil
}

func formatArg(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
