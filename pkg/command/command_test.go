package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/simsensor/pkg/pattern"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr error
	}{
		{
			name: "set data rate",
			line: "0 100",
			want: Command{Type: SetDataRate, Rate: 100},
		},
		{
			name: "set read rate with CRLF",
			line: "1 20\r\n",
			want: Command{Type: SetReadRate, Rate: 20},
		},
		{
			name: "set send rate with extra whitespace",
			line: "  2 \t 1000  ",
			want: Command{Type: SetSendRate, Rate: 1000},
		},
		{
			name: "const pattern",
			line: "3 0 10 5",
			want: Command{Type: StartPattern, Pattern: pattern.Const{Value: 10, N: 5}},
		},
		{
			name: "increasing pattern",
			line: "3 1 10 2 20",
			want: Command{Type: StartPattern, Pattern: pattern.Increasing{Start: 10, Step: 2, Max: 20}},
		},
		{
			name: "decreasing pattern with decimals",
			line: "3 2 20.5 0.5 10",
			want: Command{Type: StartPattern, Pattern: pattern.Decreasing{Start: 20.5, Step: 0.5, Min: 10}},
		},
		{
			name: "random pattern",
			line: "3 3 -5 5 8",
			want: Command{Type: StartPattern, Pattern: pattern.Random{Min: -5, Max: 5, N: 8}},
		},
		{
			name: "inverted interval is still a valid command",
			line: "3 1 20 2 10",
			want: Command{Type: StartPattern, Pattern: pattern.Increasing{Start: 20, Step: 2, Max: 10}},
		},
		{name: "empty line", line: "   ", wantErr: ErrMalformed},
		{name: "non-numeric type", line: "x 10", wantErr: ErrMalformed},
		{name: "unknown type", line: "4 10", wantErr: ErrUnknownCommand},
		{name: "negative type", line: "-1 10", wantErr: ErrUnknownCommand},
		{name: "rate missing", line: "0", wantErr: ErrMalformed},
		{name: "rate extra field", line: "0 10 20", wantErr: ErrMalformed},
		{name: "rate zero", line: "1 0", wantErr: ErrMalformed},
		{name: "rate negative", line: "2 -10", wantErr: ErrMalformed},
		{name: "rate fractional", line: "0 10.5", wantErr: ErrMalformed},
		{name: "pattern missing", line: "3", wantErr: ErrMalformed},
		{name: "pattern unknown", line: "3 7 1 2 3", wantErr: ErrUnknownCommand},
		{name: "const too many args", line: "3 0 10 5 1", wantErr: ErrMalformed},
		{name: "increasing too few args", line: "3 1 10 2", wantErr: ErrMalformed},
		{name: "random fractional count", line: "3 3 1 2 3.5", wantErr: ErrMalformed},
		{name: "const NaN", line: "3 0 NaN 5", wantErr: ErrMalformed},
		{name: "increasing Inf", line: "3 1 0 1 Inf", wantErr: ErrMalformed},
		{name: "value overflows float32", line: "3 0 1e40 5", wantErr: ErrMalformed},
		{name: "garbage value", line: "3 2 a b c", wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString_RoundTrip(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{DataRate(10), "0 10"},
		{ReadRate(20), "1 20"},
		{SendRate(1000), "2 1000"},
		{Start(pattern.Const{Value: 10, N: 5}), "3 0 10 5"},
		{Start(pattern.Increasing{Start: 10, Step: 2, Max: 20}), "3 1 10 2 20"},
		{Start(pattern.Decreasing{Start: 20, Step: 0.5, Min: -1.25}), "3 2 20 0.5 -1.25"},
		{Start(pattern.Random{Min: 10, Max: 20, N: 5}), "3 3 10 20 5"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.String())

			parsed, err := Parse(tt.cmd.String())
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, parsed)
		})
	}
}

func TestString_Invalid(t *testing.T) {
	assert.Empty(t, Command{Type: Type(9)}.String())
	assert.Empty(t, Command{Type: StartPattern}.String())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "set_data_rate", SetDataRate.String())
	assert.Equal(t, "start_pattern", StartPattern.String())
	assert.Equal(t, "type(8)", Type(8).String())
}
