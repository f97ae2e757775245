package marketdata

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodCSV = `date,open,high,low,close,volume
2024-03-04,100,102,99,101,5000
2024-03-05,101,103,100,102,6000
2024-03-06,102,104,101,103,7000
`

func TestParseCSV(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		bars, err := ParseCSV("AAPL", strings.NewReader(goodCSV))
		require.NoError(t, err)
		require.Len(t, bars, 3)
		assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), bars[0].Date)
		assert.InDelta(t, 101, bars[0].Close, 0.001)
		assert.InDelta(t, 7000, bars[2].Volume, 0.001)
	})

	t.Run("hard errors", func(t *testing.T) {
		testCases := []struct {
			name string
			csv  string
			want string
		}{
			{
				name: "missing column",
				csv:  "date,open,high,low,close\n2024-03-04,100,102,99,101\n",
				want: "expected header",
			},
			{
				name: "misordered columns",
				csv:  "date,close,high,low,open,volume\n2024-03-04,101,102,99,100,5000\n",
				want: "misordered",
			},
			{
				name: "unparseable date",
				csv:  "date,open,high,low,close,volume\n03/04/2024,100,102,99,101,5000\n",
				want: "invalid date",
			},
			{
				name: "non-numeric price",
				csv:  "date,open,high,low,close,volume\n2024-03-04,abc,102,99,101,5000\n",
				want: "invalid open",
			},
			{
				name: "negative price",
				csv:  "date,open,high,low,close,volume\n2024-03-04,-100,102,99,101,5000\n",
				want: "non-positive price",
			},
			{
				name: "high below low",
				csv:  "date,open,high,low,close,volume\n2024-03-04,100,98,99,99.5,5000\n",
				want: "violates",
			},
			{
				name: "duplicate dates",
				csv:  "date,open,high,low,close,volume\n2024-03-04,100,102,99,101,5000\n2024-03-04,100,102,99,101,5000\n",
				want: "duplicate timestamp",
			},
			{
				name: "out of order dates",
				csv:  "date,open,high,low,close,volume\n2024-03-05,100,102,99,101,5000\n2024-03-04,100,102,99,101,5000\n",
				want: "non-monotonic",
			},
			{
				name: "empty file",
				csv:  "date,open,high,low,close,volume\n",
				want: "no bars",
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ParseCSV("AAPL", strings.NewReader(tc.csv))
				assert.ErrorContains(t, err, tc.want)
			})
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2024-03-04",
		"2024-03-04 16:00:00",
		"2024-03-04T16:00:00",
		"2024-03-04T16:00:00Z",
	} {
		_, err := ParseTimestamp(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseTimestamp("not-a-date")
	assert.Error(t, err)
}
