package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()

	for _, s := range []string{
		"2024-10-10",
		"2024-10-10T10:10:10Z",
		"2024-10-10T10:10:10.123456Z",
		strconv.FormatInt(ts, 10),
		strconv.FormatInt(ts*1000, 10),
	} {
		got, ok := ParseDate(s)
		assert.True(t, ok, s)
		assert.True(t, want.Equal(got), "%s parsed as %v", s, got)
	}

	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, def, ParseDateDefault("", def))
	assert.Equal(t, def, ParseDateDefault("not a date", def))
}

func TestCalendarDaysBetween(t *testing.T) {
	fri := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	mon := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, CalendarDaysBetween(fri, mon))
	assert.Equal(t, -3, CalendarDaysBetween(mon, fri))
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{" aapl,msft", "AAPL", "", "ibm , "})
	assert.Equal(t, []string{"AAPL", "MSFT", "IBM"}, got)
}
