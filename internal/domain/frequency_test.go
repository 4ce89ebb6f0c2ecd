package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	t.Parallel()
	cases := map[string]Frequency{
		"short":       Short,
		" MEDIUM ":    Medium,
		"ThreeHours":  Long,
		"thirty_min":  Short,
		"OneHour":     Medium,
		"1h":          Medium,
		"30min":       Short,
		"three_hours": Long,
	}
	for in, want := range cases {
		got, err := ParseFrequency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFrequency("weekly")
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestFrequencyIntervals(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30*time.Minute, Short.Interval())
	assert.Equal(t, time.Hour, Medium.Interval())
	assert.Equal(t, 3*time.Hour, Long.Interval())
	assert.Zero(t, Frequency(0).Interval())
	assert.False(t, Frequency(9).Valid())
	assert.Equal(t, "Frequency(9)", Frequency(9).String())
}

func TestMessageTypeRoundTrip(t *testing.T) {
	t.Parallel()
	for _, f := range Frequencies {
		mt := f.MessageType()
		assert.True(t, mt.Valid())
		assert.Equal(t, f, mt.Frequency())
	}
	mt, err := ParseMessageType("one_hour")
	require.NoError(t, err)
	assert.Equal(t, MessageMedium, mt)

	_, err = ParseMessageType("daily")
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestSubscriberDueAt(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Subscriber{ID: 1, Frequency: Short, LastNotifiedAt: t0}

	assert.False(t, s.DueAt(t0.Add(29*time.Minute+59*time.Second)))
	assert.True(t, s.DueAt(t0.Add(30*time.Minute)))
	assert.True(t, s.DueAt(t0.Add(2*time.Hour)))
}

func TestNewCustomMessage(t *testing.T) {
	t.Parallel()
	m, err := NewCustomMessage(7, "short", "  Hydrate!  ")
	require.NoError(t, err)
	assert.Equal(t, CustomMessage{Type: MessageShort, Text: "Hydrate!", AuthorID: 7}, m)

	_, err = NewCustomMessage(7, "hourly", "x")
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	_, err = NewCustomMessage(7, "long", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
	assert.Equal(t, "💧💧…", Truncate("💧💧💧", 2))
}
