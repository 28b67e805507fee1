package appointments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlotsHalfHourDay(t *testing.T) {
	slots, err := GenerateSlots("09:00", "18:00", 30)
	require.NoError(t, err)
	require.Len(t, slots, 18)
	assert.Equal(t, "09:00", slots[0])
	assert.Equal(t, "09:30", slots[1])
	assert.Equal(t, "17:30", slots[17])
	assert.NotContains(t, slots, "18:00")
}

func TestGenerateSlotsUnevenDuration(t *testing.T) {
	slots, err := GenerateSlots("08:15", "10:00", 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:15", "08:55", "09:35"}, slots)
}

func TestGenerateSlotsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name       string
		open, shut string
		minutes    int
	}{
		{"zero duration", "09:00", "18:00", 0},
		{"negative duration", "09:00", "18:00", -15},
		{"closing before opening", "18:00", "09:00", 30},
		{"equal bounds", "09:00", "09:00", 30},
		{"bad opening", "9am", "18:00", 30},
		{"bad minute", "09:7", "18:00", 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateSlots(tc.open, tc.shut, tc.minutes)
			assert.Error(t, err)
		})
	}
}

func TestParseAndFormatClock(t *testing.T) {
	m, err := ParseClock(" 07:05 ")
	require.NoError(t, err)
	assert.Equal(t, 425, m)
	assert.Equal(t, "07:05", FormatClock(m))

	_, err = ParseClock("24:00")
	assert.Error(t, err)
}
