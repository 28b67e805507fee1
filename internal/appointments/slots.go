package appointments

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts an "HH:MM" label into minutes after midnight.
func ParseClock(label string) (int, error) {
	label = strings.TrimSpace(label)
	hh, mm, ok := strings.Cut(label, ":")
	if !ok {
		return 0, fmt.Errorf("appointments: invalid clock %q", label)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("appointments: invalid hour in %q", label)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("appointments: invalid minute in %q", label)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as a zero-padded "HH:MM" label.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GenerateSlots lists the slot labels from opensAt, one every durationMinutes,
// while the start time is strictly before closesAt.
func GenerateSlots(opensAt, closesAt string, durationMinutes int) ([]string, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("appointments: slot duration must be positive, got %d", durationMinutes)
	}
	start, err := ParseClock(opensAt)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(closesAt)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("appointments: opening %s must be before closing %s", opensAt, closesAt)
	}

	slots := make([]string, 0, (end-start)/durationMinutes+1)
	for t := start; t < end; t += durationMinutes {
		slots = append(slots, FormatClock(t))
	}
	return slots, nil
}
