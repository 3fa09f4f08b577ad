package calendar

import (
	"time"

	"bookcal/internal/model"
)

// Grid scale. One unit per minute keeps hour markers 60 units apart and a
// day column 1440 units tall.
const (
	MinHeightMinutes = 30
	UnitsPerMinute   = 1
	HourUnits        = 60 * UnitsPerMinute
	DayUnits         = 24 * HourUnits
)

// ComputeGeometry places a clipped span in its day column.
//
// The top offset is the wall-clock minute of start, truncated. The height is
// the real elapsed time in whole minutes, so a span across a DST change is
// measured in UTC, and it never drops below MinHeightMinutes even for zero
// or negative spans.
func ComputeGeometry(start, end time.Time) model.DayGeometry {
	height := int(end.Sub(start) / time.Minute)
	if height < MinHeightMinutes {
		height = MinHeightMinutes
	}
	return model.DayGeometry{
		TopOffsetMinutes: start.Hour()*60 + start.Minute(),
		HeightMinutes:    height,
	}
}

// Units converts minutes to rendering units.
func Units(minutes int) int {
	return minutes * UnitsPerMinute
}
