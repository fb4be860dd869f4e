// Package vectorclock implements a per-device logical clock used to detect
// concurrent writes across sync devices. It does not order applies; that is
// left to last-writer-wins resolution on the row's _version.
package vectorclock

import "encoding/json"

// Clock maps a device id to a non-decreasing counter.
type Clock struct {
	counts map[string]int64
}

// wireClock mirrors the {"clocks": {...}} wire shape from spec.md §6.
type wireClock struct {
	Clocks map[string]int64 `json:"clocks"`
}

// New seeds a clock with a single device entry at zero.
func New(deviceID string) Clock {
	return Clock{counts: map[string]int64{deviceID: 0}}
}

// Empty returns a clock with no entries.
func Empty() Clock {
	return Clock{counts: map[string]int64{}}
}

// FromMap builds a Clock from a device->counter map, taking ownership of a copy.
func FromMap(m map[string]int64) Clock {
	c := Clock{counts: make(map[string]int64, len(m))}
	for k, v := range m {
		c.counts[k] = v
	}
	return c
}

// Map returns a copy of the underlying device->counter map.
func (c Clock) Map() map[string]int64 {
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Increment raises the counter for deviceID by one, creating the entry if absent.
func (c Clock) Increment(deviceID string) Clock {
	out := c.Map()
	out[deviceID]++
	return FromMap(out)
}

// Merge returns the per-device maximum of c and other, unioning keys.
func (c Clock) Merge(other Clock) Clock {
	out := c.Map()
	for device, v := range other.counts {
		if cur, ok := out[device]; !ok || v > cur {
			out[device] = v
		}
	}
	return FromMap(out)
}

// HappenedBefore reports whether c happened-before other: every device counter
// in c is <= the corresponding counter in other (missing entries treated as
// zero), and at least one is strictly less.
func (c Clock) HappenedBefore(other Clock) bool {
	allLessOrEqual := true
	atLeastOneLess := false

	for device, selfClock := range c.counts {
		otherClock := other.counts[device]
		if selfClock > otherClock {
			allLessOrEqual = false
			break
		}
		if selfClock < otherClock {
			atLeastOneLess = true
		}
	}

	if allLessOrEqual {
		for device := range other.counts {
			if _, ok := c.counts[device]; !ok {
				atLeastOneLess = true
			}
		}
	}

	return allLessOrEqual && atLeastOneLess
}

// ConflictsWith reports whether c and other are concurrent: neither
// happened-before the other and they are not equal.
func (c Clock) ConflictsWith(other Clock) bool {
	selfGreater := false
	otherGreater := false

	devices := make(map[string]struct{}, len(c.counts)+len(other.counts))
	for d := range c.counts {
		devices[d] = struct{}{}
	}
	for d := range other.counts {
		devices[d] = struct{}{}
	}

	for device := range devices {
		selfClock := c.counts[device]
		otherClock := other.counts[device]
		if selfClock > otherClock {
			selfGreater = true
		} else if otherClock > selfClock {
			otherGreater = true
		}
	}

	return selfGreater && otherGreater
}

// Sum adds all per-device counters, used as the primary LWW ordering key.
func (c Clock) Sum() int64 {
	var total int64
	for _, v := range c.counts {
		total += v
	}
	return total
}

// CompareForLWW orders clocks by Sum ascending, breaking ties by lexicographic
// device id. It returns a negative number if c sorts before other, zero if
// equal, and positive if c sorts after other.
func (c Clock) CompareForLWW(other Clock, selfDevice, otherDevice string) int {
	selfSum, otherSum := c.Sum(), other.Sum()
	switch {
	case selfSum < otherSum:
		return -1
	case selfSum > otherSum:
		return 1
	case selfDevice < otherDevice:
		return -1
	case selfDevice > otherDevice:
		return 1
	default:
		return 0
	}
}

// MarshalJSON implements json.Marshaler using the {"clocks": {...}} wire shape.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireClock{Clocks: c.Map()})
}

// UnmarshalJSON implements json.Unmarshaler using the {"clocks": {...}} wire shape.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var w wireClock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = FromMap(w.Clocks)
	return nil
}
