package fixedts

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/JohnCGriffin/overflow"
	"github.com/imarsman/fixedts/pkg/utility"
	"lab.nexedi.com/kirr/go123/xfmt"
)

// Timestamp the fields of a parsed timestamp. Values are taken from the input
// digits as written, with no calendar or range validation.
//
// At most one of IsUTC and HasOffset is set.
type Timestamp struct {
	Year       int // four digits, 0-9999
	Month      int
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int // 0-999999999

	IsUTC         bool // Z or z followed the time
	HasOffset     bool // an explicit +/- offset was parsed
	OffsetSeconds int  // seconds east of UTC, 0 unless HasOffset
}

// HasZone was any zone information present in the input
func (ts Timestamp) HasZone() bool {
	return ts.IsUTC || ts.HasOffset
}

// Offset the duration of the offset from UTC
func (ts Timestamp) Offset() time.Duration {
	return time.Duration(ts.OffsetSeconds) * time.Second
}

// Time get a time for the parsed fields. A UTC designator gives UTC and an
// explicit offset gives a fixed zone. With no zone in the input location is
// used, or UTC if location is nil.
//
// Out of range fields are normalized by time.Date, so a month of 13 rolls
// over into the next year.
func (ts Timestamp) Time(location *time.Location) time.Time {
	switch {
	case ts.IsUTC:
		location = time.UTC
	case ts.HasOffset:
		location = LocationFromOffset(ts.OffsetSeconds)
	case location == nil:
		location = time.UTC
	}

	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Nanosecond, location)
}

// UnixNano get nanoseconds since the Unix epoch. ok is false when the instant
// can't be held in an int64, which is the case for years before 1678 or after
// 2262. A timestamp with no zone is taken to be UTC.
func (ts Timestamp) UnixNano() (nsec int64, ok bool) {
	t := ts.Time(time.UTC)
	sec, frac := t.Unix(), int64(t.Nanosecond())

	// Keep the two parts the same sign so the minimum value is reachable
	if sec < 0 && frac > 0 {
		sec++
		frac -= int64(time.Second)
	}

	nsec, ok = overflow.Mul64(sec, int64(time.Second))
	if !ok {
		return 0, false
	}
	nsec, ok = overflow.Add64(nsec, frac)
	if !ok {
		return 0, false
	}

	return nsec, true
}

// OffsetString get the offset in HHMM format
//
// For 5 hours and 30 minutes
//  +0530
//
// For -5 hours and 30 minutes, delimited
//  -05:30
func (ts Timestamp) OffsetString(delimited bool) (string, error) {
	return offsetString(ts.OffsetSeconds, delimited)
}

// offsetHM split an offset into its sign and positive hours and minutes
func offsetHM(offsetSec int) (negative bool, offsetH, offsetM int) {
	if offsetSec < 0 {
		negative = true
		offsetSec = -offsetSec
	}
	offsetH = offsetSec / (60 * 60)
	offsetM = (offsetSec % (60 * 60)) / 60

	return
}

// twoDigits get two digits for hours and minutes. This is designed solely to
// help with offset strings without using fmt.Sprintf, which causes
// allocations.
func twoDigits(in int) (fr, lr rune, err error) {
	if in > 99 || in < 0 {
		err = errors.New("Out of range")
		return
	}

	// First rune is the integer part after an integer division
	// Second rune is the remainder
	fr = rune('0' + in/10)
	lr = rune('0' + in%10)

	return
}

func offsetString(offsetSec int, delimited bool) (offset string, err error) {
	negative, offsetH, offsetM := offsetHM(offsetSec)

	var prefix rune = '+'
	if negative {
		prefix = '-'
	}

	xfmtBuf := new(xfmt.Buffer)

	hf, hl, err := twoDigits(offsetH)
	if err != nil {
		return
	}
	xfmtBuf.C(prefix).C(hf).C(hl)
	if delimited {
		xfmtBuf.C(':')
	}
	mf, ml, err := twoDigits(offsetM)
	if err != nil {
		return
	}
	xfmtBuf.C(mf).C(ml)

	offset = utility.BytesToString(xfmtBuf.Bytes()...)

	return
}

// Given that zones are in at most 15 minute increments and can be positive or
// negative there should only be so many. Input offsets are not restricted
// though, so the cache is dropped when it grows past this.
const maxCachedZones = 50

var locationAtomic atomic.Value

func init() {
	// A cache for zones tied to offsets to save quite a bit of time and 3
	// allocations needed to get a fixed zone.
	locationAtomic.Store(make(map[int]*time.Location))
}

// LocationFromOffset get a location based on the offset seconds from UTC.
// Uses a cache of locations based on offset. The zone name is the delimited
// offset, such as -02:30.
//
// Safe for concurrent use. The cached map is never written after it is
// stored; additions store a copy.
func LocationFromOffset(offsetSec int) *time.Location {
	cachedZones := locationAtomic.Load().(map[int]*time.Location)
	if l, ok := cachedZones[offsetSec]; ok {
		return l
	}

	name, err := offsetString(offsetSec, true)
	if err != nil {
		name = "FixedZone"
	}
	location := time.FixedZone(name, offsetSec)

	var updated map[int]*time.Location
	if len(cachedZones) >= maxCachedZones {
		updated = make(map[int]*time.Location)
	} else {
		updated = make(map[int]*time.Location, len(cachedZones)+1)
		for k, v := range cachedZones {
			updated[k] = v
		}
	}
	updated[offsetSec] = location
	locationAtomic.Store(updated)

	return location
}
