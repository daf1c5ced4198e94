package generator

import "time"

// Clock supplies wall-clock milliseconds to the time-based generators.
type Clock interface {
	NowMillis() int64
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() int64

func (f ClockFunc) NowMillis() int64 { return f() }

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}
