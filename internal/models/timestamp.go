package models

import (
	"strconv"
	"strings"
	"time"
)

// DecodeTimestamp turns a service timestamp "seconds.fraction" into milliseconds.
// The fraction is added as a literal integer, so "1500000000.5" is 1500000000005.
func DecodeTimestamp(ts string) int64 {
	secondsPart, fractionPart, _ := strings.Cut(ts, ".")

	seconds, err := strconv.ParseInt(secondsPart, 10, 64)
	if err != nil {
		seconds = 0
	}
	fraction, err := strconv.ParseInt(fractionPart, 10, 64)
	if err != nil {
		fraction = 0
	}

	return seconds*1000 + fraction
}

func TimestampTime(ts string) time.Time {
	return time.UnixMilli(DecodeTimestamp(ts))
}

// CompareTimestamps orders two service timestamps numerically. An empty token sorts first.
func CompareTimestamps(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	aSec, aFrac, _ := strings.Cut(a, ".")
	bSec, bFrac, _ := strings.Cut(b, ".")

	aSec = strings.TrimLeft(aSec, "0")
	bSec = strings.TrimLeft(bSec, "0")
	if len(aSec) != len(bSec) {
		if len(aSec) < len(bSec) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(aSec, bSec); c != 0 {
		return c
	}

	for len(aFrac) < len(bFrac) {
		aFrac += "0"
	}
	for len(bFrac) < len(aFrac) {
		bFrac += "0"
	}
	return strings.Compare(aFrac, bFrac)
}
