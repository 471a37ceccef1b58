package entity

import "time"

// nsToDuration converts a QoS duration expressed in nanoseconds (with the
// qos package's int64-max "infinite" sentinel) into a time.Duration,
// preserving the sentinel so callers can special-case "never".
func nsToDuration(ns int64) time.Duration {
	return time.Duration(ns)
}
