// Package cubemars controls CubeMars AK-series servo motors over a CAN bus.
//
// A Motor is a blocking handle for one motor controller. Command methods
// (SetDuty, SetCurrent, SetRPM, SetPosition, ...) transmit immediately and
// store the setpoint, which a background loop re-sends at 100 Hz until it is
// replaced or cleared, as the controllers require. Feedback frames broadcast
// by the controller are decoded continuously and available via Feedback.
//
// Motors opened with the same (driver, channel) pair share one transport
// connection and one inbound dispatch loop; the connection is reference
// counted and released when the last motor on it is closed.
package cubemars
