// Package canbus provides the CAN transport layer used by the cubemars
// motor runtime.
//
// It includes:
//   - A core Frame type with validation and the SocketCAN binary layout
//   - A Bus interface with drivers for Linux SocketCAN and slcan serial
//     adapters, selected via Dial
//   - An in-memory loopback bus for tests and simulations
//   - A slog-backed logging decorator and composable frame filters
package canbus
