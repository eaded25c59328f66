package main

import (
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/notnil/cubemars"
	"github.com/notnil/cubemars/canbus"
)

type Options struct {
	Shell   ShellCommand   `command:"shell" description:"Interactive motor control shell"`
	Monitor MonitorCommand `command:"monitor" description:"Live feedback monitor (TUI)"`
}

// ConnectOptions are shared by every subcommand that talks to a motor.
type ConnectOptions struct {
	Driver  string `long:"driver" default:"socketcan" description:"CAN driver (socketcan, slcan)"`
	Channel string `long:"channel" default:"can0" description:"Network device or serial port"`
	Bitrate int    `long:"bitrate" description:"CAN bitrate in bit/s (0 = driver default)"`
	ID      uint8  `long:"id" default:"1" description:"Motor controller address"`
	Debug   bool   `long:"debug" description:"Log every CAN frame"`
}

// registry builds a motor registry, wrapping the transport in a frame logger
// when --debug is set.
func (c *ConnectOptions) registry() *cubemars.Registry {
	if !c.Debug {
		return cubemars.NewRegistry(nil)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
	return cubemars.NewRegistry(func(driver, channel string, bitrate int) (canbus.Bus, error) {
		bus, err := canbus.Dial(driver, channel, bitrate)
		if err != nil {
			return nil, err
		}
		return canbus.NewLoggedBus(bus, slog.Default(), slog.LevelDebug, canbus.LogAll, canbus.ExtendedOnly()), nil
	})
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Control CubeMars AK-series servo motors over a CAN bus"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
