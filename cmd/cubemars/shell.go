package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/notnil/cubemars"
)

type ShellCommand struct {
	ConnectOptions
}

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// shell is the interactive REPL state.
type shell struct {
	opts  ConnectOptions
	reg   *cubemars.Registry
	motor *cubemars.Motor

	mu         sync.Mutex
	monitoring  bool
	monitorStop chan struct{}
}

func (c *ShellCommand) Execute(args []string) error {
	s := &shell{opts: c.ConnectOptions, reg: c.registry()}
	defer s.disconnect()

	fmt.Println(promptStyle.Render("CubeMars motor control shell"))
	fmt.Println(dimStyle.Render("Type 'help' for commands, 'exit' to quit."))

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("cubemars> "))
		if !sc.Scan() {
			fmt.Println()
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := s.dispatch(fields[0], fields[1:]); err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
		}
	}
}

func (s *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		s.printHelp()
		return nil
	case "connect":
		return s.connect(args)
	case "disconnect":
		s.disconnect()
		return nil
	case "status":
		s.printStatus()
		return nil
	case "feedback":
		if s.motor == nil {
			return fmt.Errorf("not connected")
		}
		fmt.Println(formatFeedback(s.motor.Feedback()))
		return nil
	case "monitor":
		return s.toggleMonitor(args)
	}

	// Everything below requires a connection.
	if s.motor == nil {
		return fmt.Errorf("not connected (use 'connect' first)")
	}
	switch cmd {
	case "duty":
		v, err := parseFloatArg(args, 0)
		if err != nil {
			return err
		}
		return s.motor.SetDuty(v)
	case "current":
		v, err := parseFloatArg(args, 0)
		if err != nil {
			return err
		}
		return s.motor.SetCurrent(v)
	case "brake":
		v, err := parseFloatArg(args, 0)
		if err != nil {
			return err
		}
		return s.motor.SetBrakeCurrent(v)
	case "rpm":
		v, err := parseFloatArg(args, 0)
		if err != nil {
			return err
		}
		return s.motor.SetRPM(v)
	case "pos":
		deg, err := parseFloatArg(args, 0)
		if err != nil {
			return err
		}
		speed, accel := cubemars.DefaultSpeed, cubemars.DefaultAccel
		if len(args) > 1 {
			v, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("bad speed %q", args[1])
			}
			speed = int32(v)
		}
		if len(args) > 2 {
			v, err := strconv.ParseInt(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("bad accel %q", args[2])
			}
			accel = int32(v)
		}
		return s.motor.SetPositionSpeed(deg, speed, accel)
	case "origin":
		if len(args) == 0 {
			return fmt.Errorf("missing argument")
		}
		v, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("bad origin mode %q", args[0])
		}
		return s.motor.SetOrigin(cubemars.OriginMode(v))
	case "stop":
		return s.motor.Stop()
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

// connect accepts optional positional overrides: driver, channel, id.
func (s *shell) connect(args []string) error {
	if s.motor != nil {
		return fmt.Errorf("already connected (use 'disconnect' first)")
	}
	cfg := cubemars.Config{
		Driver:  s.opts.Driver,
		Channel: s.opts.Channel,
		Bitrate: s.opts.Bitrate,
		ID:      s.opts.ID,
	}
	if len(args) > 0 {
		cfg.Driver = args[0]
	}
	if len(args) > 1 {
		cfg.Channel = args[1]
	}
	if len(args) > 2 {
		id, err := strconv.ParseUint(args[2], 10, 8)
		if err != nil {
			return fmt.Errorf("bad motor id %q", args[2])
		}
		cfg.ID = uint8(id)
	}
	m, err := s.reg.Open(cfg)
	if err != nil {
		return err
	}
	s.motor = m
	fmt.Println(successStyle.Render(fmt.Sprintf("connected to motor %d on %s:%s", cfg.ID, cfg.Driver, cfg.Channel)))
	return nil
}

func (s *shell) disconnect() {
	s.stopMonitor()
	if s.motor == nil {
		return
	}
	s.motor.Close()
	s.motor = nil
	fmt.Println(dimStyle.Render("disconnected"))
}

// toggleMonitor starts or stops a background printer of feedback lines,
// every half second, until toggled off.
func (s *shell) toggleMonitor(args []string) error {
	on := !s.isMonitoring()
	if len(args) > 0 {
		on = args[0] == "on"
	}
	if !on {
		s.stopMonitor()
		return nil
	}
	if s.motor == nil {
		return fmt.Errorf("not connected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitoring {
		return nil
	}
	s.monitoring = true
	s.monitorStop = make(chan struct{})
	go func(m *cubemars.Motor, stop <-chan struct{}) {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Println(formatFeedback(m.Feedback()))
			}
		}
	}(s.motor, s.monitorStop)
	return nil
}

func (s *shell) isMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring
}

func (s *shell) stopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.monitoring {
		return
	}
	s.monitoring = false
	close(s.monitorStop)
}

func (s *shell) printStatus() {
	if s.motor == nil {
		fmt.Println(dimStyle.Render("not connected"))
		fmt.Printf("defaults: %s:%s, motor %d\n", s.opts.Driver, s.opts.Channel, s.opts.ID)
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("connected: motor %d", s.motor.ID())))
	fmt.Println(formatFeedback(s.motor.Feedback()))
}

func (s *shell) printHelp() {
	fmt.Print(dimStyle.Render(`commands:
  connect [driver] [channel] [id]   connect to a motor
  disconnect                        close the connection
  status                            connection status and last feedback

  duty <v>                          duty cycle (-1..1)
  current <amps>                    current loop
  brake <amps>                      brake current
  rpm <v>                           velocity (electrical RPM)
  pos <degrees> [speed] [accel]     position loop
  origin <0|1|2>                    set origin (0=temp, 1=perm, 2=restore)
  stop                              zero current, stop repeating

  feedback                          print last feedback once
  monitor [on|off]                  toggle periodic feedback printing
  help, exit
`))
}

func parseFloatArg(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing argument")
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", args[i])
	}
	return v, nil
}

func formatFeedback(fb cubemars.Feedback) string {
	return fmt.Sprintf("pos %8.1f°  vel %8.0f rpm  cur %6.2f A  temp %3d°C  err %d",
		fb.Position, fb.Velocity, fb.Current, fb.Temperature, fb.ErrorCode)
}
