package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"isrclock/core"
	"isrclock/host/config"
	"isrclock/host/mcu"
)

var errQuit = errors.New("quit")

const (
	watchSampleUS = 1000
	watchTimeout  = 5 * time.Second
)

// Shell executes clockctl commands against one MCU
type Shell struct {
	cfg *config.Config
	mcu *mcu.MCU
	out io.Writer
}

type command struct {
	args string
	help string
	run  func(s *Shell, args []string) error
	// offline commands work without an MCU
	offline bool
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"begin":   {args: "[pin] [hz]", help: "Start the clock (defaults from the profile)", run: (*Shell).begin},
		"end":     {help: "Stop the clock and drive the pin low", run: (*Shell).end},
		"status":  {help: "Show the clock state", run: (*Shell).status},
		"dff":     {args: "<q> <d> <rising>", help: "Evaluate the edge latch on the MCU", run: (*Shell).dff},
		"watch":   {args: "[pin] [reports]", help: "Latch a divide-by-two of pin on the MCU and print each edge", run: (*Shell).watch},
		"uptime":  {help: "Show MCU uptime in timer ticks", run: (*Shell).uptime},
		"config":  {help: "Show MCU configuration state", run: (*Shell).config},
		"dict":    {help: "Print a dictionary summary", run: (*Shell).dict},
		"raw":     {help: "Print the raw dictionary", run: (*Shell).raw},
		"resolve": {args: "<hz> [fcpu]", help: "Show the Timer1 programming for hz", run: (*Shell).resolve, offline: true},
		"help":    {help: "Show this help", run: (*Shell).help, offline: true},
		"quit":    {help: "Exit the shell", run: func(*Shell, []string) error { return errQuit }, offline: true},
	}
}

func printCommands(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-28s - %s\n", strings.TrimSpace(name+" "+c.args), c.help)
	}
}

// Exec runs one command given as separate words
func (s *Shell) Exec(args []string) error {
	if len(args) == 0 {
		return nil
	}
	name := args[0]
	switch name {
	case "exit", "q":
		name = "quit"
	case "?":
		name = "help"
	}
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", args[0])
	}
	if !c.offline && s.mcu == nil {
		return mcu.ErrNotConnected
	}
	return c.run(s, args[1:])
}

// Interactive reads command lines from r until EOF or quit
func (s *Shell) Interactive(r io.Reader) error {
	fmt.Fprintln(s.out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		words, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		err = s.Exec(words)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	fmt.Fprintln(s.out)
	return scanner.Err()
}

func (s *Shell) begin(args []string) error {
	pin, hz := s.cfg.Clock.Pin, s.cfg.Clock.Hz
	var err error
	if len(args) > 0 {
		if pin, err = parseUint(args[0], "pin"); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if hz, err = parseUint(args[1], "hz"); err != nil {
			return err
		}
	}
	if hz < config.MinVisibleHz || hz > config.MaxVisibleHz {
		fmt.Fprintf(s.out, "warning: %d Hz is outside %d..%d Hz\n", hz, config.MinVisibleHz, config.MaxVisibleHz)
	}
	state, err := s.mcu.ClockBegin(pin, hz)
	if err != nil {
		return err
	}
	s.printState(state)
	return nil
}

func (s *Shell) end(_ []string) error {
	state, err := s.mcu.ClockEnd()
	if err != nil {
		return err
	}
	s.printState(state)
	return nil
}

func (s *Shell) status(_ []string) error {
	state, err := s.mcu.ClockQuery()
	if err != nil {
		return err
	}
	s.printState(state)
	return nil
}

func (s *Shell) printState(st mcu.ClockState) {
	run := "stopped"
	if st.Active {
		run = "running"
	}
	fmt.Fprintf(s.out, "clock %s: pin=%d hz=%d level=%s toggles=%d\n",
		run, st.Pin, st.Hz, st.Level, st.Toggles)
	if st.Divisor == 0 {
		return
	}
	line := fmt.Sprintf("  timer: div=%d compare=%d", st.Divisor, st.Compare)
	if fcpu, err := s.mcu.ClockFrequency(); err == nil {
		line += fmt.Sprintf(" achieved=%s Hz", milliHz(st.Params().AchievedMilliHz(fcpu)))
	}
	if !st.Exact {
		line += " (clamped)"
	}
	fmt.Fprintln(s.out, line)
}

func (s *Shell) dff(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: dff <q> <d> <rising>")
	}
	q, err := parseBit(args[0], "q")
	if err != nil {
		return err
	}
	d, err := parseBit(args[1], "d")
	if err != nil {
		return err
	}
	rising, err := strconv.ParseBool(args[2])
	if err != nil {
		return fmt.Errorf("invalid rising %q: %w", args[2], err)
	}
	next, err := s.mcu.DFFUpdate(q, d, rising)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "q=%d\n", next)
	return nil
}

// watch runs a latch sampler whose D input is the inverse of its Q, so Q
// is the watched clock divided by two
func (s *Shell) watch(args []string) error {
	pin, reports := s.cfg.Clock.Pin, uint32(4)
	var err error
	if len(args) > 0 {
		if pin, err = parseUint(args[0], "pin"); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if reports, err = parseUint(args[1], "reports"); err != nil {
			return err
		}
	}

	const oid = 0
	if err := s.mcu.ConfigDFFSampler(oid, pin); err != nil {
		return err
	}
	if err := s.mcu.SetDFFInput(oid, 1); err != nil {
		return err
	}
	if err := s.mcu.StartDFFSampler(oid, uint32(core.TimerFromUS(watchSampleUS)), 1); err != nil {
		return err
	}
	defer s.mcu.StopDFFSampler(oid)

	for i := uint32(0); i < reports; i++ {
		st, err := s.mcu.WaitDFFState(oid, watchTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "edge %d: q=%d\n", st.Edges, st.Q)
		if err := s.mcu.SetDFFInput(oid, st.Q^1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) uptime(_ []string) error {
	ticks, err := s.mcu.Uptime()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "uptime: %d ticks\n", ticks)
	return nil
}

func (s *Shell) config(_ []string) error {
	st, err := s.mcu.GetConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "config: is_config=%t crc=0x%08x is_shutdown=%t\n", st.IsConfig, st.CRC, st.IsShutdown)
	return nil
}

func (s *Shell) dict(_ []string) error {
	d := s.mcu.GetDictionary()
	if d == nil {
		return mcu.ErrNoDictionary
	}
	fmt.Fprintf(s.out, "version: %s (%s)\n", d.Version, d.BuildVersions)
	printSection(s.out, "commands", d.Commands)
	printSection(s.out, "responses", d.Responses)
	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(s.out, "constants (%d):\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(s.out, "  %s = %s\n", k, d.Config[k])
	}
	return nil
}

func printSection(w io.Writer, title string, sigs map[string]int) {
	byID := make([]string, 0, len(sigs))
	for sig := range sigs {
		byID = append(byID, sig)
	}
	sort.Slice(byID, func(i, j int) bool { return sigs[byID[i]] < sigs[byID[j]] })
	fmt.Fprintf(w, "%s (%d):\n", title, len(byID))
	for _, sig := range byID {
		fmt.Fprintf(w, "  %3d: %s\n", sigs[sig], sig)
	}
}

func (s *Shell) raw(_ []string) error {
	raw := s.mcu.GetDictionaryRaw()
	fmt.Fprintf(s.out, "Raw dictionary data (%d bytes):\n%s\n", len(raw), raw)
	return nil
}

func (s *Shell) resolve(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: resolve <hz> [fcpu]")
	}
	hz, err := parseUint(args[0], "hz")
	if err != nil {
		return err
	}
	fcpu := uint32(core.TimerFreq)
	if len(args) == 2 {
		if fcpu, err = parseUint(args[1], "fcpu"); err != nil {
			return err
		}
	}
	p, exact := core.ResolveTimer(hz, fcpu, core.AVRTimer1Prescalers, core.Timer1MaxCompare)
	fmt.Fprintf(s.out, "hz=%d fcpu=%d: div=%d cs=0b%03b compare=%d exact=%t achieved=%s Hz\n",
		hz, fcpu, p.Divisor, p.Select, p.Compare, exact, milliHz(p.AchievedMilliHz(fcpu)))
	return nil
}

func (s *Shell) help(_ []string) error {
	printCommands(s.out)
	return nil
}

func parseUint(v, name string) (uint32, error) {
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return uint32(n), nil
}

func parseBit(v, name string) (uint8, error) {
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return uint8(n & 1), nil
}

// milliHz formats a mHz value as Hz with three decimals
func milliHz(mhz uint64) string {
	return fmt.Sprintf("%d.%03d", mhz/1000, mhz%1000)
}
