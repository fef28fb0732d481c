package protocol

import (
	"sort"
	"strings"
)

// Command is an ASCII control string sent verbatim to the instrument
type Command string

// Instrument commands
const (
	CmdStartLogging Command = ":C1;\n"
	CmdStopLogging  Command = ":C0;\n"
	CmdHeaterOn     Command = ":B1;\n"
	CmdHeaterOff    Command = ":B0;\n"
)

var commandsByName = map[string]Command{
	"start_logging": CmdStartLogging,
	"stop_logging":  CmdStopLogging,
	"heater_on":     CmdHeaterOn,
	"heater_off":    CmdHeaterOff,
}

// LookupCommand resolves a command by its API name
func LookupCommand(name string) (Command, bool) {
	cmd, ok := commandsByName[name]
	return cmd, ok
}

// CommandNames returns the known command names in sorted order
func CommandNames() []string {
	names := make([]string, 0, len(commandsByName))
	for name := range commandsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes returns the command as it goes on the wire
func (c Command) Bytes() []byte {
	return []byte(c)
}

// String returns the command without its line terminator
func (c Command) String() string {
	return strings.TrimSpace(string(c))
}

// Name returns the API name of a known command, or "raw" for anything else
func (c Command) Name() string {
	for name, cmd := range commandsByName {
		if cmd == c {
			return name
		}
	}
	return "raw"
}
