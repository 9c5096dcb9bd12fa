package policy

import "strings"

// Command is a subscriber instruction sent by text message.
type Command int

const (
	Unknown Command = iota
	OptIn
	OptOut
)

func (c Command) String() string {
	switch c {
	case OptIn:
		return "opt_in"
	case OptOut:
		return "opt_out"
	default:
		return "unknown"
	}
}

var keywords = map[string]Command{
	"START":       OptIn,
	"SUBSCRIBE":   OptIn,
	"STOP":        OptOut,
	"UNSUBSCRIBE": OptOut,
}

// ParseCommand matches a message body against the opt-in/opt-out keywords.
func ParseCommand(body string) Command {
	if c, ok := keywords[strings.ToUpper(strings.TrimSpace(body))]; ok {
		return c
	}
	return Unknown
}
