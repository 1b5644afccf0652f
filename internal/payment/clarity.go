package payment

import (
	"fmt"
	"strconv"
	"strings"
)

// Clarity value reprs as returned by the rail: u100 for uints, 'SP..
// for principals, "abc" or u"abc" for strings.

func parseUintRepr(repr string) (int64, error) {
	if !strings.HasPrefix(repr, "u") {
		return 0, fmt.Errorf("not a uint repr: %q", repr)
	}
	n, err := strconv.ParseInt(repr[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("uint repr %q: %w", repr, err)
	}
	return n, nil
}

func parsePrincipalRepr(repr string) string {
	return strings.TrimPrefix(repr, "'")
}

func parseStringRepr(repr string) (string, error) {
	repr = strings.TrimPrefix(repr, "u")
	s, err := strconv.Unquote(repr)
	if err != nil {
		return "", fmt.Errorf("string repr %q: %w", repr, err)
	}
	return s, nil
}

// argNames lists accepted parameter names per position of the settlement call.
var argNames = [3][]string{
	{"amount"},
	{"provider", "recipient"},
	{"skill-id", "skillId", "item-id"},
}

// callArg finds a settlement argument by name, falling back to its position.
func callArg(args []FunctionArg, pos int) (FunctionArg, bool) {
	for _, a := range args {
		for _, name := range argNames[pos] {
			if a.Name == name {
				return a, true
			}
		}
	}
	if pos < len(args) {
		return args[pos], true
	}
	return FunctionArg{}, false
}
