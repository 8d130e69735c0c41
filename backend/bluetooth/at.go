package bluetooth

import (
	"bytes"
	"strconv"
	"strings"
)

// scanATLines is a bufio.SplitFunc returning AT lines. Both CR and LF end a
// line and empty lines are skipped.
func scanATLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// isFinalResult reports whether line terminates the command in progress,
// and whether it is a failure.
func isFinalResult(line string) (final bool, failed bool) {
	switch line {
	case "OK":
		return true, false
	case "ERROR", "NO CARRIER", "BUSY", "NO ANSWER", "DELAYED", "BLACKLISTED":
		return true, true
	}
	if strings.HasPrefix(line, "+CME ERROR") {
		return true, true
	}
	return false, false
}

// splitResponse splits "+NAME: args" into its name and trimmed arguments.
func splitResponse(line string) (name, args string) {
	name, args, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(args)
}

// parseIndicatorNames extracts the indicator names in order from a
// +CIND=? response such as ("service",(0,1)),("call",(0,1)).
func parseIndicatorNames(args string) []string {
	var names []string
	depth := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '"':
			end := strings.IndexByte(args[i+1:], '"')
			if end < 0 {
				return names
			}
			if depth == 1 {
				names = append(names, strings.ToLower(args[i+1:i+1+end]))
			}
			i += end + 1
		}
	}
	return names
}

// parseIntList parses a comma separated list of integers.
func parseIntList(args string) ([]int, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	fields := strings.Split(args, ",")
	values := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// mapIndicators pairs indicator names with their values.
func mapIndicators(names []string, values []int) map[string]int {
	indicators := make(map[string]int, len(names))
	for i, name := range names {
		if i < len(values) {
			indicators[name] = values[i]
		} else {
			indicators[name] = 0
		}
	}
	return indicators
}

// parseCIEV parses the arguments of a +CIEV notification. The index is one
// based.
func parseCIEV(args string) (index, value int, ok bool) {
	values, err := parseIntList(args)
	if err != nil || len(values) != 2 || values[0] < 1 {
		return 0, 0, false
	}
	return values[0], values[1], true
}

// parseCLIP returns the caller number of a +CLIP notification.
func parseCLIP(args string) string {
	if !strings.HasPrefix(args, `"`) {
		number, _, _ := strings.Cut(args, ",")
		return strings.TrimSpace(number)
	}
	number, _, _ := strings.Cut(args[1:], `"`)
	return number
}

// parseBRSF returns the supported features bitfield of a +BRSF response.
func parseBRSF(args string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(args), 10, 32)
	return uint32(v), err
}

// brsfCapabilities converts capability bits into the AT+BRSF hands-free
// feature bitfield.
func brsfCapabilities(caps uint32) uint32 {
	return caps & 0x7f
}
