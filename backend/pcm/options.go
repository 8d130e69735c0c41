package pcm

import (
	"fmt"
	"strings"
)

// options is a parsed driver option string: comma separated key=value pairs,
// or a bare device name applying to both directions.
type options map[string]string

func parseOptions(s string, keys ...string) (options, error) {
	opts := options{}
	s = strings.TrimSpace(s)
	if s == "" {
		return opts, nil
	}
	if !strings.Contains(s, "=") {
		opts["dev"] = s
		return opts, nil
	}

	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid driver option %q", part)
		}
		if !allowed[k] {
			return nil, fmt.Errorf("unknown driver option %q", k)
		}
		opts[k] = v
	}
	return opts, nil
}

// pick returns the first non empty value among keys.
func (o options) pick(keys ...string) string {
	for _, k := range keys {
		if v := o[k]; v != "" {
			return v
		}
	}
	return ""
}
