package youtube

import (
	"regexp"
	"strconv"
)

var durationRe = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO-8601 period as returned by the videos
// endpoint (PT1H2M10S) into whole seconds. Missing components default to
// zero; unparseable input yields zero. Live streams report "P0D".
func ParseISODuration(s string) int {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	days := atoiDefault(m[1])
	hours := atoiDefault(m[2])
	minutes := atoiDefault(m[3])
	seconds := atoiDefault(m[4])
	return ((days*24+hours)*60+minutes)*60 + seconds
}

func atoiDefault(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
