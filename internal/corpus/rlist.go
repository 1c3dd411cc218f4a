package corpus

import "strings"

// ParseRList parses the R vector literals food.com exports use for list
// columns, such as c("flour", "sugar") or a single "salt". NA, character(0)
// and empty values yield nil. An unquoted value is returned as one element.
func ParseRList(s string) []string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NA", "character(0)", "c()":
		return nil
	}
	if !strings.Contains(s, `"`) {
		return []string{s}
	}
	var out []string
	for {
		start := strings.IndexByte(s, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start+1:], '"')
		if end < 0 {
			break
		}
		item := strings.TrimSpace(s[start+1 : start+1+end])
		if item != "" && item != "NA" {
			out = append(out, item)
		}
		s = s[start+end+2:]
	}
	return out
}
