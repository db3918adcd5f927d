package deploy

import "strings"

// TailLines returns the last n lines of s.
func TailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// combineOutput labels and joins captured process streams for failure
// reports, keeping only the tail of each.
func combineOutput(stdout, stderr string) string {
	var sections []string
	if out := TailLines(stdout, 20); out != "" {
		sections = append(sections, "stdout:\n"+out)
	}
	if out := TailLines(stderr, 20); out != "" {
		sections = append(sections, "stderr:\n"+out)
	}
	return strings.Join(sections, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
