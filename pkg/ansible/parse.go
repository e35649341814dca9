package ansible

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	taskLineRe = regexp.MustCompile(`^TASK \[(.+?)\]`)

	recapLineRe = regexp.MustCompile(
		`^(\S+)\s*:\s*ok=(\d+)\s+changed=(\d+)\s+unreachable=(\d+)\s+failed=(\d+)` +
			`(?:\s+skipped=(\d+))?(?:\s+rescued=(\d+))?(?:\s+ignored=(\d+))?`)
)

// CurrentTask extracts the task name from an ansible "TASK [...]" progress
// line. Returns ("", false) for any other line.
func CurrentTask(line string) (string, bool) {
	m := taskLineRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RecapLine is one host row of a PLAY RECAP block
type RecapLine struct {
	Host        string `json:"host"`
	OK          int    `json:"ok"`
	Changed     int    `json:"changed"`
	Unreachable int    `json:"unreachable"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Rescued     int    `json:"rescued"`
	Ignored     int    `json:"ignored"`
}

// Failures reports whether the host finished with failed or unreachable tasks
func (r RecapLine) Failures() bool {
	return r.Failed > 0 || r.Unreachable > 0
}

// ParsePlayRecap extracts per-host summary rows from captured playbook
// output. Rows appear in output order.
func ParsePlayRecap(output string) []RecapLine {
	var recap []RecapLine
	inRecap := false
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "PLAY RECAP") {
			inRecap = true
			continue
		}
		if !inRecap {
			continue
		}
		m := recapLineRe.FindStringSubmatch(line)
		if m == nil {
			// A recap block ends at the first non-matching, non-empty line
			if strings.TrimSpace(line) != "" {
				inRecap = false
			}
			continue
		}
		recap = append(recap, RecapLine{
			Host:        m[1],
			OK:          atoi(m[2]),
			Changed:     atoi(m[3]),
			Unreachable: atoi(m[4]),
			Failed:      atoi(m[5]),
			Skipped:     atoi(m[6]),
			Rescued:     atoi(m[7]),
			Ignored:     atoi(m[8]),
		})
	}
	return recap
}

// RenderPlayRecap formats recap rows the way ansible prints them. Used for
// logging and as the inverse of ParsePlayRecap.
func RenderPlayRecap(recap []RecapLine) string {
	var b strings.Builder
	b.WriteString("PLAY RECAP *********************************************************************\n")
	for _, r := range recap {
		fmt.Fprintf(&b, "%-26s : ok=%d    changed=%d    unreachable=%d    failed=%d    skipped=%d    rescued=%d    ignored=%d\n",
			r.Host, r.OK, r.Changed, r.Unreachable, r.Failed, r.Skipped, r.Rescued, r.Ignored)
	}
	return b.String()
}

// ParseDisplaySummaries extracts the "msg" payloads of display-summary tasks
// (any TASK whose name contains "summary") from captured playbook output.
// String payloads are unquoted, array payloads are joined with newlines, and
// duplicate payloads are collapsed by content hash.
func ParseDisplaySummaries(output string) []string {
	lines := strings.Split(output, "\n")
	var summaries []string
	seen := make(map[string]struct{})

	inSummaryTask := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if name, ok := CurrentTask(line); ok {
			inSummaryTask = strings.Contains(strings.ToLower(name), "summary")
			continue
		}
		if strings.HasPrefix(line, "PLAY") {
			inSummaryTask = false
			continue
		}
		if !inSummaryTask {
			continue
		}

		idx := strings.Index(line, `"msg":`)
		if idx < 0 {
			continue
		}

		payload, end := collectMsgPayload(lines, i, idx+len(`"msg":`))
		i = end

		text, ok := decodeMsgPayload(payload)
		if !ok || text == "" {
			continue
		}
		sum := sha256.Sum256([]byte(text))
		key := hex.EncodeToString(sum[:])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summaries = append(summaries, text)
	}
	return summaries
}

// collectMsgPayload gathers the JSON value following a "msg": key, which may
// span multiple lines for array payloads. Returns the raw payload and the
// index of the last consumed line.
func collectMsgPayload(lines []string, start, offset int) (string, int) {
	first := strings.TrimSpace(lines[start][offset:])

	depth := strings.Count(first, "[") - strings.Count(first, "]")
	if depth <= 0 {
		return trimPayload(first), start
	}

	var b strings.Builder
	b.WriteString(first)
	end := start
	for j := start + 1; j < len(lines); j++ {
		end = j
		b.WriteString("\n")
		b.WriteString(lines[j])
		depth += strings.Count(lines[j], "[") - strings.Count(lines[j], "]")
		if depth <= 0 {
			break
		}
	}
	return trimPayload(b.String()), end
}

// trimPayload strips the trailing JSON-object syntax that follows the msg
// value on the same line, e.g. `"done"}` or `["a"],`.
func trimPayload(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, "}") || strings.HasSuffix(s, ",") {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	return s
}

// decodeMsgPayload interprets the payload as a JSON string or string array
func decodeMsgPayload(payload string) (string, bool) {
	var asString string
	if err := json.Unmarshal([]byte(payload), &asString); err == nil {
		return asString, true
	}
	var asArray []string
	if err := json.Unmarshal([]byte(payload), &asArray); err == nil {
		return strings.Join(asArray, "\n"), true
	}
	return "", false
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
