package fail2ban

import (
	"regexp"
	"strings"

	"github.com/user/banwatch/internal/model"
)

var firstNumber = regexp.MustCompile(`\d+`)

// parseJailList extracts jail names from `fail2ban-client status`:
//
//	Status
//	|- Number of jail:	2
//	`- Jail list:	sshd, nginx-http-auth
//
// Parsing is field-presence based; the tree drawing characters and
// their exact positions vary between fail2ban versions.
func parseJailList(out string) []string {
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "Jail list:")
		if idx < 0 {
			continue
		}
		var jails []string
		for _, name := range strings.Split(line[idx+len("Jail list:"):], ",") {
			if name = strings.TrimSpace(name); name != "" {
				jails = append(jails, name)
			}
		}
		return jails
	}
	return nil
}

// parseJailStatus extracts counters and the banned IP list from
// `fail2ban-client status <jail>` output.
func parseJailStatus(name, out string) model.JailStatus {
	status := model.JailStatus{Name: name, Enabled: true}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, "Currently failed:"):
			status.CurrentlyFailed = leadingNumber(line)
		case strings.Contains(line, "Total failed:"):
			status.TotalFailed = leadingNumber(line)
		case strings.Contains(line, "Currently banned:"):
			status.CurrentlyBanned = leadingNumber(line)
		case strings.Contains(line, "Total banned:"):
			status.TotalBanned = leadingNumber(line)
		case strings.Contains(line, "Banned IP list:"):
			status.BannedIPs = fieldsAfter(line, "Banned IP list:")
		case strings.Contains(line, "File list:"):
			// part of the Filter subtree; keep the filter's file list
			// as its identifier when no explicit name is printed
			if status.Filter == "" {
				status.Filter = strings.Join(fieldsAfter(line, "File list:"), " ")
			}
		case strings.Contains(line, "Actions") && strings.Contains(line, ":") &&
			!strings.Contains(line, "banned"):
			if rest := afterColon(line); rest != "" {
				for _, a := range strings.Split(rest, ",") {
					if a = strings.TrimSpace(a); a != "" {
						status.Actions = append(status.Actions, a)
					}
				}
			}
		}
	}

	return status
}

func leadingNumber(line string) int {
	m := firstNumber.FindString(afterColon(line))
	if m == "" {
		return 0
	}
	n := 0
	for _, r := range m {
		n = n*10 + int(r-'0')
	}
	return n
}

func afterColon(line string) string {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

func fieldsAfter(line, marker string) []string {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return nil
	}
	return strings.Fields(line[idx+len(marker):])
}
