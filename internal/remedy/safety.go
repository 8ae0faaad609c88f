package remedy

import (
	"regexp"
	"strings"
)

// RiskLevel indicates the danger level of a remediation command.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskWarning
	RiskBlocked
)

// Risk is the analysis of one command.
type Risk struct {
	Level  RiskLevel
	Reason string
}

// riskPattern defines a dangerous command pattern.
type riskPattern struct {
	regex  *regexp.Regexp
	level  RiskLevel
	reason string
}

// Guard vets user-configured remediation commands before they enter
// the catalog. Remediations run unattended with root privileges, so a
// config typo must not be able to destroy the system it is meant to
// repair.
type Guard struct {
	patterns []riskPattern
}

// NewGuard creates a guard with the default pattern set.
func NewGuard() *Guard {
	return &Guard{patterns: defaultRiskPatterns()}
}

func defaultRiskPatterns() []riskPattern {
	return []riskPattern{
		{
			regex:  regexp.MustCompile(`rm\s+(-[a-zA-Z]+\s+)*(/|/\*|~|\$HOME)(\s|$)`),
			level:  RiskBlocked,
			reason: "recursive removal of a critical path",
		},
		{
			regex:  regexp.MustCompile(`\bmkfs(\.\w+)?\s`),
			level:  RiskBlocked,
			reason: "filesystem formatting",
		},
		{
			regex:  regexp.MustCompile(`\bdd\s+.*of=/dev/`),
			level:  RiskBlocked,
			reason: "raw write to a block device",
		},
		{
			regex:  regexp.MustCompile(`>\s*/dev/sd[a-z]`),
			level:  RiskBlocked,
			reason: "redirect onto a block device",
		},
		{
			regex:  regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b`),
			level:  RiskBlocked,
			reason: "power state change mid-update",
		},
		{
			regex:  regexp.MustCompile(`chmod\s+(-[a-zA-Z]+\s+)*777\s+/(\s|$)`),
			level:  RiskBlocked,
			reason: "world-writable root filesystem",
		},
		{
			regex:  regexp.MustCompile(`\bpacman\s+(-[a-zA-Z]*R[a-zA-Z]*\s+).*\b(glibc|linux|systemd|pacman)\b`),
			level:  RiskWarning,
			reason: "removes a base system package",
		},
		{
			regex:  regexp.MustCompile(`curl\s+[^|]*\|\s*(sudo\s+)?(ba)?sh`),
			level:  RiskWarning,
			reason: "pipes a download into a shell",
		},
	}
}

// Vet analyses a command line. The highest matching risk wins.
func (g *Guard) Vet(command []string) Risk {
	line := strings.Join(command, " ")
	result := Risk{Level: RiskSafe}
	for _, p := range g.patterns {
		if !p.regex.MatchString(line) {
			continue
		}
		if p.level > result.Level {
			result = Risk{Level: p.level, Reason: p.reason}
		}
	}
	return result
}
