// Package fault classifies failed package-manager output into a closed
// set of fault kinds using an ordered signature table.
package fault

import (
	"regexp"
	"strings"
)

// Kind is the classification assigned to a failed attempt's output.
type Kind string

const (
	DependencyBreak          Kind = "dependency-break"
	VersionConflict          Kind = "version-conflict"
	GenericDependencyFailure Kind = "dependency-failure"
	SyncFailure              Kind = "sync-failure"
	SignatureFailure         Kind = "signature-failure"
	Unknown                  Kind = "unknown"
)

// Signature is one pattern-to-kind rule. Matching is substring by
// default; Regex switches to a compiled regular expression.
type Signature struct {
	Pattern string
	Regex   bool
	Kind    Kind

	re *regexp.Regexp
}

// Classifier applies an ordered signature list. First match wins, so
// more specific signatures must precede generic ones.
type Classifier struct {
	signatures []Signature
}

// New creates a classifier from an ordered signature list.
// Invalid regex patterns are dropped rather than failing startup.
func New(signatures []Signature) *Classifier {
	c := &Classifier{}
	for _, s := range signatures {
		if s.Regex {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				continue
			}
			s.re = re
		}
		c.signatures = append(c.signatures, s)
	}
	return c
}

// NewDefault creates a classifier with the built-in signature table.
func NewDefault() *Classifier {
	return New(DefaultSignatures())
}

// Prepend inserts signatures ahead of the existing table so user
// entries take precedence over built-ins.
func (c *Classifier) Prepend(signatures []Signature) *Classifier {
	merged := append([]Signature{}, signatures...)
	merged = append(merged, c.signatures...)
	return New(merged)
}

// Classify returns the kind of the first matching signature, or
// Unknown if nothing matches. Pure: never executes commands.
// Empty output (process died before producing any) is Unknown.
func (c *Classifier) Classify(output string) Kind {
	if strings.TrimSpace(output) == "" {
		return Unknown
	}
	for _, s := range c.signatures {
		if s.Regex {
			if s.re.MatchString(output) {
				return s.Kind
			}
		} else if strings.Contains(output, s.Pattern) {
			return s.Kind
		}
	}
	return Unknown
}

// ParseKind maps a config string to a Kind. Unrecognized values map
// to Unknown so a typo in config cannot invent a new kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case DependencyBreak:
		return DependencyBreak, true
	case VersionConflict:
		return VersionConflict, true
	case GenericDependencyFailure:
		return GenericDependencyFailure, true
	case SyncFailure:
		return SyncFailure, true
	case SignatureFailure:
		return SignatureFailure, true
	}
	return Unknown, false
}

var requiredByRe = regexp.MustCompile(`required by (\S+)`)

// RequiredBy extracts the package named in a "breaks dependency ...
// required by <pkg>" error, or "" when the phrase is absent. Used by
// remediation to target the exact conflicting package.
func RequiredBy(output string) string {
	m := requiredByRe.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], "'\"")
}
