package version

import (
	"regexp"
	"strings"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// Bump is a semantic version increment.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

// String returns the lower-case name of the bump.
func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

var (
	headerPattern   = regexp.MustCompile(`^([a-zA-Z]+)(\([^()\r\n]*\))?(!)?: \S`)
	breakingPattern = regexp.MustCompile(`(?m)^BREAKING[ -]CHANGE: `)
)

// Commit is a single commit of the analysed history.
type Commit struct {
	Hash    string
	Message string
}

// analyzer classifies commit messages.
type analyzer struct {
	machine conventionalcommits.Machine
}

func newAnalyzer() *analyzer {
	return &analyzer{
		machine: parser.NewMachine(
			parser.WithTypes(conventionalcommits.TypesConventional),
			parser.WithBestEffort(),
		),
	}
}

// bump returns the increment a commit message asks for.
func (a *analyzer) bump(message string) Bump {
	message = strings.TrimSpace(strings.ReplaceAll(message, "\r\n", "\n"))
	if message == "" {
		return BumpNone
	}

	msg, err := a.machine.Parse([]byte(message))
	if cc, ok := msg.(*conventionalcommits.ConventionalCommit); ok && err == nil && cc != nil && cc.Type != "" {
		if cc.Exclamation || hasBreakingFooter(cc.Footers) || breakingPattern.MatchString(message) {
			return BumpMajor
		}
		return typeBump(cc.Type)
	}

	return a.headerBump(message)
}

// headerBump classifies a message from its header line and breaking-change
// footers only. It covers messages the parser rejects, such as bodies with
// trailers it does not understand or types in a different case.
func (a *analyzer) headerBump(message string) Bump {
	header, _, _ := strings.Cut(message, "\n")
	m := headerPattern.FindStringSubmatch(header)
	if m == nil {
		return BumpNone
	}

	b := typeBump(m[1])
	if b == BumpNone && !isConventionalType(m[1]) {
		return BumpNone
	}
	if m[3] == "!" || breakingPattern.MatchString(message) {
		return BumpMajor
	}
	return b
}

func typeBump(t string) Bump {
	switch strings.ToLower(t) {
	case "feat":
		return BumpMinor
	case "fix", "perf":
		return BumpPatch
	default:
		return BumpNone
	}
}

func isConventionalType(t string) bool {
	switch strings.ToLower(t) {
	case "build", "chore", "ci", "docs", "feat", "fix", "perf", "refactor", "revert", "style", "test":
		return true
	default:
		return false
	}
}

func hasBreakingFooter(footers map[string][]string) bool {
	for key := range footers {
		switch strings.ToLower(key) {
		case "breaking change", "breaking-change":
			return true
		}
	}
	return false
}
