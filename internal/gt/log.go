package gt

import (
	"regexp"
	"strings"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

var (
	// branch lines start with a node bullet, possibly after graph edges
	bulletLine = regexp.MustCompile(`^[\s│┃├└┘┐┌─╭╮╯╰]*[◉◯●○▸▹►▻⦿⊙*]\s+(.+)$`)
	currentTag = regexp.MustCompile(`(?i)\(current\)`)
	fieldSep   = regexp.MustCompile(`\s*[·|]\s*`)
)

// ParseLogShort parses `gt log short` output. Each branch line looks like
//
//	◉ name (current) · 2 hours ago · abc1234 · commit message
//
// Lines without a bullet are skipped. Branches come back in output order,
// child first.
func ParseLogShort(out, trunk string) []model.BranchInfo {
	branches := []model.BranchInfo{}
	for _, line := range strings.Split(out, "\n") {
		m := bulletLine.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		rest := m[1]
		isCurrent := currentTag.MatchString(rest)
		rest = strings.TrimSpace(currentTag.ReplaceAllString(rest, ""))

		parts := fieldSep.Split(rest, -1)
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		b := model.BranchInfo{
			Name:      name,
			IsCurrent: isCurrent,
			IsTrunk:   name == trunk,
		}
		if len(parts) > 1 {
			b.TimeAgo = parts[1]
		}
		if len(parts) > 2 {
			b.CommitSHA = parts[2]
		}
		if len(parts) > 3 {
			b.CommitMessage = strings.Join(parts[3:], " · ")
		}
		branches = append(branches, b)
	}
	return branches
}
