package git

import "strings"

// LogForNode returns commit subject lines mentioning nodeID, most recent
// first — a read-only navigation helper (spec §4.3). Silently returns an
// empty slice if git is unavailable.
func (l *Layer) LogForNode(nodeID string) ([]string, error) {
	if !l.available() {
		return nil, nil
	}
	out, err := l.run("log", "--grep", nodeID, "--pretty=format:%s", "--all")
	if err != nil {
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// DiffBlueprint returns the diff between the default branch and the
// blueprint's design branch. Silently returns "" if git or the branch
// is unavailable.
func (l *Layer) DiffBlueprint(blueprintID string) (string, error) {
	if !l.available() {
		return "", nil
	}
	branch := "design/" + sanitizeID(blueprintID)
	if !l.branchExists(branch) {
		return "", nil
	}
	out, _ := l.run("diff", l.defaultBranch+"..."+branch)
	return out, nil
}

// Branches lists local branch names matching pattern (a plain substring
// match; empty pattern matches everything). Silently returns an empty
// slice if git is unavailable.
func (l *Layer) Branches(pattern string) ([]string, error) {
	if !l.available() {
		return nil, nil
	}
	out, err := l.run("for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	var matched []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if pattern == "" || strings.Contains(line, pattern) {
			matched = append(matched, line)
		}
	}
	return matched, nil
}

// TruncateDiff truncates a diff string if it exceeds maxBytes, so
// oversized diffs never blow out a downstream prompt or log line.
//
// Grounded on internal/git/diff.go's TruncateDiff (cortex), carried
// over unchanged.
func TruncateDiff(diff string, maxBytes int) string {
	if len(diff) <= maxBytes {
		return diff
	}
	return diff[:maxBytes] + "\n\n[Diff truncated...]"
}
