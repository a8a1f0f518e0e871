package git

import "fmt"

// BranchForBlueprint creates (or checks out) `design/<sanitized-id>`.
// If the working tree is dirty it stashes first. Returns the branch
// name and the branch the caller was on before switching, so the
// caller can restore it later. Silently succeeds with empty results if
// git is unavailable.
//
// Grounded on EnsureFeatureBranch (check exists, checkout-or-create)
// and CreateFeatureBranch (checkout -b from base), generalized from
// `feat/<bead-id>` to `design/<blueprint-id>` and given the
// stash-first safety spec §4.3 adds.
func (l *Layer) BranchForBlueprint(blueprintID string) (branch, previous string, err error) {
	branch = "design/" + sanitizeID(blueprintID)
	if !l.available() {
		return branch, "", nil
	}

	previous, err = l.currentBranch()
	if err != nil {
		return branch, "", err
	}

	if _, err := l.stashIfDirty(); err != nil {
		return branch, previous, err
	}

	if err := l.checkoutOrCreate(branch, l.defaultBranch); err != nil {
		return branch, previous, err
	}
	return branch, previous, nil
}

// BuildBranch creates `build/<blueprint>/<task>` branched from the
// blueprint's design branch, or the default branch if no design branch
// exists yet.
func (l *Layer) BuildBranch(blueprintID, taskID string) (branch string, err error) {
	branch = fmt.Sprintf("build/%s/%s", sanitizeID(blueprintID), sanitizeID(taskID))
	if !l.available() {
		return branch, nil
	}

	if _, err := l.stashIfDirty(); err != nil {
		return branch, err
	}

	base := "design/" + sanitizeID(blueprintID)
	if !l.branchExists(base) {
		base = l.defaultBranch
	}
	if err := l.checkoutOrCreate(branch, base); err != nil {
		return branch, err
	}
	return branch, nil
}

// RestoreBranch checks out `previous`, the branch BranchForBlueprint
// reported the caller came from. A no-op if previous is empty (git was
// unavailable, or the caller never switched).
func (l *Layer) RestoreBranch(previous string) error {
	if previous == "" || !l.available() {
		return nil
	}
	if out, err := l.run("checkout", previous); err != nil {
		return fmt.Errorf("git: restore branch %s: %w (%s)", previous, err, out)
	}
	return nil
}
