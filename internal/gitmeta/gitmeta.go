// Package gitmeta resolves the source revision of the engine checkout so
// launch reports can say exactly what was built.
package gitmeta

import (
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// ErrNotRepository means the directory is not inside a git repository.
// Callers treat the stamp as optional; running from an export or tarball is
// fine.
var ErrNotRepository = errors.New("proxyrunner: not a git repository")

// Stamp identifies the revision a run was built from.
type Stamp struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
}

// ShortCommit returns the abbreviated commit hash used in log lines.
func (s Stamp) ShortCommit() string {
	if len(s.Commit) < 8 {
		return s.Commit
	}
	return s.Commit[:8]
}

// Describe resolves HEAD for the repository containing dir, searching parent
// directories the way git itself does.
func Describe(dir string) (Stamp, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Stamp{}, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return Stamp{}, fmt.Errorf("open repository at %s: %w", dir, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return Stamp{}, fmt.Errorf("resolve HEAD in %s: %w", dir, err)
	}

	stamp := Stamp{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		stamp.Branch = ref.Name().Short()
	}
	return stamp, nil
}
