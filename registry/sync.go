package registry

import (
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// DevicesFile is the registry document filename inside the registry directory.
const DevicesFile = "devices.toml"

// SyncStatus describes the git state of the registry directory.
type SyncStatus struct {
	Initialized bool
	Dirty       bool
	Branch      string
	RemoteURL   string
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "esprelay",
		Email: "esprelay@localhost",
		When:  time.Now(),
	}
}

// InitRepo initializes the registry directory as a git repository, cloning
// from remoteURL when one is given, and seeding an empty devices document
// otherwise.
func InitRepo(dir, remoteURL string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	if remoteURL != "" {
		_, err := git.PlainClone(dir, false, &git.CloneOptions{URL: remoteURL})
		return errors.Wrapf(err, "clone %s", remoteURL)
	}

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return errors.Wrap(err, "init registry repository")
	}

	devicesPath := filepath.Join(dir, DevicesFile)
	if _, err := os.Stat(devicesPath); os.IsNotExist(err) {
		if err := os.WriteFile(devicesPath, []byte("[device]\n"), 0o644); err != nil {
			return errors.Wrap(err, "seed devices document")
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}
	if _, err := wt.Add(DevicesFile); err != nil {
		return errors.Wrap(err, "stage devices document")
	}
	if _, err := wt.Commit("Initial registry", &git.CommitOptions{Author: signature()}); err != nil {
		return errors.Wrap(err, "initial commit")
	}
	return nil
}

// IsRepo reports whether the registry directory is already a git repository.
func IsRepo(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// Sync stages everything in the registry directory, commits if there are
// changes, and pulls then pushes when a remote is configured. It returns a
// human-readable summary of what happened.
func Sync(dir, message string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", errors.Wrap(err, "registry is not a git repository")
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "open worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", errors.Wrap(err, "stage changes")
	}

	status, err := wt.Status()
	if err != nil {
		return "", errors.Wrap(err, "worktree status")
	}
	if !status.IsClean() {
		if _, err := wt.Commit(message, &git.CommitOptions{Author: signature()}); err != nil {
			return "", errors.Wrap(err, "commit")
		}
	}

	remotes, err := repo.Remotes()
	if err != nil {
		return "", errors.Wrap(err, "list remotes")
	}
	if len(remotes) == 0 {
		return "Committed locally (no remote configured)", nil
	}

	if err := wt.Pull(&git.PullOptions{RemoteName: git.DefaultRemoteName}); err != nil &&
		!errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", errors.Wrap(err, "pull")
	}
	if err := repo.Push(&git.PushOptions{}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", errors.Wrap(err, "push")
	}
	return "Synced with remote", nil
}

// Status reports the git state of the registry directory. A directory that is
// not a repository yields Initialized=false, not an error.
func Status(dir string) (SyncStatus, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return SyncStatus{}, nil
	}

	st := SyncStatus{Initialized: true}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			st.Dirty = !status.IsClean()
		}
	}
	if head, err := repo.Head(); err == nil {
		st.Branch = head.Name().Short()
	}
	if remotes, err := repo.Remotes(); err == nil && len(remotes) > 0 {
		if urls := remotes[0].Config().URLs; len(urls) > 0 {
			st.RemoteURL = urls[0]
		}
	}
	return st, nil
}
