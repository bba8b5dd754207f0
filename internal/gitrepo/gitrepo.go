// Package gitrepo reads the staged diff of a repository and records commits.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultTimeout bounds each git subprocess.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNothingStaged reports an empty index diff.
	ErrNothingStaged = errors.New("no staged changes")
	// ErrAborted reports an edited message that is empty once comments are
	// removed.
	ErrAborted = errors.New("aborting commit due to empty commit message")
)

// Repo is an opened working tree.
type Repo struct {
	repo *git.Repository
	root string
}

// Open finds the repository containing path, walking up to the first
// directory with a .git entry.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root is the top of the working tree.
func (r *Repo) Root() string { return r.root }

// StagedDiff returns the patch between HEAD (or the empty tree on an unborn
// branch) and the index, as `git diff --cached` prints it.
func (r *Repo) StagedDiff(ctx context.Context) (string, error) {
	out, err := run(ctx, r.root, "diff", "--cached", "--no-color", "--no-ext-diff")
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return "", ErrNothingStaged
	}
	return string(out), nil
}

func run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Editor lets the user revise the file at path in place.
type Editor func(ctx context.Context, path string) error

// EditorCommand picks the editor the way git does: core.editor, then
// GIT_EDITOR, VISUAL and EDITOR, falling back to vi.
func (r *Repo) EditorCommand() string {
	if cfg, err := r.repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
		if e := cfg.Raw.Section("core").Option("editor"); e != "" {
			return e
		}
	}
	for _, env := range []string{"GIT_EDITOR", "VISUAL", "EDITOR"} {
		if e := strings.TrimSpace(os.Getenv(env)); e != "" {
			return e
		}
	}
	return "vi"
}

// ShellEditor runs command through sh with the terminal attached, so
// editor settings with arguments ("code --wait") work.
func ShellEditor(command string) Editor {
	return func(ctx context.Context, path string) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command+` "$@"`, command, path)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("editor %q: %w", command, err)
		}
		return nil
	}
}

// Commit opens message in edit, strips comment lines and records the index
// as a new commit on HEAD.
func (r *Repo) Commit(ctx context.Context, message, diff string, edit Editor) (plumbing.Hash, error) {
	f, err := os.CreateTemp("", "COMMIT_EDITMSG-*")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.WriteString(EditTemplate(message, diff))
	if err := errors.Join(werr, f.Close()); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write commit message: %w", err)
	}
	if err := edit(ctx, path); err != nil {
		return plumbing.ZeroHash, err
	}
	edited, err := os.ReadFile(path)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("read commit message: %w", err)
	}
	final := StripComments(string(edited))
	if final == "" {
		return plumbing.ZeroHash, ErrAborted
	}
	return r.CommitMessage(final)
}

// CommitMessage records the index with message as is.
func (r *Repo) CommitMessage(message string) (plumbing.Hash, error) {
	sig, err := r.signature()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	return hash, nil
}

func (r *Repo) signature() (*object.Signature, error) {
	cfg, err := r.repo.ConfigScoped(gitconfig.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("read git config: %w", err)
	}
	name, email := cfg.User.Name, cfg.User.Email
	if cfg.Author.Name != "" {
		name = cfg.Author.Name
	}
	if cfg.Author.Email != "" {
		email = cfg.Author.Email
	}
	if name == "" || email == "" {
		return nil, errors.New("git user.name and user.email must be configured")
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}, nil
}

// EditTemplate is the file shown to the user: the message, then the diff
// as comment lines.
func EditTemplate(message, diff string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n# Please enter the commit message for your changes. Lines starting\n")
	b.WriteString("# with '#' will be ignored, and an empty message aborts the commit.\n#\n")
	b.WriteString("# Changes to be committed:\n")
	for line := range strings.Lines(diff) {
		b.WriteString("# \t")
		b.WriteString(strings.TrimRight(line, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}

// StripComments drops lines starting with '#' and trims the result.
func StripComments(text string) string {
	var kept []string
	for line := range strings.Lines(text) {
		if strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, "\r\n"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
