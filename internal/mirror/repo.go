// Package mirror keeps a git history of every accepted version mutation, one
// repository per property and one file per version label.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"dealdesk/api/internal/deal"
)

type CommitInfo struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	CommittedAt time.Time `json:"committedAt"`
}

type Repo struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Repo {
	return &Repo{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the snapshot as <version>.json on the property's main branch.
func (r *Repo) Record(snap deal.Snapshot, action deal.Action, actor string) (CommitInfo, error) {
	lock := r.propertyLock(snap.PropertyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := r.openOrInit(snap.PropertyID)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	name := fileName(snap.Version)
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), name), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return CommitInfo{}, fmt.Errorf("git add %s: %w", name, err)
	}

	message := fmt.Sprintf("%s %s r%d", action, snap.Version, snap.Revision)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  actor,
			Email: authorEmail(actor),
			When:  snap.UpdatedAt,
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists the commits that touched one version, newest first.
func (r *Repo) History(propertyID, version string, limit int) ([]CommitInfo, error) {
	lock := r.propertyLock(propertyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(r.repoPath(propertyID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	name := fileName(version)
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads a version as it was recorded by the given commit.
func (r *Repo) SnapshotAt(propertyID, version, hash string) (deal.Snapshot, error) {
	lock := r.propertyLock(propertyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(r.repoPath(propertyID))
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("resolve %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(fileName(version))
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("load %s from commit: %w", fileName(version), err)
	}
	reader, err := file.Reader()
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	var snap deal.Snapshot
	if err := json.NewDecoder(reader).Decode(&snap); err != nil {
		return deal.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (r *Repo) openOrInit(propertyID string) (*git.Repository, error) {
	path := r.repoPath(propertyID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (r *Repo) repoPath(propertyID string) string {
	return filepath.Join(r.baseDir, safeSegment(propertyID))
}

func (r *Repo) propertyLock(propertyID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[propertyID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	r.locks[propertyID] = lock
	return lock
}

func fileName(version string) string {
	return safeSegment(version) + ".json"
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:        commitObj.Hash.String()[:7],
		Message:     strings.TrimSpace(commitObj.Message),
		Author:      commitObj.Author.Name,
		CommittedAt: commitObj.Author.When,
	}
}

// safeSegment keeps a path component inside the mirror root.
func safeSegment(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	s := strings.Trim(string(out), ".")
	if s == "" {
		return "_"
	}
	return s
}

func authorEmail(actor string) string {
	if strings.Contains(actor, "@") {
		return actor
	}
	return safeSegment(actor) + "@local.dealdesk"
}
