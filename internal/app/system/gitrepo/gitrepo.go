// internal/app/system/gitrepo/gitrepo.go
// Package gitrepo answers branch-freshness questions against the project
// repositories kept on local disk, one bare or non-bare repository per
// project under a base directory named by the project id.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrRepoNotFound   = errors.New("project repository not found")
	ErrBranchNotFound = errors.New("branch not found")
)

// Freshness is the comparison of a source branch against its target.
type Freshness struct {
	UpToDate   bool   `json:"upToDate"`
	SourceHead string `json:"sourceHead"`
	TargetHead string `json:"targetHead"`
}

type Service struct {
	baseDir string
}

func New(baseDir string) *Service {
	return &Service{baseDir: baseDir}
}

func (s *Service) repoPath(projectID primitive.ObjectID) string {
	return filepath.Join(s.baseDir, projectID.Hex())
}

// Compare reports whether source contains the head of target, meaning a
// merge would not need to pull in unseen target commits.
func (s *Service) Compare(ctx context.Context, projectID primitive.ObjectID, source, target string) (Freshness, error) {
	if err := ctx.Err(); err != nil {
		return Freshness{}, err
	}

	path := s.repoPath(projectID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Freshness{}, ErrRepoNotFound
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Freshness{}, ErrRepoNotFound
		}
		return Freshness{}, fmt.Errorf("open repo: %w", err)
	}

	srcHash, err := branchHead(repo, source)
	if err != nil {
		return Freshness{}, err
	}
	tgtHash, err := branchHead(repo, target)
	if err != nil {
		return Freshness{}, err
	}

	out := Freshness{SourceHead: srcHash.String(), TargetHead: tgtHash.String()}
	if srcHash == tgtHash {
		out.UpToDate = true
		return out, nil
	}

	srcCommit, err := repo.CommitObject(srcHash)
	if err != nil {
		return Freshness{}, fmt.Errorf("load commit %s: %w", srcHash, err)
	}
	tgtCommit, err := repo.CommitObject(tgtHash)
	if err != nil {
		return Freshness{}, fmt.Errorf("load commit %s: %w", tgtHash, err)
	}
	ok, err := tgtCommit.IsAncestor(srcCommit)
	if err != nil {
		return Freshness{}, fmt.Errorf("walk history: %w", err)
	}
	out.UpToDate = ok
	return out, nil
}

// IsUpToDate is Compare reduced to its verdict.
func (s *Service) IsUpToDate(ctx context.Context, projectID primitive.ObjectID, source, target string) (bool, error) {
	f, err := s.Compare(ctx, projectID, source, target)
	if err != nil {
		return false, err
	}
	return f.UpToDate, nil
}

func branchHead(repo *git.Repository, branch string) (plumbing.Hash, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
		}
		return plumbing.ZeroHash, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	return ref.Hash(), nil
}
