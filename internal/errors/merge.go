package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Conflict describes one cube that could not be merged
type Conflict struct {
	Message  string   `json:"message"`
	SHA1     string   `json:"sha1,omitempty"`
	HeadSHA1 string   `json:"head_sha1,omitempty"`
	Diff     []string `json:"diff,omitempty"`
}

// BranchMergeError reports the cubes of a commit or update that survived
// conflict detection. The non-conflicted subset of the batch is already
// durable when this error is raised; callers retry only the failed set.
type BranchMergeError struct {
	Conflicts map[string]Conflict
}

// Error implements the error interface
func (e *BranchMergeError) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for name := range e.Conflicts {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("merge conflict on %d cube(s): %s", len(names), strings.Join(names, ", "))
}

// NewBranchMergeError creates a merge error from a conflict map
func NewBranchMergeError(conflicts map[string]Conflict) *BranchMergeError {
	return &BranchMergeError{Conflicts: conflicts}
}

// AsBranchMerge extracts a BranchMergeError from an error chain
func AsBranchMerge(err error) (*BranchMergeError, bool) {
	var e *BranchMergeError
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
