package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string, ...interface{}) error
		checkIs func(error) bool
		others  []func(error) bool
	}{
		{"Input", Inputf, IsInput, []func(error) bool{IsSecurity, IsState}},
		{"Security", Securityf, IsSecurity, []func(error) bool{IsInput, IsNotFound}},
		{"State", Statef, IsState, []func(error) bool{IsInput, IsSecurity}},
		{"NotFound", NotFoundf, IsNotFound, []func(error) bool{IsInput, IsResource}},
		{"Resource", Resourcef, IsResource, []func(error) bool{IsNotFound, IsState}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn("cube %s broke", "rates")
			require.Error(t, err)
			assert.True(t, tt.checkIs(err))
			assert.Contains(t, err.Error(), "cube rates broke")
			for _, other := range tt.others {
				assert.False(t, other(err))
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrorTypeState, cause, "persister unavailable")
	assert.True(t, IsState(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "persister unavailable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBranchMergeError(t *testing.T) {
	err := NewBranchMergeError(map[string]Conflict{
		"rates": {Message: "overlap", SHA1: "abc", HeadSHA1: "def", Diff: []string{"update row=1|col=1"}},
		"fees":  {Message: "overlap"},
	})
	assert.Contains(t, err.Error(), "2 cube(s)")
	assert.Contains(t, err.Error(), "fees, rates")

	wrapped := fmt.Errorf("commit failed: %w", err)
	got, ok := AsBranchMerge(wrapped)
	require.True(t, ok)
	assert.Len(t, got.Conflicts, 2)
	assert.NotEmpty(t, got.Conflicts["rates"].Diff)

	_, ok = AsBranchMerge(stderrors.New("plain"))
	assert.False(t, ok)
}
