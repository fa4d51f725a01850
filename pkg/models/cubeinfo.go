package models

// ChangeType classifies a branch cube against its head during diff and merge
type ChangeType string

const (
	ChangeCreated  ChangeType = "CREATED"
	ChangeUpdated  ChangeType = "UPDATED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeRestored ChangeType = "RESTORED"
	ChangeConflict ChangeType = "CONFLICT"
)

// CubeInfo describes one persisted cube revision. A negative revision number
// is a tombstone. HeadSHA1 records the head fingerprint this branch cube was
// forked from or last synced with; empty means a never-merged new cube.
type CubeInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AppID      AppID      `json:"app_id"`
	Revision   int64      `json:"revision"`
	SHA1       string     `json:"sha1,omitempty"`
	HeadSHA1   string     `json:"head_sha1,omitempty"`
	Changed    bool       `json:"changed"`
	Notes      string     `json:"notes,omitempty"`
	TestData   string     `json:"test_data,omitempty"`
	ChangeType ChangeType `json:"change_type,omitempty"`
}

// IsTombstone reports whether this revision records a deletion
func (c *CubeInfo) IsTombstone() bool {
	return c.Revision < 0
}

// SearchOptions narrows a persister search
type SearchOptions struct {
	IncludeCubeData    bool
	IncludeTestData    bool
	IncludeNotes       bool
	DeletedRecordsOnly bool
	ActiveRecordsOnly  bool
	ChangedRecordsOnly bool
	ExactMatchName     bool
}
