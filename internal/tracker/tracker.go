// Package tracker defines the tracker-neutral types and the Adapter
// interface the sync engine depends on (spec.md §3 RemoteRef/Issue/
// SyncStatus, §4.3 Adapter interface). It is grounded on the shape of
// the teacher's internal/repo/repo.go: a single package-level interface
// that other packages depend on and constructor functions that return
// interface values, but with entirely new method signatures — the
// teacher's Repository reads Linear data out of a cache, this reads
// and writes issues in a tracker.
package tracker

import (
	"context"

	"github.com/jra3/specsync/internal/config"
	"github.com/jra3/specsync/internal/spec"
)

// IssueState is the tracker-neutral open/closed state (spec.md §3 Issue).
type IssueState string

const (
	StateOpen   IssueState = "OPEN"
	StateClosed IssueState = "CLOSED"
)

// RefType distinguishes a parent issue RemoteRef from a subtask one
// (spec.md §3 RemoteRef, §2 step 4).
type RefType string

const (
	RefTypeParent  RefType = "parent"
	RefTypeSubtask RefType = "subtask"
)

// RemoteRef is an opaque reference to a remote issue (spec.md §3 RemoteRef,
// glossary).
type RemoteRef struct {
	ID   string
	URL  string
	Type RefType
	// Kind is the spec file kind (e.g. "spec", "plan", "contracts") this
	// ref was created or updated for. Empty for a bare parent ref.
	Kind string
}

// Issue is the tracker-neutral projection of a remote issue (spec.md §3 Issue).
type Issue struct {
	Number      int
	Title       string
	Body        string
	State       IssueState
	Labels      []string
	Assignees   []string
	Milestone   int
	ParentIssue *int
	Subtasks    []Issue
	UpdatedAt   string
	URL         string
}

// Status is the result of getStatus (spec.md §3 SyncStatus).
type Status struct {
	Status     string // draft | synced | conflict | local | unknown
	HasChanges bool
	RemoteID   *int
	LastSync   string
	Conflicts  []string
}

const (
	StatusDraft    = "draft"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
	StatusLocal    = "local"
	StatusUnknown  = "unknown"
)

// PushOptions parameterizes a push/pushBatch call (spec.md §4.3, §4.5).
type PushOptions struct {
	Force  bool
	DryRun bool
}

// PullOptions parameterizes a pull call (spec.md §4.3).
type PullOptions struct{}

// Capabilities is the capability descriptor returned by capabilities()
// (spec.md §4.3): a value, not a type, so the engine branches on it at
// runtime instead of pattern-matching on concrete adapter types
// (spec.md §9 "Adapter polymorphism").
type Capabilities struct {
	SupportsBatch              bool
	SupportsSubtasks           bool
	SupportsLabels             bool
	SupportsAssignees          bool
	SupportsMilestones         bool
	SupportsComments           bool
	SupportsConflictResolution bool
}

// Adapter is the tracker-specific abstraction the engine depends on
// (spec.md §4.3). Each tracker implementation (only the GitHub-style
// reference one is fully specified) satisfies this interface.
type Adapter interface {
	Authenticate(ctx context.Context) error
	CheckAuth(ctx context.Context) bool

	Push(ctx context.Context, doc *spec.SpecDocument, opts PushOptions) (*RemoteRef, error)
	PushBatch(ctx context.Context, docs []*spec.SpecDocument, opts PushOptions) ([]*RemoteRef, error)

	Pull(ctx context.Context, ref *RemoteRef, opts PullOptions) (*spec.SpecDocument, error)

	GetStatus(ctx context.Context, doc *spec.SpecDocument) (*Status, error)

	ResolveConflict(ctx context.Context, local, remote *spec.SpecDocument, strategy config.ConflictStrategy) (*spec.SpecDocument, error)

	Capabilities() Capabilities
}

// SubtaskAdapter is the optional subtask surface a reference adapter may
// implement (spec.md §4.3 "Optional").
type SubtaskAdapter interface {
	CreateSubtask(ctx context.Context, parent *RemoteRef, title, body, fileKind string) (*RemoteRef, error)
	GetSubtasks(ctx context.Context, parent *RemoteRef) ([]RemoteRef, error)
}

// CommentAdapter is the optional comment/close/reopen surface (spec.md §4.3).
type CommentAdapter interface {
	AddComment(ctx context.Context, ref *RemoteRef, body string) error
	Close(ctx context.Context, ref *RemoteRef) error
	Reopen(ctx context.Context, ref *RemoteRef) error
}

// DefaultPushBatch is the fallback pushBatch behavior spec.md §4.3 defines
// for adapters that don't override it: call Push sequentially in input
// order.
func DefaultPushBatch(ctx context.Context, a Adapter, docs []*spec.SpecDocument, opts PushOptions) ([]*RemoteRef, error) {
	refs := make([]*RemoteRef, len(docs))
	for i, doc := range docs {
		ref, err := a.Push(ctx, doc, opts)
		if err != nil {
			return refs, err
		}
		refs[i] = ref
	}
	return refs, nil
}
