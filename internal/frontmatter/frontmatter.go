// Package frontmatter implements the typed YAML header block carried by
// every spec file (spec.md §3 Frontmatter, §4.1 front-matter parsing,
// §4.2 front-matter schema). The split-on-"---"-delimiter algorithm is
// grounded on the teacher's internal/marshal/frontmatter.go; the typed
// schema and validation rules are new, built directly from spec.md.
package frontmatter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Status is the sync_status enum (spec.md §3).
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSynced   Status = "synced"
	StatusConflict Status = "conflict"
)

// IssueType is the issue_type enum (spec.md §3).
type IssueType string

const (
	IssueTypeParent  IssueType = "parent"
	IssueTypeSubtask IssueType = "subtask"
)

// GitHub is the tracker-specific sub-block for the reference adapter.
type GitHub struct {
	IssueNumber int      `yaml:"issue_number,omitempty"`
	ParentIssue *int     `yaml:"parent_issue,omitempty"`
	UpdatedAt   string   `yaml:"updated_at,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	Assignees   []string `yaml:"assignees,omitempty"`
	Milestone   int      `yaml:"milestone,omitempty"`

	// Extra preserves unknown keys inside the github block verbatim for
	// round-trip (spec.md §4.1: "unknown keys in tracker blocks are
	// preserved verbatim").
	Extra map[string]any `yaml:"-"`
}

// Frontmatter is the typed header block (spec.md §3/§6).
type Frontmatter struct {
	SpecID     string    `yaml:"spec_id,omitempty"`
	SyncHash   string    `yaml:"sync_hash,omitempty"`
	LastSync   string    `yaml:"last_sync,omitempty"`
	SyncStatus Status    `yaml:"sync_status,omitempty"`
	IssueType  IssueType `yaml:"issue_type,omitempty"`
	AutoSync   *bool     `yaml:"auto_sync,omitempty"`
	GitHub     *GitHub   `yaml:"github,omitempty"`
}

// AutoSyncOrDefault returns AutoSync, defaulting to true when unset
// (spec.md §4.2: "boolean (default true when absent)").
func (f *Frontmatter) AutoSyncOrDefault() bool {
	if f == nil || f.AutoSync == nil {
		return true
	}
	return *f.AutoSync
}

var (
	specIDPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	syncHashPattern = regexp.MustCompile(`^[a-f0-9]{12}$`)

	knownTopLevelKeys = map[string]bool{
		"spec_id":     true,
		"sync_hash":   true,
		"last_sync":   true,
		"sync_status": true,
		"issue_type":  true,
		"auto_sync":   true,
		"github":      true,
	}
	knownGitHubKeys = map[string]bool{
		"issue_number": true,
		"parent_issue": true,
		"updated_at":   true,
		"labels":       true,
		"assignees":    true,
		"milestone":    true,
	}
)

// ValidateSpecID reports whether s is a UUIDv4 (case-insensitive).
func ValidateSpecID(s string) error {
	if !specIDPattern.MatchString(s) {
		return fmt.Errorf("spec_id %q is not a UUIDv4", s)
	}
	return nil
}

// ValidateSyncHash reports whether s is 12 lowercase hex characters.
func ValidateSyncHash(s string) error {
	if !syncHashPattern.MatchString(s) {
		return fmt.Errorf("sync_hash %q must be 12 lowercase hex characters", s)
	}
	return nil
}

// ValidateLastSync reports whether s parses as RFC 3339/ISO-8601.
func ValidateLastSync(s string) error {
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return nil
	}
	return fmt.Errorf("last_sync %q is not RFC 3339", s)
}

func validateStatus(s Status) error {
	switch s {
	case StatusDraft, StatusSynced, StatusConflict, "":
		return nil
	default:
		return fmt.Errorf("sync_status %q is not one of draft|synced|conflict", s)
	}
}

func validateIssueType(t IssueType) error {
	switch t {
	case IssueTypeParent, IssueTypeSubtask, "":
		return nil
	default:
		return fmt.Errorf("issue_type %q is not one of parent|subtask", t)
	}
}

// ComputeSyncHash returns the first 12 hex characters of SHA-256(markdown)
// (spec.md §3 sync_hash, §6 glossary "Sync hash").
func ComputeSyncHash(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])[:12]
}

// Parse splits raw file content into its frontmatter and markdown
// body. When the content does not begin with the delimiter, the
// frontmatter is empty and the whole content is the body — this is not
// an error (spec.md §4.1: "Anything before the opening delimiter is
// illegal and causes the file to be surfaced with empty frontmatter and
// the raw body as markdown").
func Parse(content []byte) (*Frontmatter, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, delimiter) {
		return &Frontmatter{}, str, nil
	}

	rest := str[len(delimiter):]
	idx := strings.Index(rest, "\n"+delimiter)
	if idx == -1 {
		return nil, "", fmt.Errorf("unclosed frontmatter delimiter")
	}

	yamlBlock := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len("\n"+delimiter):], "\n")

	raw := make(map[string]any)
	if err := yaml.Unmarshal([]byte(yamlBlock), &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	fm, err := fromRawMap(raw)
	if err != nil {
		return nil, "", err
	}

	return fm, body, nil
}

func fromRawMap(raw map[string]any) (*Frontmatter, error) {
	fm := &Frontmatter{}

	// Unknown top-level keys are stripped (spec.md §4.1); only known keys
	// are read out of raw below.
	if v, ok := raw["spec_id"]; ok {
		s, _ := v.(string)
		s = strings.ToLower(s)
		if err := ValidateSpecID(s); err != nil {
			return nil, err
		}
		fm.SpecID = s
	}
	if v, ok := raw["sync_hash"]; ok {
		s, _ := v.(string)
		if err := ValidateSyncHash(s); err != nil {
			return nil, err
		}
		fm.SyncHash = s
	}
	if v, ok := raw["last_sync"]; ok {
		s, _ := v.(string)
		if err := ValidateLastSync(s); err != nil {
			return nil, err
		}
		fm.LastSync = s
	}
	if v, ok := raw["sync_status"]; ok {
		s, _ := v.(string)
		status := Status(s)
		if err := validateStatus(status); err != nil {
			return nil, err
		}
		fm.SyncStatus = status
	}
	if v, ok := raw["issue_type"]; ok {
		s, _ := v.(string)
		it := IssueType(s)
		if err := validateIssueType(it); err != nil {
			return nil, err
		}
		fm.IssueType = it
	}
	if v, ok := raw["auto_sync"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("auto_sync must be a boolean, got %T", v)
		}
		fm.AutoSync = &b
	}
	if v, ok := raw["github"]; ok {
		ghRaw, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("github block must be a mapping, got %T", v)
		}
		gh, err := githubFromRawMap(ghRaw)
		if err != nil {
			return nil, err
		}
		fm.GitHub = gh
	}

	return fm, nil
}

func githubFromRawMap(raw map[string]any) (*GitHub, error) {
	gh := &GitHub{Extra: make(map[string]any)}

	if v, ok := raw["issue_number"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("github.issue_number: %w", err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("github.issue_number must be a positive integer, got %d", n)
		}
		gh.IssueNumber = n
	}
	if v, ok := raw["parent_issue"]; ok && v != nil {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("github.parent_issue: %w", err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("github.parent_issue must be a positive integer, got %d", n)
		}
		gh.ParentIssue = &n
	}
	if v, ok := raw["updated_at"]; ok {
		s, _ := v.(string)
		gh.UpdatedAt = s
	}
	if v, ok := raw["labels"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return nil, fmt.Errorf("github.labels: %w", err)
		}
		gh.Labels = s
	}
	if v, ok := raw["assignees"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return nil, fmt.Errorf("github.assignees: %w", err)
		}
		gh.Assignees = s
	}
	if v, ok := raw["milestone"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("github.milestone: %w", err)
		}
		gh.Milestone = n
	}

	for k, v := range raw {
		if !knownGitHubKeys[k] {
			gh.Extra[k] = v
		}
	}

	return gh, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toStringSlice(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a sequence, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string element, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}

// Render combines frontmatter and body into a markdown document
// (spec.md §6 on-disk format). Frontmatter is only emitted when it
// carries at least one field.
func Render(fm *Frontmatter, body string) ([]byte, error) {
	if fm == nil || isEmpty(fm) {
		return []byte(body), nil
	}

	m := toMap(fm)

	var buf strings.Builder
	buf.WriteString(delimiter)
	buf.WriteString("\n")

	fmBytes, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	buf.Write(fmBytes)

	buf.WriteString(delimiter)
	buf.WriteString("\n")
	buf.WriteString(body)

	return []byte(buf.String()), nil
}

func isEmpty(fm *Frontmatter) bool {
	return fm.SpecID == "" && fm.SyncHash == "" && fm.LastSync == "" &&
		fm.SyncStatus == "" && fm.IssueType == "" && fm.AutoSync == nil && fm.GitHub == nil
}

func toMap(fm *Frontmatter) map[string]any {
	m := make(map[string]any)
	if fm.SpecID != "" {
		m["spec_id"] = fm.SpecID
	}
	if fm.SyncHash != "" {
		m["sync_hash"] = fm.SyncHash
	}
	if fm.LastSync != "" {
		m["last_sync"] = fm.LastSync
	}
	if fm.SyncStatus != "" {
		m["sync_status"] = fm.SyncStatus
	}
	if fm.IssueType != "" {
		m["issue_type"] = fm.IssueType
	}
	if fm.AutoSync != nil {
		m["auto_sync"] = *fm.AutoSync
	}
	if fm.GitHub != nil {
		gh := make(map[string]any, len(fm.GitHub.Extra)+6)
		for k, v := range fm.GitHub.Extra {
			gh[k] = v
		}
		if fm.GitHub.IssueNumber != 0 {
			gh["issue_number"] = fm.GitHub.IssueNumber
		}
		if fm.GitHub.ParentIssue != nil {
			gh["parent_issue"] = *fm.GitHub.ParentIssue
		}
		if fm.GitHub.UpdatedAt != "" {
			gh["updated_at"] = fm.GitHub.UpdatedAt
		}
		if len(fm.GitHub.Labels) > 0 {
			gh["labels"] = fm.GitHub.Labels
		}
		if len(fm.GitHub.Assignees) > 0 {
			gh["assignees"] = fm.GitHub.Assignees
		}
		if fm.GitHub.Milestone != 0 {
			gh["milestone"] = fm.GitHub.Milestone
		}
		if len(gh) > 0 {
			m["github"] = gh
		}
	}
	return m
}

// Clone returns a deep-enough copy of fm suitable for mutating without
// affecting the original (the engine's writeback edits a clone and then
// swaps it in for the file's Frontmatter).
func Clone(fm *Frontmatter) *Frontmatter {
	if fm == nil {
		return &Frontmatter{}
	}
	clone := *fm
	if fm.AutoSync != nil {
		b := *fm.AutoSync
		clone.AutoSync = &b
	}
	if fm.GitHub != nil {
		gh := *fm.GitHub
		if fm.GitHub.ParentIssue != nil {
			p := *fm.GitHub.ParentIssue
			gh.ParentIssue = &p
		}
		gh.Labels = append([]string(nil), fm.GitHub.Labels...)
		gh.Assignees = append([]string(nil), fm.GitHub.Assignees...)
		gh.Extra = make(map[string]any, len(fm.GitHub.Extra))
		for k, v := range fm.GitHub.Extra {
			gh.Extra[k] = v
		}
		clone.GitHub = &gh
	}
	return &clone
}
