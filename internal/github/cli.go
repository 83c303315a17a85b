// Package github implements the reference tracker adapter (spec.md §4.4):
// a GitHub-style issue tracker reached by shelling out to an external
// command-line tool, with parent/subtask linking, label provisioning,
// UUID-embedded identity matching, and batched create/update under
// bounded concurrency.
//
// The Client here keeps the teacher's internal/api.Client shape (a
// single type wrapping network access, a rate limiter field, an
// AuthHeader-style auth accessor) but the transport is rewritten from
// direct GraphQL HTTP calls to os/exec subprocess invocation of the
// tracker CLI (spec.md §6 "Tracker CLI contract"), grounded on
// jamesonstone-kit/internal/git/git.go's exec.Command + cmd.Dir +
// CombinedOutput pattern: structured argument lists, never a
// concatenated shell string.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBinary is the external tracker CLI binary name (spec.md §6).
const DefaultBinary = "gh"

const (
	defaultCallTimeout     = 30 * time.Second
	defaultDownloadTimeout = 60 * time.Second
)

// Client wraps invocations of the tracker CLI binary.
type Client struct {
	binary  string
	owner   string
	repo    string
	limiter *rate.Limiter

	// repoDetected caches the auto-detected owner/repo coordinate
	// (set-once, read-many; spec.md §5 "Auto-detected repository
	// coordinate... Not mutated after first detection").
	repoDetected bool
}

// NewClient creates a Client targeting owner/repo. If either is empty,
// the coordinate is auto-detected on first call via "repo view".
func NewClient(owner, repo string) *Client {
	return &Client{
		binary: DefaultBinary,
		owner:  owner,
		repo:   repo,
		// The reference CLI has no documented global rate limit; bound
		// subprocess issuance defensively so a runaway batch can't flood
		// the local process table (spec.md §5 concurrency bound is
		// enforced by the engine/adapter above this, not here).
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// AuthHeader is unused by the subprocess transport but kept for parity
// with the teacher's Client shape; auth is delegated entirely to the
// CLI's own credential store (spec.md §4.4 "authentication indirectly by
// shelling out").
func (c *Client) AuthHeader() string { return "" }

// repoArgs returns the "-R owner/repo" flag pair once the coordinate is
// known, or nil before auto-detection.
func (c *Client) repoArgs() []string {
	if c.owner == "" || c.repo == "" {
		return nil
	}
	return []string{"-R", c.owner + "/" + c.repo}
}

// EnsureRepo auto-detects the repository coordinate via "repo view" if
// it wasn't configured explicitly. Safe to call repeatedly; only the
// first call does any work.
func (c *Client) EnsureRepo(ctx context.Context) error {
	if c.repoDetected || (c.owner != "" && c.repo != "") {
		c.repoDetected = true
		return nil
	}

	out, err := c.run(ctx, "repo", "view", "--json", "owner,name")
	if err != nil {
		return fmt.Errorf("auto-detecting repository: %w", err)
	}

	var parsed struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return fmt.Errorf("parsing repo view output: %w", err)
	}

	c.owner = parsed.Owner.Login
	c.repo = parsed.Name
	c.repoDetected = true
	return nil
}

// CheckAuth probes the CLI's credential store (spec.md §4.3 authenticate/
// checkAuth: "credentials probe; non-throwing").
func (c *Client) CheckAuth(ctx context.Context) bool {
	_, err := c.run(ctx, "auth", "status")
	return err == nil
}

// run invokes the tracker CLI with a flat argument list, no shell
// interpolation (spec.md §6, §9), under a default timeout, and returns
// stdout. A transient failure is retried exactly once with a fresh
// subprocess (spec.md §7 REMOTE_UNAVAILABLE: "retried at most once with
// a fresh subprocess; then surfaced") before the error reaches the
// caller.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.runOnce(ctx, args...)
	if err == nil {
		return out, nil
	}
	return c.runOnce(ctx, args...)
}

// runOnce issues a single subprocess invocation with no retry.
func (c *Client) runOnce(ctx context.Context, args ...string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", c.binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// runWithBodyFile writes body to a fresh temp file and appends
// "--body-file <path>" to args, invoking the CLI and unlinking the temp
// file on every exit path (spec.md §6, §9: "write bodies to a temp file
// and clean it up on every exit path").
func (c *Client) runWithBodyFile(ctx context.Context, body string, args ...string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "specsync-body-*.md")
	if err != nil {
		return nil, fmt.Errorf("creating temp body file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp body file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp body file: %w", err)
	}

	args = append(args, "--body-file", path)
	return c.run(ctx, args...)
}

// isAlreadyExists reports whether err's text indicates an idempotent
// "already exists" failure from a label-creation attempt (spec.md §4.4:
// "Create attempts that fail with an 'already exists' signal are
// treated as success").
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// issueCreateJSON describes the URL field of "issue create" output; it
// is not parsed anywhere, since CreateIssue reads the URL from plain
// stdout. issueViewJSON is the subset of "issue view --json" fields
// this adapter parses (spec.md §6 "structured-output mode requesting
// specific fields").
type issueCreateJSON struct {
	URL string `json:"url"`
}

type issueViewJSON struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Labels    []label    `json:"labels"`
	Assignees []user     `json:"assignees"`
	Milestone *milestone `json:"milestone"`
	UpdatedAt string     `json:"updatedAt"`
	URL       string     `json:"url"`
}

type label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type user struct {
	Login string `json:"login"`
}

type milestone struct {
	Number int `json:"number"`
}

// CreateIssue calls "issue create" and parses the returned URL suffix
// "/(\d+)$" for the issue number (spec.md §4.4 step 3). assignees and
// milestone come from the config's github.assignees/github.milestone
// (spec.md §3 SyncConfig); milestone of 0 means "don't set one".
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels, assignees []string, milestone int) (number int, url string, err error) {
	if err := c.EnsureRepo(ctx); err != nil {
		return 0, "", err
	}

	args := append([]string{"issue", "create", "--title", title}, c.repoArgs()...)
	for _, l := range labels {
		args = append(args, "--label", l)
	}
	for _, u := range assignees {
		args = append(args, "--assignee", u)
	}
	if milestone > 0 {
		args = append(args, "--milestone", fmt.Sprint(milestone))
	}

	out, err := c.runWithBodyFile(ctx, body, args...)
	if err != nil {
		return 0, "", fmt.Errorf("creating issue: %w", err)
	}

	url = strings.TrimSpace(string(out))
	n, err := parseIssueNumberFromURL(url)
	if err != nil {
		return 0, "", err
	}
	return n, url, nil
}

// EditIssue calls "issue edit" with only the fields the caller supplies
// (spec.md §4.4 step 4: "only the fields that changed"). A nil pointer
// means "leave unchanged"; labelsToAdd and assignees are additive only —
// the adapter never removes labels or assignees. milestone of 0 leaves
// the issue's milestone untouched.
func (c *Client) EditIssue(ctx context.Context, number int, title, body *string, labelsToAdd, assignees []string, milestone int) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}

	args := append([]string{"issue", "edit", fmt.Sprint(number)}, c.repoArgs()...)
	for _, l := range labelsToAdd {
		args = append(args, "--add-label", l)
	}
	for _, u := range assignees {
		args = append(args, "--add-assignee", u)
	}
	if milestone > 0 {
		args = append(args, "--milestone", fmt.Sprint(milestone))
	}
	if title != nil {
		args = append(args, "--title", *title)
	}

	if body != nil {
		_, err := c.runWithBodyFile(ctx, *body, args...)
		if err != nil {
			return fmt.Errorf("editing issue #%d: %w", number, err)
		}
		return nil
	}

	_, err := c.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("editing issue #%d: %w", number, err)
	}
	return nil
}

// ViewIssue fetches one issue by number.
func (c *Client) ViewIssue(ctx context.Context, number int) (*issueViewJSON, error) {
	if err := c.EnsureRepo(ctx); err != nil {
		return nil, err
	}

	args := append([]string{"issue", "view", fmt.Sprint(number), "--json",
		"number,title,body,state,labels,assignees,milestone,updatedAt,url"}, c.repoArgs()...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("viewing issue #%d: %w", number, err)
	}

	var parsed issueViewJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing issue #%d: %w", number, err)
	}
	return &parsed, nil
}

// SearchIssuesByBody searches for open or closed issues whose body
// contains substr, used for UUID-marker identity resolution (spec.md
// §4.4 step 1). The CLI's search doesn't support full-text body
// filtering directly, so this lists candidates and filters client-side.
func (c *Client) SearchIssuesByBody(ctx context.Context, substr string) ([]issueViewJSON, error) {
	if err := c.EnsureRepo(ctx); err != nil {
		return nil, err
	}

	args := append([]string{"issue", "list", "--search", substr, "--state", "all", "--json",
		"number,title,body,state,labels,assignees,milestone,updatedAt,url", "--limit", "100"}, c.repoArgs()...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	var all []issueViewJSON
	if err := json.Unmarshal(out, &all); err != nil {
		return nil, fmt.Errorf("parsing issue search results: %w", err)
	}

	matches := all[:0]
	for _, iss := range all {
		if strings.Contains(iss.Body, substr) {
			matches = append(matches, iss)
		}
	}
	return matches, nil
}

// ListLabels fetches all labels defined on the repository (spec.md §4.4
// "Fetch all existing labels once per batch").
func (c *Client) ListLabels(ctx context.Context) ([]label, error) {
	if err := c.EnsureRepo(ctx); err != nil {
		return nil, err
	}

	args := append([]string{"label", "list", "--json", "name,color", "--limit", "1000"}, c.repoArgs()...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}

	var labels []label
	if err := json.Unmarshal(out, &labels); err != nil {
		return nil, fmt.Errorf("parsing label list: %w", err)
	}
	return labels, nil
}

// CreateLabel creates a label with the given color. An "already exists"
// failure is the caller's to treat as success (spec.md §4.4).
func (c *Client) CreateLabel(ctx context.Context, name, color string) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}

	args := append([]string{"label", "create", name, "--color", color, "--force=false"}, c.repoArgs()...)
	_, err := c.run(ctx, args...)
	return err
}

// AddSubIssue links child under parent via the sub-issue extension
// (spec.md §4.4 step 5: "if the linking extension is unavailable, log
// and continue").
func (c *Client) AddSubIssue(ctx context.Context, parent, child int) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}

	args := append([]string{"sub-issue", "add", fmt.Sprint(parent), fmt.Sprint(child)}, c.repoArgs()...)
	_, err := c.run(ctx, args...)
	return err
}

// ListSubIssues lists the sub-issues linked under parent.
func (c *Client) ListSubIssues(ctx context.Context, parent int) ([]issueViewJSON, error) {
	if err := c.EnsureRepo(ctx); err != nil {
		return nil, err
	}

	args := append([]string{"sub-issue", "list", fmt.Sprint(parent), "--json",
		"number,title,body,state,labels,assignees,milestone,updatedAt,url"}, c.repoArgs()...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sub-issues of #%d: %w", parent, err)
	}

	var subs []issueViewJSON
	if err := json.Unmarshal(out, &subs); err != nil {
		return nil, fmt.Errorf("parsing sub-issue list: %w", err)
	}
	return subs, nil
}

// AddComment posts a comment to an issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}

	args := append([]string{"issue", "comment", fmt.Sprint(number)}, c.repoArgs()...)
	_, err := c.runWithBodyFile(ctx, body, args...)
	return err
}

// CloseIssue and ReopenIssue change an issue's state.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}
	args := append([]string{"issue", "close", fmt.Sprint(number)}, c.repoArgs()...)
	_, err := c.run(ctx, args...)
	return err
}

func (c *Client) ReopenIssue(ctx context.Context, number int) error {
	if err := c.EnsureRepo(ctx); err != nil {
		return err
	}
	args := append([]string{"issue", "reopen", fmt.Sprint(number)}, c.repoArgs()...)
	_, err := c.run(ctx, args...)
	return err
}

func parseIssueNumberFromURL(url string) (int, error) {
	idx := strings.LastIndex(url, "/")
	if idx == -1 || idx == len(url)-1 {
		return 0, fmt.Errorf("cannot parse issue number from URL %q", url)
	}
	var n int
	if _, err := fmt.Sscanf(url[idx+1:], "%d", &n); err != nil {
		return 0, fmt.Errorf("cannot parse issue number from URL %q: %w", url, err)
	}
	return n, nil
}
