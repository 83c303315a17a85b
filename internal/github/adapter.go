package github

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jra3/specsync/internal/config"
	"github.com/jra3/specsync/internal/frontmatter"
	"github.com/jra3/specsync/internal/mapper"
	"github.com/jra3/specsync/internal/spec"
	"github.com/jra3/specsync/internal/syncerr"
	"github.com/jra3/specsync/internal/tracker"
)

// subtaskFileOrder is the fixed order non-parent files are pushed as
// subtasks in (spec.md §4.4 step 5); contracts/* files are appended
// after, in directory scan order.
var subtaskFileOrder = []string{"plan.md", "research.md", "data-model.md", "quickstart.md", "tasks.md"}

// issueAPI is the subset of *Client the adapter depends on (spec.md §4.4),
// narrowed to an interface so tests can substitute a fake instead of
// shelling out to the real tracker CLI — grounded on the teacher's
// internal/sync.APIClient interface, which exists for exactly this reason.
type issueAPI interface {
	CheckAuth(ctx context.Context) bool
	SearchIssuesByBody(ctx context.Context, substr string) ([]issueViewJSON, error)
	ViewIssue(ctx context.Context, number int) (*issueViewJSON, error)
	CreateIssue(ctx context.Context, title, body string, labels, assignees []string, milestone int) (int, string, error)
	EditIssue(ctx context.Context, number int, title, body *string, labelsToAdd, assignees []string, milestone int) error
	ListLabels(ctx context.Context) ([]label, error)
	CreateLabel(ctx context.Context, name, color string) error
	AddSubIssue(ctx context.Context, parent, child int) error
	ListSubIssues(ctx context.Context, parent int) ([]issueViewJSON, error)
	AddComment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
	ReopenIssue(ctx context.Context, number int) error
}

var _ issueAPI = (*Client)(nil)

// Adapter is the GitHub-style reference tracker adapter (spec.md §4.4).
type Adapter struct {
	client issueAPI
	cfg    config.GitHubConfig
	labels *labelCache
}

// New constructs the reference adapter against cfg's owner/repo.
func New(cfg config.GitHubConfig) *Adapter {
	return &Adapter{
		client: NewClient(cfg.Owner, cfg.Repo),
		cfg:    cfg,
		labels: newLabelCache(),
	}
}

var _ tracker.Adapter = (*Adapter)(nil)
var _ tracker.SubtaskAdapter = (*Adapter)(nil)
var _ tracker.CommentAdapter = (*Adapter)(nil)

// Capabilities reports the reference adapter's full capability set
// (spec.md §4.4 supports everything §4.3 describes). Assignees and a
// milestone, when configured, are applied to every issue this adapter
// creates or edits (config.GitHubConfig.Assignees/.Milestone).
func (a *Adapter) Capabilities() tracker.Capabilities {
	return tracker.Capabilities{
		SupportsBatch:              true,
		SupportsSubtasks:           true,
		SupportsLabels:             true,
		SupportsAssignees:          true,
		SupportsMilestones:         true,
		SupportsComments:           true,
		SupportsConflictResolution: true,
	}
}

// Authenticate and CheckAuth probe the tracker CLI's credential store
// (spec.md §4.3).
func (a *Adapter) Authenticate(ctx context.Context) error {
	if !a.client.CheckAuth(ctx) {
		return syncerr.New(syncerr.AuthRequired, "tracker CLI is not authenticated")
	}
	return nil
}

func (a *Adapter) CheckAuth(ctx context.Context) bool {
	return a.client.CheckAuth(ctx)
}

func uuidMarker(specID string) string {
	return fmt.Sprintf("<!-- spec_id: %s -->", specID)
}

// resolveResult is the outcome of identity resolution for one spec's
// spec.md file (spec.md §4.4 "Identity resolution for push").
type resolveResult struct {
	existing *issueViewJSON // nil means "create new"
	specID   string         // spec_id to use going forward (minted if needed)
}

// resolveIdentity implements spec.md §4.4's three-step identity
// resolution for the push path.
func (a *Adapter) resolveIdentity(ctx context.Context, fm *frontmatter.Frontmatter, force bool) (*resolveResult, error) {
	// Step 1: spec_id set -> search by embedded marker.
	if fm.SpecID != "" {
		marker := uuidMarker(fm.SpecID)
		matches, err := a.client.SearchIssuesByBody(ctx, marker)
		if err != nil {
			return nil, syncerr.Wrap(syncerr.RemoteUnavailable, "searching for existing issue by spec_id", err)
		}
		if len(matches) == 1 {
			m := matches[0]
			return &resolveResult{existing: &m, specID: fm.SpecID}, nil
		}
		if len(matches) > 1 {
			return nil, syncerr.New(syncerr.RemoteUnavailable, fmt.Sprintf("ambiguous: %d issues carry spec_id %s", len(matches), fm.SpecID))
		}
		// No match by marker; fall through to issue_number / create.
	}

	// Step 2: github.issue_number set -> fetch and compare embedded UUID.
	if fm.GitHub != nil && fm.GitHub.IssueNumber > 0 {
		issue, err := a.client.ViewIssue(ctx, fm.GitHub.IssueNumber)
		if err == nil {
			remoteUUID, hasRemoteUUID := mapper.ExtractSpecID(issue.Body)
			switch {
			case fm.SpecID != "" && hasRemoteUUID && remoteUUID == fm.SpecID:
				return &resolveResult{existing: issue, specID: fm.SpecID}, nil
			case fm.SpecID != "" && hasRemoteUUID && remoteUUID != fm.SpecID:
				if force {
					// Abandon the existing issue; create a new one (spec.md §4.4
					// step 2, S5 "with force=true").
					return &resolveResult{existing: nil, specID: fm.SpecID}, nil
				}
				return nil, syncerr.New(syncerr.UUIDMismatch,
					fmt.Sprintf("local spec_id %s does not match remote spec_id %s on issue #%d", fm.SpecID, remoteUUID, fm.GitHub.IssueNumber))
			case fm.SpecID != "" && !hasRemoteUUID:
				// Remote has no UUID but local does: match, update will inject it.
				return &resolveResult{existing: issue, specID: fm.SpecID}, nil
			default:
				return &resolveResult{existing: issue, specID: fm.SpecID}, nil
			}
		}
		// Issue not found (deleted, renumbered): fall through to create,
		// unless spec_id matched something in step 1 already (it didn't,
		// since we only reach here when step 1 found nothing).
	}

	// Step 3: no target -> mint a spec_id if needed and create.
	specID := fm.SpecID
	if specID == "" {
		specID = uuid.NewString()
	}
	return &resolveResult{existing: nil, specID: specID}, nil
}

// Push creates or updates the remote parent issue for spec.md and all of
// doc's other subtask-eligible files (spec.md §4.4 "Push of one spec").
func (a *Adapter) Push(ctx context.Context, doc *spec.SpecDocument, opts tracker.PushOptions) (*tracker.RemoteRef, error) {
	specFile, ok := doc.Files["spec.md"]
	if !ok {
		return nil, syncerr.New(syncerr.ValidationFailed, fmt.Sprintf("spec %q has no spec.md", doc.Name))
	}
	if specFile.Frontmatter == nil {
		specFile.Frontmatter = &frontmatter.Frontmatter{}
	}

	resolved, err := a.resolveIdentity(ctx, specFile.Frontmatter, opts.Force)
	if err != nil {
		return nil, err
	}
	specFile.Frontmatter.SpecID = resolved.specID

	labels := effectiveLabels(a.cfg, "spec")
	a.ensureLabels(ctx, labels)

	title := mapper.GenerateTitle(doc.Name, "spec")
	body := mapper.GenerateBody(specFile, doc)

	var parentNumber int
	var parentURL string

	if resolved.existing == nil {
		number, url, err := a.client.CreateIssue(ctx, title, body, labels, a.cfg.Assignees, a.cfg.Milestone)
		if err != nil {
			return nil, syncerr.Wrap(syncerr.RemoteUnavailable, "creating parent issue", err)
		}
		parentNumber, parentURL = number, url
	} else {
		parentNumber, parentURL = resolved.existing.Number, resolved.existing.URL

		var titleArg, bodyArg *string
		if resolved.existing.Title != title {
			titleArg = &title
		}
		if frontmatter.ComputeSyncHash(body) != frontmatter.ComputeSyncHash(resolved.existing.Body) {
			bodyArg = &body
		}
		if err := a.client.EditIssue(ctx, parentNumber, titleArg, bodyArg, labels, a.cfg.Assignees, a.cfg.Milestone); err != nil {
			return nil, syncerr.Wrap(syncerr.RemoteUnavailable, fmt.Sprintf("updating parent issue #%d", parentNumber), err)
		}
	}

	specFile.Frontmatter.GitHub = mergeGitHub(specFile.Frontmatter.GitHub, parentNumber, nil, labels)

	if err := a.pushSubtasks(ctx, doc, parentNumber); err != nil {
		return nil, err
	}

	return &tracker.RemoteRef{ID: fmt.Sprint(parentNumber), URL: parentURL, Type: tracker.RefTypeParent, Kind: "spec"}, nil
}

// pushSubtasks pushes every non-spec.md file as a subtask linked under
// parentNumber (spec.md §4.4 step 5). Subtask creation is serialized —
// order matters for deterministic numbering (spec.md §5).
func (a *Adapter) pushSubtasks(ctx context.Context, doc *spec.SpecDocument, parentNumber int) error {
	for _, filename := range orderedSubtaskFiles(doc) {
		sf := doc.Files[filename]
		kind := mapper.FileKind(filename)
		if sf.Frontmatter == nil {
			sf.Frontmatter = &frontmatter.Frontmatter{}
		}

		labels := effectiveLabels(a.cfg, kind)
		a.ensureLabels(ctx, labels)

		title := mapper.GenerateTitle(doc.Name, kind)
		body := mapper.GenerateBody(sf, doc)

		if sf.Frontmatter.GitHub == nil || sf.Frontmatter.GitHub.IssueNumber == 0 {
			number, _, err := a.client.CreateIssue(ctx, title, body, labels, a.cfg.Assignees, a.cfg.Milestone)
			if err != nil {
				return syncerr.Wrap(syncerr.RemoteUnavailable, fmt.Sprintf("creating subtask for %s", filename), err)
			}
			parent := parentNumber
			sf.Frontmatter.GitHub = mergeGitHub(sf.Frontmatter.GitHub, number, &parent, labels)

			if err := a.client.AddSubIssue(ctx, parentNumber, number); err != nil {
				// Linking extension unavailable: warn and continue, the
				// subtask issue itself still exists (spec.md §7).
				log.Printf("[github] linking subtask #%d under parent #%d failed (sub-issue extension unavailable?): %v", number, parentNumber, err)
			}
		} else {
			number := sf.Frontmatter.GitHub.IssueNumber
			if err := a.client.EditIssue(ctx, number, &title, &body, labels, a.cfg.Assignees, a.cfg.Milestone); err != nil {
				return syncerr.Wrap(syncerr.RemoteUnavailable, fmt.Sprintf("updating subtask #%d", number), err)
			}
		}
	}
	return nil
}

// orderedSubtaskFiles returns doc's non-spec.md files in the fixed
// top-level order, followed by contracts/* in lexicographic order.
func orderedSubtaskFiles(doc *spec.SpecDocument) []string {
	var out []string
	for _, name := range subtaskFileOrder {
		if _, ok := doc.Files[name]; ok {
			out = append(out, name)
		}
	}
	var contracts []string
	for name := range doc.Files {
		if strings.HasPrefix(name, "contracts/") {
			contracts = append(contracts, name)
		}
	}
	sort.Strings(contracts)
	out = append(out, contracts...)

	// Any other top-level *.md files not in the recognized set or spec.md.
	var extra []string
	recognized := map[string]bool{"spec.md": true}
	for _, n := range subtaskFileOrder {
		recognized[n] = true
	}
	for name := range doc.Files {
		if !recognized[name] && !strings.HasPrefix(name, "contracts/") {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	out = append(out, extra...)

	return out
}

func mergeGitHub(existing *frontmatter.GitHub, issueNumber int, parentIssue *int, labels []string) *frontmatter.GitHub {
	gh := existing
	if gh == nil {
		gh = &frontmatter.GitHub{Extra: map[string]any{}}
	}
	gh.IssueNumber = issueNumber
	if parentIssue != nil {
		gh.ParentIssue = parentIssue
	}
	gh.Labels = labels
	gh.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return gh
}

// PushBatch provisions the union of all labels once, then runs Push for
// every spec under a bounded concurrency semaphore (spec.md §4.4 "Push
// of a batch"). Specs are not split into creates and updates: each Push
// resolves its own identity and creates or edits its issue individually,
// and there is no single batched edit call for common fields.
func (a *Adapter) PushBatch(ctx context.Context, docs []*spec.SpecDocument, opts tracker.PushOptions) ([]*tracker.RemoteRef, error) {
	labelSet := make(map[string]bool)
	for _, doc := range docs {
		for _, k := range allKinds(doc) {
			for _, l := range effectiveLabels(a.cfg, k) {
				labelSet[l] = true
			}
		}
	}
	var allLabels []string
	for l := range labelSet {
		allLabels = append(allLabels, l)
	}
	sort.Strings(allLabels)
	a.ensureLabels(ctx, allLabels)

	concurrency := a.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	refs := make([]*tracker.RemoteRef, len(docs))
	g, gctx := errgroup.WithContext(ctx)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			ref, err := a.Push(gctx, doc, opts)
			if err != nil {
				return fmt.Errorf("spec %q: %w", doc.Name, err)
			}
			refs[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return refs, err
	}
	return refs, nil
}

func allKinds(doc *spec.SpecDocument) []string {
	kinds := []string{"spec"}
	kinds = append(kinds, orderedSubtaskFiles(doc)...)
	for i := 1; i < len(kinds); i++ {
		kinds[i] = mapper.FileKind(kinds[i])
	}
	return kinds
}

// GetStatus computes the tracker-neutral SyncStatus for doc (spec.md
// §4.4 "Status").
func (a *Adapter) GetStatus(ctx context.Context, doc *spec.SpecDocument) (*tracker.Status, error) {
	specFile, ok := doc.Files["spec.md"]
	if !ok || specFile.Frontmatter == nil {
		return &tracker.Status{Status: tracker.StatusLocal}, nil
	}
	fm := specFile.Frontmatter
	hasChanges := fm.SyncHash == "" || frontmatter.ComputeSyncHash(specFile.Markdown) != fm.SyncHash

	hasIdentity := fm.SpecID != "" || (fm.GitHub != nil && fm.GitHub.IssueNumber > 0)
	if !hasIdentity {
		return &tracker.Status{Status: tracker.StatusLocal, HasChanges: true}, nil
	}

	resolved, err := a.resolveIdentity(ctx, fm, false)
	if err != nil {
		if syncerr.Is(err, syncerr.UUIDMismatch) {
			return &tracker.Status{
				Status:     tracker.StatusConflict,
				HasChanges: hasChanges,
				Conflicts:  []string{err.Error()},
			}, nil
		}
		return &tracker.Status{Status: tracker.StatusUnknown}, nil
	}
	if resolved.existing == nil {
		return &tracker.Status{Status: tracker.StatusDraft, HasChanges: hasChanges}, nil
	}

	remoteNum := resolved.existing.Number
	status := &tracker.Status{
		Status:     tracker.StatusSynced,
		HasChanges: hasChanges,
		RemoteID:   &remoteNum,
		LastSync:   fm.LastSync,
	}

	remoteChangedSinceSync := fm.LastSync != "" && resolved.existing.UpdatedAt > fm.LastSync
	if remoteChangedSinceSync && hasChanges {
		status.Status = tracker.StatusConflict
		status.Conflicts = []string{fmt.Sprintf("both local and remote issue #%d changed since last sync", remoteNum)}
	}

	return status, nil
}

// Pull fetches ref's parent issue (and subtasks, if any) and projects it
// into a fresh SpecDocument (spec.md §4.4 "Pull").
func (a *Adapter) Pull(ctx context.Context, ref *tracker.RemoteRef, opts tracker.PullOptions) (*spec.SpecDocument, error) {
	var number int
	if _, err := fmt.Sscanf(ref.ID, "%d", &number); err != nil {
		return nil, syncerr.Wrap(syncerr.ValidationFailed, "remote ref id is not numeric", err)
	}

	issue, err := a.client.ViewIssue(ctx, number)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.RemoteUnavailable, fmt.Sprintf("fetching issue #%d", number), err)
	}

	doc := mapper.IssueToSpec(&mapper.IssueView{Number: issue.Number, Title: issue.Title, Body: issue.Body})

	subs, err := a.client.ListSubIssues(ctx, number)
	if err != nil {
		log.Printf("[github] listing sub-issues of #%d failed (extension unavailable?): %v", number, err)
		return doc, nil
	}

	for _, sub := range subs {
		kind := mapper.KindFromTitle(sub.Title)
		body := mapper.StripFooter(mapper.StripSpecIDMarker(sub.Body))
		fm := &frontmatter.Frontmatter{
			SyncStatus: frontmatter.StatusSynced,
			IssueType:  frontmatter.IssueTypeSubtask,
			SyncHash:   frontmatter.ComputeSyncHash(body),
			GitHub: &frontmatter.GitHub{
				IssueNumber: sub.Number,
				ParentIssue: &number,
			},
		}
		content, _ := frontmatter.Render(fm, body)
		filename := kind + ".md"
		doc.Files[filename] = &spec.SpecFile{
			Filename:    filename,
			Content:     content,
			Frontmatter: fm,
			Markdown:    body,
		}
	}

	return doc, nil
}

// ResolveConflict implements the three resolvable strategies (spec.md
// §4.4 "Conflict resolution", spec.md §3 "strategy-parameterized merge
// producing the canonical spec to write back"): it only decides which
// document is canonical. Writing that choice to disk and pushing it
// back to the tracker stays the engine's job (spec.md §4.5 step 7),
// so this never touches the filesystem or issues a push itself.
// "manual" and "interactive" are reported as errors for the engine to
// surface rather than resolved silently.
func (a *Adapter) ResolveConflict(ctx context.Context, local, remote *spec.SpecDocument, strategy config.ConflictStrategy) (*spec.SpecDocument, error) {
	switch strategy {
	case config.ConflictManual:
		return nil, syncerr.New(syncerr.SyncConflict, fmt.Sprintf("spec %q has unresolved conflicts", local.Name))
	case config.ConflictOurs:
		return local, nil
	case config.ConflictTheirs:
		return remote, nil
	case config.ConflictInteractive:
		return nil, syncerr.New(syncerr.InteractiveUnavailable, "interactive conflict resolution requires a caller-supplied prompt")
	default:
		return nil, syncerr.New(syncerr.SyncConflict, fmt.Sprintf("unknown conflict strategy %q", strategy))
	}
}

// CreateSubtask and GetSubtasks implement tracker.SubtaskAdapter for
// direct callers outside the engine's own push path.
func (a *Adapter) CreateSubtask(ctx context.Context, parent *tracker.RemoteRef, title, body, fileKind string) (*tracker.RemoteRef, error) {
	var parentNumber int
	if _, err := fmt.Sscanf(parent.ID, "%d", &parentNumber); err != nil {
		return nil, syncerr.Wrap(syncerr.ValidationFailed, "parent ref id is not numeric", err)
	}

	labels := effectiveLabels(a.cfg, fileKind)
	a.ensureLabels(ctx, labels)

	number, url, err := a.client.CreateIssue(ctx, title, body, labels, a.cfg.Assignees, a.cfg.Milestone)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.RemoteUnavailable, "creating subtask", err)
	}
	if err := a.client.AddSubIssue(ctx, parentNumber, number); err != nil {
		log.Printf("[github] linking subtask #%d under parent #%d failed: %v", number, parentNumber, err)
	}
	return &tracker.RemoteRef{ID: fmt.Sprint(number), URL: url, Type: tracker.RefTypeSubtask, Kind: fileKind}, nil
}

func (a *Adapter) GetSubtasks(ctx context.Context, parent *tracker.RemoteRef) ([]tracker.RemoteRef, error) {
	var parentNumber int
	if _, err := fmt.Sscanf(parent.ID, "%d", &parentNumber); err != nil {
		return nil, syncerr.Wrap(syncerr.ValidationFailed, "parent ref id is not numeric", err)
	}
	subs, err := a.client.ListSubIssues(ctx, parentNumber)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.RemoteUnavailable, "listing subtasks", err)
	}
	refs := make([]tracker.RemoteRef, len(subs))
	for i, s := range subs {
		refs[i] = tracker.RemoteRef{ID: fmt.Sprint(s.Number), URL: s.URL, Type: tracker.RefTypeSubtask}
	}
	return refs, nil
}

// AddComment, Close, and Reopen implement tracker.CommentAdapter.
func (a *Adapter) AddComment(ctx context.Context, ref *tracker.RemoteRef, body string) error {
	var number int
	if _, err := fmt.Sscanf(ref.ID, "%d", &number); err != nil {
		return syncerr.Wrap(syncerr.ValidationFailed, "ref id is not numeric", err)
	}
	return a.client.AddComment(ctx, number, body)
}

func (a *Adapter) Close(ctx context.Context, ref *tracker.RemoteRef) error {
	var number int
	if _, err := fmt.Sscanf(ref.ID, "%d", &number); err != nil {
		return syncerr.Wrap(syncerr.ValidationFailed, "ref id is not numeric", err)
	}
	return a.client.CloseIssue(ctx, number)
}

func (a *Adapter) Reopen(ctx context.Context, ref *tracker.RemoteRef) error {
	var number int
	if _, err := fmt.Sscanf(ref.ID, "%d", &number); err != nil {
		return syncerr.Wrap(syncerr.ValidationFailed, "ref id is not numeric", err)
	}
	return a.client.ReopenIssue(ctx, number)
}
