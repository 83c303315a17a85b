// Package engine implements the sync engine state machine (spec.md
// §4.5): orchestrates the scanner, the mapper (via the adapter), and
// the tracker adapter, classifying each spec, applying policy (force,
// dry-run, conflict strategy), updating front-matter on success, and
// aggregating per-spec outcomes into a batch report.
//
// Grounded on the teacher's internal/sync/worker.go: the
// classify -> mutate -> writeback pipeline, per-spec and batch
// orchestration, and "log but continue" error handling are all modeled
// on Worker.syncAllTeams/syncTeam/syncTeamIssues, rewritten around
// spec.md §4.5's syncSpec/syncAll state machine instead of Linear's
// "sync until unchanged" pagination loop.
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jra3/specsync/internal/config"
	"github.com/jra3/specsync/internal/frontmatter"
	"github.com/jra3/specsync/internal/spec"
	"github.com/jra3/specsync/internal/syncerr"
	"github.com/jra3/specsync/internal/tracker"
)

// Options parameterizes a sync run (spec.md §4.5 syncSpec/syncAll).
type Options struct {
	Force  bool
	DryRun bool
}

// Details is the structured breakdown of a SyncResult (spec.md §6).
type Details struct {
	Created []string
	Updated []string
	Skipped []string
	Errors  []string
}

// Result is the engine's per-spec or aggregated outcome (spec.md §6
// "Engine outputs").
type Result struct {
	Success bool
	Message string
	Details Details
}

// Engine orchestrates the scanner and the tracker adapter (spec.md §4.5).
type Engine struct {
	Scanner *spec.Scanner
	Adapter tracker.Adapter
	Config  *config.SyncConfig
}

// New constructs an Engine. The caller creates the scanner, adapter, and
// config once per command (spec.md §9 "Process-global singletons...
// re-expressed as explicit dependencies").
func New(scanner *spec.Scanner, adapter tracker.Adapter, cfg *config.SyncConfig) *Engine {
	return &Engine{Scanner: scanner, Adapter: adapter, Config: cfg}
}

// SyncSpec runs the per-spec algorithm (spec.md §4.5 syncSpec).
func (e *Engine) SyncSpec(ctx context.Context, doc *spec.SpecDocument, opts Options) *Result {
	if !e.Adapter.CheckAuth(ctx) {
		return &Result{Success: false, Message: syncerr.New(syncerr.AuthRequired, "not authenticated").Error()}
	}

	status, err := e.Adapter.GetStatus(ctx, doc)
	if err != nil {
		return &Result{Success: false, Message: err.Error(), Details: Details{Errors: []string{err.Error()}}}
	}

	if opts.DryRun {
		return e.dryRunResult(doc, status)
	}

	if status.Status == tracker.StatusSynced && !status.HasChanges && !opts.Force {
		return &Result{Success: true, Message: fmt.Sprintf("%s: no changes", doc.Name), Details: Details{Skipped: []string{doc.Name}}}
	}

	if status.Status == tracker.StatusConflict {
		return e.resolveAndSync(ctx, doc, status, opts)
	}

	ref, err := e.Adapter.Push(ctx, doc, tracker.PushOptions{Force: opts.Force, DryRun: false})
	if err != nil {
		return &Result{Success: false, Message: err.Error(), Details: Details{Errors: []string{fmt.Sprintf("%s: %v", doc.Name, err)}}}
	}

	return e.finishSuccess(doc, ref, status)
}

func (e *Engine) dryRunResult(doc *spec.SpecDocument, status *tracker.Status) *Result {
	switch {
	case status.Status == tracker.StatusDraft || status.Status == tracker.StatusLocal:
		return &Result{Success: true, Message: fmt.Sprintf("%s: would create", doc.Name)}
	case status.Status == tracker.StatusConflict:
		return &Result{Success: false, Message: fmt.Sprintf("%s: has conflicts", doc.Name), Details: Details{Errors: status.Conflicts}}
	case status.Status == tracker.StatusSynced && !status.HasChanges:
		return &Result{Success: true, Message: fmt.Sprintf("%s: no changes", doc.Name)}
	case status.HasChanges:
		return &Result{Success: true, Message: fmt.Sprintf("%s: would update", doc.Name)}
	default:
		return &Result{Success: true, Message: fmt.Sprintf("%s: no changes", doc.Name)}
	}
}

// resolveAndSync implements spec.md §4.5 step 5: fetch the remote side
// (when the conflicting spec has one), hand both documents to the
// adapter's resolveConflict to decide the canonical one (spec.md §3
// "strategy-parameterized merge producing the canonical spec to write
// back"), then perform the writeback/push the engine owns regardless of
// adapter (spec.md §4.5 step 7).
func (e *Engine) resolveAndSync(ctx context.Context, doc *spec.SpecDocument, status *tracker.Status, opts Options) *Result {
	if e.Config.ConflictStrategy == config.ConflictTheirs && status.RemoteID == nil {
		msg := fmt.Sprintf("%s: conflict reported with no remote id", doc.Name)
		return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
	}

	var remoteDoc *spec.SpecDocument
	if status.RemoteID != nil {
		ref := &tracker.RemoteRef{ID: fmt.Sprint(*status.RemoteID), Type: tracker.RefTypeParent}
		pulled, err := e.Adapter.Pull(ctx, ref, tracker.PullOptions{})
		if err != nil {
			msg := fmt.Sprintf("%s: fetching remote for conflict resolution: %v", doc.Name, err)
			return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
		}
		remoteDoc = pulled
	}

	canonical, err := e.Adapter.ResolveConflict(ctx, doc, remoteDoc, e.Config.ConflictStrategy)
	if err != nil {
		msg := fmt.Sprintf("%s: %v", doc.Name, err)
		return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
	}

	if canonical != doc {
		// The adapter chose the remote document (strategy "theirs"):
		// overwrite local files with it before pushing, so spec.md stays
		// the merge's source of truth on disk.
		if err := e.writeDocFiles(doc, canonical); err != nil {
			msg := syncerr.Wrap(syncerr.WritebackFailed, "writing resolved files", err).Error()
			return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
		}
	}

	ref, err := e.Adapter.Push(ctx, doc, tracker.PushOptions{Force: true})
	if err != nil {
		return &Result{Success: false, Message: err.Error(), Details: Details{Errors: []string{fmt.Sprintf("%s: %v", doc.Name, err)}}}
	}
	return e.finishSuccess(doc, ref, status)
}

// writeDocFiles overwrites doc's on-disk files with remoteDoc's content
// (spec.md §9 open question: files present locally but absent from the
// remote's subtasks are left untouched, never deleted — see DESIGN.md).
func (e *Engine) writeDocFiles(doc, remoteDoc *spec.SpecDocument) error {
	for filename, remoteFile := range remoteDoc.Files {
		local, ok := doc.Files[filename]
		if !ok {
			local = &spec.SpecFile{
				Path:     filepath.Join(doc.Path, filename),
				Filename: filename,
			}
			doc.Files[filename] = local
		}
		local.Frontmatter = remoteFile.Frontmatter
		local.Markdown = remoteFile.Markdown
		if err := e.Scanner.WriteSpecFile(local, remoteFile.Content); err != nil {
			return err
		}
	}
	return nil
}

// nowFunc is overridable in tests for deterministic last_sync values.
var nowFunc = time.Now

// finishSuccess performs spec.md §4.5 step 7: front-matter writeback for
// every file that participated in the push, then returns the result.
func (e *Engine) finishSuccess(doc *spec.SpecDocument, ref *tracker.RemoteRef, prevStatus *tracker.Status) *Result {
	specFile, ok := doc.Files["spec.md"]
	if !ok {
		msg := fmt.Sprintf("%s: spec.md missing after push", doc.Name)
		return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
	}

	specID := specFile.Frontmatter.SpecID
	if specID == "" {
		specID = uuid.NewString()
	}
	now := nowFunc().UTC().Format(time.RFC3339)

	var writebackErrs []string
	for filename, sf := range doc.Files {
		if sf.Frontmatter == nil {
			sf.Frontmatter = &frontmatter.Frontmatter{}
		}
		fm := frontmatter.Clone(sf.Frontmatter)
		fm.SpecID = specID
		fm.SyncHash = frontmatter.ComputeSyncHash(sf.Markdown)
		fm.LastSync = now
		fm.SyncStatus = frontmatter.StatusSynced
		if filename == "spec.md" {
			fm.IssueType = frontmatter.IssueTypeParent
		} else {
			fm.IssueType = frontmatter.IssueTypeSubtask
		}
		sf.Frontmatter = fm

		content, err := frontmatter.Render(fm, sf.Markdown)
		if err != nil {
			writebackErrs = append(writebackErrs, fmt.Sprintf("%s: rendering front-matter: %v", filename, err))
			continue
		}
		if err := e.Scanner.WriteSpecFile(sf, content); err != nil {
			// spec.md §7 WRITEBACK_FAILED: surfaced as a warning; the next
			// run reconciles via the embedded UUID marker.
			log.Printf("[engine] writeback for %s/%s failed (will reconcile via spec_id on next run): %v", doc.Name, filename, err)
			writebackErrs = append(writebackErrs, syncerr.Wrap(syncerr.WritebackFailed, fmt.Sprintf("%s/%s", doc.Name, filename), err).Error())
		}
	}

	verb := "updated"
	if prevStatus.Status == tracker.StatusDraft || prevStatus.Status == tracker.StatusLocal {
		verb = "created"
	}

	details := Details{}
	if verb == "created" {
		details.Created = []string{doc.Name}
	} else {
		details.Updated = []string{doc.Name}
	}
	details.Errors = writebackErrs

	return &Result{
		Success: len(writebackErrs) == 0,
		Message: fmt.Sprintf("%s: %s (issue %s)", doc.Name, verb, ref.ID),
		Details: details,
	}
}

// SyncAll runs syncAll across every spec the scanner finds (spec.md §4.5
// "Batch"), using the adapter's batch path when supported.
func (e *Engine) SyncAll(ctx context.Context, opts Options) (*Result, error) {
	docs, err := e.Scanner.ScanAll()
	if err != nil {
		return nil, fmt.Errorf("scanning specs: %w", err)
	}

	var agg *Result
	if !e.Adapter.Capabilities().SupportsBatch || opts.DryRun {
		agg = e.syncAllSequential(ctx, docs, opts)
	} else {
		agg = e.syncAllBatch(ctx, docs, opts)
	}

	agg.Message = summarizeBatch(agg, len(docs))
	return agg, nil
}

// summarizeBatch renders a human-readable one-line summary of a batch
// result (spec.md §6 SyncResult.message), using go-humanize's
// thousands-separated counts the same way it formats byte/record counts
// elsewhere in the ecosystem.
func summarizeBatch(agg *Result, total int) string {
	return fmt.Sprintf("synced %s specs: %s created, %s updated, %s skipped, %s errors",
		humanize.Comma(int64(total)),
		humanize.Comma(int64(len(agg.Details.Created))),
		humanize.Comma(int64(len(agg.Details.Updated))),
		humanize.Comma(int64(len(agg.Details.Skipped))),
		humanize.Comma(int64(len(agg.Details.Errors))))
}

func (e *Engine) syncAllSequential(ctx context.Context, docs []*spec.SpecDocument, opts Options) *Result {
	agg := &Result{Success: true}
	for _, doc := range docs {
		r := e.SyncSpec(ctx, doc, opts)
		mergeInto(agg, r)
	}
	return agg
}

// syncAllBatch partitions docs by status, pushes via the adapter's
// pushBatch, then performs writeback for each successful item (spec.md
// §4.5 "Batch" step 2; §4.4 "Push of a batch"). The batch is
// non-atomic: individual failures yield partial success.
func (e *Engine) syncAllBatch(ctx context.Context, docs []*spec.SpecDocument, opts Options) *Result {
	agg := &Result{Success: true}

	if !e.Adapter.CheckAuth(ctx) {
		msg := syncerr.New(syncerr.AuthRequired, "not authenticated").Error()
		return &Result{Success: false, Message: msg, Details: Details{Errors: []string{msg}}}
	}

	var toPush []*spec.SpecDocument
	statusByName := make(map[string]*tracker.Status, len(docs))

	for _, doc := range docs {
		status, err := e.Adapter.GetStatus(ctx, doc)
		if err != nil {
			agg.Success = false
			agg.Details.Errors = append(agg.Details.Errors, fmt.Sprintf("%s: %v", doc.Name, err))
			continue
		}
		statusByName[doc.Name] = status

		if status.Status == tracker.StatusConflict {
			r := e.resolveAndSync(ctx, doc, status, opts)
			mergeInto(agg, r)
			continue
		}
		if status.Status == tracker.StatusSynced && !status.HasChanges && !opts.Force {
			agg.Details.Skipped = append(agg.Details.Skipped, doc.Name)
			continue
		}
		toPush = append(toPush, doc)
	}

	if len(toPush) == 0 {
		return agg
	}

	refs, batchErr := e.Adapter.PushBatch(ctx, toPush, tracker.PushOptions{Force: opts.Force})
	for i, doc := range toPush {
		if refs[i] == nil {
			agg.Success = false
			agg.Details.Errors = append(agg.Details.Errors, fmt.Sprintf("%s: push failed", doc.Name))
			continue
		}
		r := e.finishSuccess(doc, refs[i], statusByName[doc.Name])
		mergeInto(agg, r)
	}
	if batchErr != nil {
		agg.Success = false
		agg.Details.Errors = append(agg.Details.Errors, batchErr.Error())
	}

	return agg
}

func mergeInto(agg, r *Result) {
	if !r.Success {
		agg.Success = false
	}
	agg.Details.Created = append(agg.Details.Created, r.Details.Created...)
	agg.Details.Updated = append(agg.Details.Updated, r.Details.Updated...)
	agg.Details.Skipped = append(agg.Details.Skipped, r.Details.Skipped...)
	agg.Details.Errors = append(agg.Details.Errors, r.Details.Errors...)
}
