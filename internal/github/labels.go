package github

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/jra3/specsync/internal/config"
)

// maxLabelCacheEntries bounds the process-lifetime label-existence cache
// (spec.md §4.4/§5: "bounded to 1,000 entries, cleared wholesale when
// exceeded").
const maxLabelCacheEntries = 1000

// labelPalette maps a file kind to a fixed label color (spec.md §4.4:
// spec=blue, research=teal, quickstart=green).
var labelPalette = map[string]string{
	"spec":       "1D76DB", // blue
	"plan":       "5319E7", // purple
	"research":   "006B75", // teal
	"task":       "FBCA04", // yellow
	"tasks":      "FBCA04",
	"quickstart": "0E8A16", // green
	"datamodel":  "D93F0B", // orange
	"data-model": "D93F0B",
	"contracts":  "B60205", // red
	"subtask":    "6A5ACD", // slate-blue
	"common":     "BFBFBF", // gray
}

const defaultLabelColor = "BFBFBF"

func colorForKind(kind string) string {
	if c, ok := labelPalette[kind]; ok {
		return c
	}
	return defaultLabelColor
}

// labelCache is the bounded, process-local label-existence cache
// (spec.md §4.4/§5): adapted from the teacher's generic TTL+LRU
// internal/cache.Cache[T] into a simpler bounded stringSet with
// "clear wholesale on overflow" semantics — there's no TTL, since this
// cache lives only for the process, not by time — guided by the
// teacher's sync.RWMutex-guarded-plain-map locking discipline.
type labelCache struct {
	mu    sync.RWMutex
	known map[string]bool // lowercased label name -> exists
}

func newLabelCache() *labelCache {
	return &labelCache{known: make(map[string]bool)}
}

func (c *labelCache) has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known[strings.ToLower(name)]
}

func (c *labelCache) remember(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.known) >= maxLabelCacheEntries {
		c.known = make(map[string]bool)
	}
	c.known[strings.ToLower(name)] = true
}

// normalizeLabelSet turns a config.LabelSet into a plain []string,
// defaulting to nil for an absent entry (spec.md §4.4 Normalization).
func normalizeLabelSet(l config.LabelSet) []string {
	if l == nil {
		return nil
	}
	return []string(l)
}

// effectiveLabels computes the labels to apply for a push of file kind
// kind (spec.md §4.4 "Label resolution"): common labels, then the
// kind's own labels (falling back to the bare kind name when the config
// has no entry for it at all), deduplicated preserving first occurrence.
func effectiveLabels(cfg config.GitHubConfig, kind string) []string {
	var combined []string
	combined = append(combined, normalizeLabelSet(cfg.Labels["common"])...)

	if set, ok := cfg.Labels[kind]; ok {
		combined = append(combined, normalizeLabelSet(set)...)
	} else {
		combined = append(combined, kind)
	}

	return dedupPreserveOrder(combined)
}

func dedupPreserveOrder(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ensureLabels guarantees every label in names exists on the tracker,
// fetching the existing set once and creating whatever's missing
// (spec.md §4.4 "Before any label is applied, the adapter ensures the
// label exists"). Creation failures other than "already exists" are
// logged as warnings and do not fail the caller (spec.md §7: "Label
// provisioning failures downgrade to warnings").
func (a *Adapter) ensureLabels(ctx context.Context, names []string) {
	var toCheck []string
	for _, n := range names {
		if !a.labels.has(n) {
			toCheck = append(toCheck, n)
		}
	}
	if len(toCheck) == 0 {
		return
	}

	existing, err := a.client.ListLabels(ctx)
	if err != nil {
		log.Printf("[github] listing labels failed, proceeding without provisioning: %v", err)
		return
	}
	existingSet := make(map[string]bool, len(existing))
	for _, l := range existing {
		existingSet[strings.ToLower(l.Name)] = true
		a.labels.remember(l.Name)
	}

	for _, name := range toCheck {
		if existingSet[strings.ToLower(name)] {
			a.labels.remember(name)
			continue
		}
		if err := a.client.CreateLabel(ctx, name, colorForKind(labelKindFromName(name))); err != nil {
			if isAlreadyExists(err) {
				a.labels.remember(name)
				continue
			}
			log.Printf("[github] creating label %q failed: %v", name, err)
			continue
		}
		a.labels.remember(name)
	}
}

// labelKindFromName maps a label string back to a palette key when the
// label name itself is a recognized file kind (the common case, since
// effectiveLabels' fallback uses the bare kind name); anything else
// falls through to the default gray (defaultLabelColor).
func labelKindFromName(name string) string {
	if _, ok := labelPalette[name]; ok {
		return name
	}
	return ""
}
