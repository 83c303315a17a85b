// Package mapper converts between a SpecFile and a tracker-neutral Issue
// representation (spec.md §4.2), including the UUID marker that lets
// identity survive front-matter loss. Grounded on the teacher's
// internal/marshal/issue.go (IssueToMarkdown/MarkdownToIssueUpdate's
// diff-by-field approach to deciding what changed) and document.go's
// title/body conventions, retargeted at spec.md §4.2's title templates
// and footer block instead of Linear's issue fields.
package mapper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jra3/specsync/internal/frontmatter"
	"github.com/jra3/specsync/internal/spec"
)

// titlePrefixes maps a file kind to its fixed title prefix (spec.md §4.2
// generateTitle).
var titlePrefixes = map[string]string{
	"spec":        "Feature Specification:",
	"plan":        "Plan:",
	"research":    "Research:",
	"quickstart":  "Quickstart:",
	"data-model":  "Data Model:",
	"tasks":       "Tasks:",
	"contracts":   "API Contracts:",
}

// KindFromTitle derives the file kind from an issue title's recognized
// prefix (spec.md §4.4 Pull: "the per-kind file identity is derived from
// title prefix matching"). Falls back to "research" when no recognized
// prefix matches — a deliberately conservative default since an
// unrecognized subtask is still better filed as an extra doc than lost.
func KindFromTitle(title string) string {
	for kind, prefix := range titlePrefixes {
		if kind == "spec" {
			continue
		}
		if strings.HasPrefix(title, prefix) {
			return kind
		}
	}
	return "research"
}

// FileKind derives the mapper's notion of file kind from a spec.md
// filename key ("spec.md" -> "spec", "contracts/foo.yaml" -> "contracts").
func FileKind(filename string) string {
	if strings.HasPrefix(filename, "contracts/") {
		return "contracts"
	}
	return strings.TrimSuffix(filename, ".md")
}

// GenerateTitle builds the fixed-prefix, Title-Cased issue title for a
// file kind within a spec (spec.md §4.2).
func GenerateTitle(specName, fileKind string) string {
	prefix, ok := titlePrefixes[fileKind]
	if !ok {
		prefix = strings.ToUpper(fileKind[:1]) + fileKind[1:] + ":"
	}
	return prefix + " " + spec.GetFeatureName(specName)
}

var uuidMarkerPattern = regexp.MustCompile(`(?m)^<!-- spec_id: ([0-9a-fA-F-]{36}) -->$`)

// uuidMarkerLine renders the identity marker line (spec.md §4.2, §6).
func uuidMarkerLine(specID string) string {
	return fmt.Sprintf("<!-- spec_id: %s -->", specID)
}

// ExtractSpecID returns the first UUID marker found anywhere in body, if
// any (spec.md §4.2: "Presence anywhere in the body counts; only the
// first match is authoritative").
func ExtractSpecID(body string) (string, bool) {
	m := uuidMarkerPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// StripSpecIDMarker removes the first UUID marker line from body, if any.
func StripSpecIDMarker(body string) string {
	loc := uuidMarkerPattern.FindStringIndex(body)
	if loc == nil {
		return body
	}
	rest := body[:loc[0]] + body[loc[1]:]
	// collapse the blank line the marker's own newline leaves behind
	rest = strings.TrimPrefix(rest, "\n")
	return rest
}

// nowFunc is overridable in tests so generated footers are deterministic.
var nowFunc = time.Now

const footerSeparator = "\n---\n"

// GenerateBody strips front-matter from file, appends the footer block
// (spec.md §4.2), and prepends the UUID marker when spec_id is present.
func GenerateBody(file *spec.SpecFile, doc *spec.SpecDocument) string {
	body := file.Markdown

	var sb strings.Builder
	if file.Frontmatter != nil && file.Frontmatter.SpecID != "" {
		sb.WriteString(uuidMarkerLine(file.Frontmatter.SpecID))
		sb.WriteString("\n")
	}
	sb.WriteString(body)
	sb.WriteString(footerSeparator)
	sb.WriteString(fmt.Sprintf("**Spec:** `%s`\n", doc.Name))
	sb.WriteString(fmt.Sprintf("**Path:** `%s`\n", doc.Path))
	sb.WriteString(fmt.Sprintf("**Synced:** %s\n", nowFunc().UTC().Format(time.RFC3339)))

	return sb.String()
}

var footerPattern = regexp.MustCompile(`\n---\n\*\*Spec:\*\* ` + "`" + `[^\n]*\n\*\*Path:\*\* ` + "`" + `[^\n]*\n\*\*Synced:\*\* [^\n]*\n?$`)

// StripFooter removes the generated footer block from an issue body, if
// present — the inverse of GenerateBody's footer append, used by
// issueToSpec and by pull when reconstructing a local markdown body.
func StripFooter(body string) string {
	return footerPattern.ReplaceAllString(body, "")
}

var recognizedTitlePrefix = regexp.MustCompile(`^[A-Za-z ]+:\s*`)

var nonFeatureChars = regexp.MustCompile(`[^a-z0-9-]`)

// issueSpecNameFromTitle derives a spec directory name from an issue
// title (spec.md §4.2 issueToSpec): strip the recognized prefix,
// lowercase, replace whitespace runs with "-", drop characters outside
// [a-z0-9-].
func issueSpecNameFromTitle(title string) string {
	stripped := recognizedTitlePrefix.ReplaceAllString(title, "")
	lower := strings.ToLower(stripped)
	fields := strings.Fields(lower)
	joined := strings.Join(fields, "-")
	return nonFeatureChars.ReplaceAllString(joined, "")
}

// IssueToSpec derives a SpecDocument from a remote issue (spec.md §4.2
// issueToSpec): a single spec.md file, sync_status=synced, body equal to
// the issue body minus the embedded UUID marker and footer.
func IssueToSpec(issue *IssueView) *spec.SpecDocument {
	name := issueSpecNameFromTitle(issue.Title)
	body := StripFooter(StripSpecIDMarker(issue.Body))

	autoSync := true
	fm := &frontmatter.Frontmatter{
		SyncStatus: frontmatter.StatusSynced,
		IssueType:  frontmatter.IssueTypeParent,
		AutoSync:   &autoSync,
		LastSync:   nowFunc().UTC().Format(time.RFC3339),
		SyncHash:   frontmatter.ComputeSyncHash(body),
	}
	if specID, ok := ExtractSpecID(issue.Body); ok {
		fm.SpecID = specID
	}
	if issue.Number != 0 {
		fm.GitHub = &frontmatter.GitHub{IssueNumber: issue.Number}
	}

	content, _ := frontmatter.Render(fm, body)

	sf := &spec.SpecFile{
		Filename:    "spec.md",
		Content:     content,
		Frontmatter: fm,
		Markdown:    body,
	}

	return &spec.SpecDocument{
		Name:  name,
		Files: map[string]*spec.SpecFile{"spec.md": sf},
	}
}

// IssueView is the minimal subset of tracker.Issue the mapper needs,
// kept separate so the mapper does not import the tracker package
// (mapper depends only on spec + frontmatter; the adapter glues mapper
// and tracker together).
type IssueView struct {
	Number int
	Title  string
	Body   string
}
