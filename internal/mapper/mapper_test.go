package mapper

import (
	"strings"
	"testing"
	"time"

	"github.com/jra3/specsync/internal/frontmatter"
	"github.com/jra3/specsync/internal/spec"
)

func TestGenerateTitle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		specName string
		fileKind string
		want     string
	}{
		{"001-user-auth", "spec", "Feature Specification: User Auth"},
		{"001-user-auth", "plan", "Plan: User Auth"},
		{"001-user-auth", "contracts", "API Contracts: User Auth"},
		{"001-user-auth", "unknownkind", "Unknownkind: User Auth"},
	}
	for _, c := range cases {
		if got := GenerateTitle(c.specName, c.fileKind); got != c.want {
			t.Errorf("GenerateTitle(%q, %q) = %q, want %q", c.specName, c.fileKind, got, c.want)
		}
	}
}

func TestExtractSpecIDAndStrip(t *testing.T) {
	t.Parallel()
	body := "Some intro.\n<!-- spec_id: 3fa85f64-5717-4562-b3fc-2c963f66afa6 -->\nRest of body."

	id, ok := ExtractSpecID(body)
	if !ok {
		t.Fatal("expected a spec_id marker to be found")
	}
	if id != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("ExtractSpecID() = %q", id)
	}

	stripped := StripSpecIDMarker(body)
	if strings.Contains(stripped, "spec_id") {
		t.Errorf("StripSpecIDMarker() left marker behind: %q", stripped)
	}
	if !strings.Contains(stripped, "Rest of body.") {
		t.Errorf("StripSpecIDMarker() dropped body content: %q", stripped)
	}
}

func TestExtractSpecIDCaseInsensitive(t *testing.T) {
	t.Parallel()
	body := "<!-- spec_id: 3FA85F64-5717-4562-B3FC-2C963F66AFA6 -->\nbody"
	id, ok := ExtractSpecID(body)
	if !ok {
		t.Fatal("expected marker to be found")
	}
	if id != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("ExtractSpecID() = %q, want lowercase", id)
	}
}

func TestExtractSpecIDMissing(t *testing.T) {
	t.Parallel()
	if _, ok := ExtractSpecID("no marker here"); ok {
		t.Error("expected no marker to be found")
	}
}

func TestGenerateBodyAndStripFooterRoundTrip(t *testing.T) {
	origNow := nowFunc
	defer func() { nowFunc = origNow }()
	nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	sf := &spec.SpecFile{
		Markdown:    "# Feature\n\nDetails here.",
		Frontmatter: &frontmatter.Frontmatter{SpecID: "3fa85f64-5717-4562-b3fc-2c963f66afa6"},
	}
	doc := &spec.SpecDocument{Name: "001-user-auth", Path: "specs/001-user-auth"}

	body := GenerateBody(sf, doc)

	if !strings.HasPrefix(body, uuidMarkerLine(sf.Frontmatter.SpecID)) {
		t.Errorf("GenerateBody() should start with the uuid marker, got %q", body)
	}
	if !strings.Contains(body, "**Spec:** `001-user-auth`") {
		t.Errorf("GenerateBody() missing spec footer line: %q", body)
	}
	if !strings.Contains(body, "**Synced:** 2026-01-02T03:04:05Z") {
		t.Errorf("GenerateBody() footer timestamp wrong: %q", body)
	}

	withoutFooter := StripFooter(body)
	if strings.Contains(withoutFooter, "**Synced:**") {
		t.Errorf("StripFooter() left the footer behind: %q", withoutFooter)
	}
	withoutMarker := StripSpecIDMarker(withoutFooter)
	if strings.TrimSpace(withoutMarker) != "# Feature\n\nDetails here." {
		t.Errorf("round trip = %q, want original markdown", withoutMarker)
	}
}

func TestIssueToSpec(t *testing.T) {
	t.Parallel()
	issue := &IssueView{
		Number: 42,
		Title:  "Feature Specification: User Auth",
		Body:   "<!-- spec_id: 3fa85f64-5717-4562-b3fc-2c963f66afa6 -->\nIntro text.\n---\n**Spec:** `001-user-auth`\n**Path:** `specs/001-user-auth`\n**Synced:** 2026-01-02T03:04:05Z\n",
	}

	doc := IssueToSpec(issue)

	if doc.Name != "user-auth" {
		t.Errorf("IssueToSpec() Name = %q, want %q", doc.Name, "user-auth")
	}
	sf, ok := doc.Files["spec.md"]
	if !ok {
		t.Fatal("IssueToSpec() missing spec.md")
	}
	if sf.Frontmatter.SpecID != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("IssueToSpec() SpecID = %q", sf.Frontmatter.SpecID)
	}
	if sf.Frontmatter.GitHub == nil || sf.Frontmatter.GitHub.IssueNumber != 42 {
		t.Errorf("IssueToSpec() GitHub.IssueNumber not set from issue number 42")
	}
	if strings.Contains(sf.Markdown, "spec_id") || strings.Contains(sf.Markdown, "**Synced:**") {
		t.Errorf("IssueToSpec() markdown should have marker and footer stripped, got %q", sf.Markdown)
	}
}

func TestFileKind(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"spec.md":                  "spec",
		"plan.md":                  "plan",
		"contracts/openapi.yaml":   "contracts",
		"contracts/foo/bar.proto":  "contracts",
	}
	for in, want := range cases {
		if got := FileKind(in); got != want {
			t.Errorf("FileKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindFromTitleFallsBackToResearch(t *testing.T) {
	t.Parallel()
	if got := KindFromTitle("Plan: User Auth"); got != "plan" {
		t.Errorf("KindFromTitle(plan) = %q", got)
	}
	if got := KindFromTitle("Some Unrecognized Title"); got != "research" {
		t.Errorf("KindFromTitle(unrecognized) = %q, want fallback %q", got, "research")
	}
}
