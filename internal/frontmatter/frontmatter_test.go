package frontmatter

import (
	"strings"
	"testing"
)

func TestParseNoFrontmatter(t *testing.T) {
	t.Parallel()
	fm, body, err := Parse([]byte("Just a regular markdown document.\n\nWith multiple paragraphs."))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !isEmpty(fm) {
		t.Errorf("Parse() frontmatter = %+v, want empty", fm)
	}
	if body != "Just a regular markdown document.\n\nWith multiple paragraphs." {
		t.Errorf("Parse() body = %q", body)
	}
}

func TestParseValidFrontmatter(t *testing.T) {
	t.Parallel()
	content := "---\nspec_id: 3fa85f64-5717-4562-b3fc-2c963f66afa6\nsync_status: synced\n---\nBody content here."
	fm, body, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if fm.SpecID != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("SpecID = %q", fm.SpecID)
	}
	if fm.SyncStatus != StatusSynced {
		t.Errorf("SyncStatus = %q", fm.SyncStatus)
	}
	if body != "Body content here." {
		t.Errorf("body = %q", body)
	}
}

func TestParseSpecIDCaseInsensitiveLowercasedOnRead(t *testing.T) {
	t.Parallel()
	content := "---\nspec_id: 3FA85F64-5717-4562-B3FC-2C963F66AFA6\n---\nBody"
	fm, _, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if fm.SpecID != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("SpecID = %q, want lowercase", fm.SpecID)
	}
}

func TestParseInvalidSpecIDErrors(t *testing.T) {
	t.Parallel()
	content := "---\nspec_id: not-a-uuid\n---\nBody"
	_, _, err := Parse([]byte(content))
	if err == nil {
		t.Error("Parse() with invalid spec_id should error")
	}
}

func TestParseUnclosedFrontmatterErrors(t *testing.T) {
	t.Parallel()
	_, _, err := Parse([]byte("---\nspec_id: x\nBody without closing delimiter"))
	if err == nil {
		t.Error("Parse() with unclosed frontmatter should error")
	}
}

func TestParseUnknownTopLevelKeysStripped(t *testing.T) {
	t.Parallel()
	content := "---\nsync_status: draft\nsome_unknown_key: value\n---\nBody"
	fm, _, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if fm.SyncStatus != StatusDraft {
		t.Errorf("SyncStatus = %q", fm.SyncStatus)
	}
	// No field on Frontmatter carries unknown top-level keys; round-tripping
	// through Render must not reintroduce it.
	out, err := Render(fm, "Body")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(string(out), "some_unknown_key") {
		t.Error("Render() reintroduced a stripped unknown top-level key")
	}
}

func TestParseGitHubBlockUnknownKeysPreserved(t *testing.T) {
	t.Parallel()
	content := "---\ngithub:\n  issue_number: 42\n  custom_field: keep-me\n---\nBody"
	fm, _, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if fm.GitHub.IssueNumber != 42 {
		t.Errorf("IssueNumber = %d", fm.GitHub.IssueNumber)
	}
	if fm.GitHub.Extra["custom_field"] != "keep-me" {
		t.Errorf("Extra[custom_field] = %v, want keep-me", fm.GitHub.Extra["custom_field"])
	}

	out, err := Render(fm, "Body")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(string(out), "custom_field") {
		t.Error("Render() dropped an unknown github key that should round-trip")
	}
}

func TestParseInvalidSyncHashErrors(t *testing.T) {
	t.Parallel()
	_, _, err := Parse([]byte("---\nsync_hash: NOTHEX\n---\nBody"))
	if err == nil {
		t.Error("Parse() with invalid sync_hash should error")
	}
}

func TestParseGitHubIssueNumberMustBePositive(t *testing.T) {
	t.Parallel()
	_, _, err := Parse([]byte("---\ngithub:\n  issue_number: -1\n---\nBody"))
	if err == nil {
		t.Error("Parse() with non-positive issue_number should error")
	}
}

func TestAutoSyncDefaultsToTrueWhenAbsent(t *testing.T) {
	t.Parallel()
	fm, _, err := Parse([]byte("---\nsync_status: draft\n---\nBody"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !fm.AutoSyncOrDefault() {
		t.Error("AutoSyncOrDefault() should default to true")
	}
}

func TestAutoSyncExplicitFalse(t *testing.T) {
	t.Parallel()
	fm, _, err := Parse([]byte("---\nauto_sync: false\n---\nBody"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if fm.AutoSyncOrDefault() {
		t.Error("AutoSyncOrDefault() should be false")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()
	autoSync := true
	fm := &Frontmatter{
		SpecID:     "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		SyncHash:   "abcdef123456",
		SyncStatus: StatusSynced,
		AutoSync:   &autoSync,
		GitHub:     &GitHub{IssueNumber: 7, Labels: []string{"spec"}},
	}
	body := "# Title\n\nBody text."

	rendered, err := Render(fm, body)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	parsed, parsedBody, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse() of rendered content error: %v", err)
	}
	if parsedBody != body {
		t.Errorf("round-trip body = %q, want %q", parsedBody, body)
	}
	if parsed.SpecID != fm.SpecID || parsed.SyncHash != fm.SyncHash || parsed.SyncStatus != fm.SyncStatus {
		t.Errorf("round-trip frontmatter = %+v, want %+v", parsed, fm)
	}
	if parsed.GitHub == nil || parsed.GitHub.IssueNumber != 7 {
		t.Errorf("round-trip github block = %+v", parsed.GitHub)
	}
}

func TestRenderEmptyFrontmatterOmitsDelimiters(t *testing.T) {
	t.Parallel()
	out, err := Render(&Frontmatter{}, "Body only")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if string(out) != "Body only" {
		t.Errorf("Render() = %q, want %q", out, "Body only")
	}
}

func TestComputeSyncHashIsTwelveHexChars(t *testing.T) {
	t.Parallel()
	hash := ComputeSyncHash("# Add Auth\n\nDetails.")
	if len(hash) != 12 {
		t.Fatalf("ComputeSyncHash() length = %d, want 12", len(hash))
	}
	if err := ValidateSyncHash(hash); err != nil {
		t.Errorf("ComputeSyncHash() produced an invalid hash: %v", err)
	}
}

func TestComputeSyncHashDeterministic(t *testing.T) {
	t.Parallel()
	a := ComputeSyncHash("same content")
	b := ComputeSyncHash("same content")
	if a != b {
		t.Errorf("ComputeSyncHash() not deterministic: %q != %q", a, b)
	}
	if ComputeSyncHash("different") == a {
		t.Error("ComputeSyncHash() collided for different content")
	}
}

func TestClonePreservesIndependence(t *testing.T) {
	t.Parallel()
	orig := &Frontmatter{GitHub: &GitHub{Labels: []string{"spec"}}}
	clone := Clone(orig)
	clone.GitHub.Labels[0] = "mutated"
	if orig.GitHub.Labels[0] != "spec" {
		t.Error("Clone() did not deep-copy GitHub.Labels")
	}
}
