package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// TestRecoverXRef tests rebuilding a cross-reference table by scanning for
// object headers
func TestRecoverXRef(t *testing.T) {
	content := "%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
		"3 0 obj\n(hello)\nendobj\n" +
		"trailer\n<< /Size 4 /Root 1 0 R >>\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	if result.ObjectsRecovered != 3 {
		t.Errorf("ObjectsRecovered = %d, want 3", result.ObjectsRecovered)
	}
	if !result.TrailerFound {
		t.Error("expected TrailerFound = true")
	}
	if result.RootSynthesized {
		t.Error("expected RootSynthesized = false when trailer carries /Root")
	}

	entry1, ok := result.Table.Get(1)
	if !ok {
		t.Fatal("object 1 not recovered")
	}
	wantOffset := int64(strings.Index(content, "1 0 obj"))
	if entry1.Offset != wantOffset {
		t.Errorf("object 1 offset = %d, want %d", entry1.Offset, wantOffset)
	}
	if !entry1.InUse {
		t.Error("recovered entries should be in use")
	}

	root, ok := result.Table.Trailer.GetIndirectRef("Root")
	if !ok || root.Number != 1 {
		t.Errorf("trailer Root = %v, want 1 0 R", result.Table.Trailer.Get("Root"))
	}
}

// TestRecoverXRefKeepsLastOccurrence tests that a redefined object resolves
// to its newest body
func TestRecoverXRefKeepsLastOccurrence(t *testing.T) {
	content := "1 0 obj\n(old)\nendobj\n" +
		"2 0 obj\n42\nendobj\n" +
		"1 0 obj\n(new)\nendobj\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	if result.ObjectsRecovered != 2 {
		t.Errorf("ObjectsRecovered = %d, want 2", result.ObjectsRecovered)
	}

	entry, ok := result.Table.Get(1)
	if !ok {
		t.Fatal("object 1 not recovered")
	}
	wantOffset := int64(strings.LastIndex(content, "1 0 obj"))
	if entry.Offset != wantOffset {
		t.Errorf("object 1 offset = %d, want last occurrence at %d", entry.Offset, wantOffset)
	}
}

// TestRecoverXRefBoundary tests that digits glued to other text are not
// mistaken for object headers
func TestRecoverXRefBoundary(t *testing.T) {
	content := "1 0 obj\n(data)\nendobj\n" +
		"x5 0 obj should not count\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	if result.ObjectsRecovered != 1 {
		t.Errorf("ObjectsRecovered = %d, want 1", result.ObjectsRecovered)
	}
	if _, ok := result.Table.Get(5); ok {
		t.Error("object 5 should not have been recovered")
	}
}

// TestRecoverXRefSynthesizedRoot tests locating the catalog when no trailer
// survives
func TestRecoverXRefSynthesizedRoot(t *testing.T) {
	content := "7 0 obj\n<< /Type /Catalog /Pages 8 0 R >>\nendobj\n" +
		"8 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	if result.TrailerFound {
		t.Error("expected TrailerFound = false")
	}
	if !result.RootSynthesized {
		t.Fatal("expected RootSynthesized = true")
	}

	root, ok := result.Table.Trailer.GetIndirectRef("Root")
	if !ok || root.Number != 7 {
		t.Errorf("synthesized Root = %v, want 7 0 R", result.Table.Trailer.Get("Root"))
	}

	// Size is synthesized as one past the highest object number.
	size, ok := result.Table.Trailer.GetInt("Size")
	if !ok || size != 9 {
		t.Errorf("synthesized Size = %v, want 9", result.Table.Trailer.Get("Size"))
	}
}

// TestRecoverXRefTrailerWithoutRoot tests falling back past a trailer that
// lacks /Root
func TestRecoverXRefTrailerWithoutRoot(t *testing.T) {
	content := "1 0 obj\n<< /Type /Catalog >>\nendobj\n" +
		"trailer\n<< /Size 2 /Root 1 0 R >>\n" +
		"2 0 obj\n(update)\nendobj\n" +
		"trailer\n<< /Size 3 >>\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	if !result.TrailerFound {
		t.Fatal("expected the older trailer with /Root to be used")
	}
	root, ok := result.Table.Trailer.GetIndirectRef("Root")
	if !ok || root.Number != 1 {
		t.Errorf("Root = %v, want 1 0 R", result.Table.Trailer.Get("Root"))
	}
}

// TestRecoverXRefSizeSynthesis tests filling in a missing /Size
func TestRecoverXRefSizeSynthesis(t *testing.T) {
	content := "1 0 obj\n(a)\nendobj\n" +
		"12 0 obj\n(b)\nendobj\n" +
		"trailer\n<< /Root 1 0 R >>\n"

	result, err := RecoverXRef(bytes.NewReader([]byte(content)))
	if err != nil {
		t.Fatalf("RecoverXRef failed: %v", err)
	}

	size, ok := result.Table.Trailer.GetInt("Size")
	if !ok || size != 13 {
		t.Errorf("Size = %v, want 13", result.Table.Trailer.Get("Size"))
	}
}

// TestRecoverXRefNoObjects tests that a file with no object headers fails
func TestRecoverXRefNoObjects(t *testing.T) {
	_, err := RecoverXRef(bytes.NewReader([]byte("this is not a document at all")))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var recErr *RecoveryError
	if !errors.As(err, &recErr) {
		t.Errorf("expected *RecoveryError, got %T", err)
	}
}

// TestRecoveryDiagnostic tests the diagnostic summary strings
func TestRecoveryDiagnostic(t *testing.T) {
	tests := []struct {
		name   string
		result RecoveryResult
		want   []string
	}{
		{
			name:   "trailer found",
			result: RecoveryResult{ObjectsRecovered: 5, TrailerFound: true},
			want:   []string{"5 objects"},
		},
		{
			name:   "trailer reconstructed",
			result: RecoveryResult{ObjectsRecovered: 2},
			want:   []string{"2 objects", "trailer reconstructed"},
		},
		{
			name:   "catalog scan",
			result: RecoveryResult{ObjectsRecovered: 2, RootSynthesized: true},
			want:   []string{"catalog located"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.Diagnostic()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Diagnostic() = %q, missing %q", got, want)
				}
			}
		})
	}
}
