package cmd

import (
	"testing"

	"github.com/docsage/docsage/internal/client"
)

func TestSourceDocumentNames(t *testing.T) {
	sources := []client.SourceDoc{
		{Metadata: map[string]string{"documentName": "guide.pdf"}},
		{Metadata: map[string]string{"documentName": "notes.md"}},
		{Metadata: map[string]string{"documentName": "guide.pdf"}},
		{Metadata: map[string]string{"page": "3"}},
	}

	got := sourceDocumentNames(sources)
	if len(got) != 2 || got[0] != "guide.pdf" || got[1] != "notes.md" {
		t.Errorf("sourceDocumentNames() = %v, want [guide.pdf notes.md]", got)
	}

	if got := sourceDocumentNames(nil); len(got) != 0 {
		t.Errorf("sourceDocumentNames(nil) = %v, want empty", got)
	}
}
