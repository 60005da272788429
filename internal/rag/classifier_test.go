package rag

import (
	"context"
	"testing"

	"github.com/grooshub/grooshub/internal/ai"
	"github.com/grooshub/grooshub/internal/config"
)

func TestClassify_MisconfiguredModelSkipsCall(t *testing.T) {
	provider, err := ai.NewProvider(context.Background(), &config.AIConfig{
		ClassifierModel: "not-a-qualified-model-name",
	})
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}

	c := NewClassifier(provider)
	category, called := c.Classify(context.Background(), "what is the MPG score?")
	if category != CategoryGeneral {
		t.Errorf("category = %q, want %q", category, CategoryGeneral)
	}
	if called {
		t.Error("Classify() reported a dispatched call for an unroutable model name")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"exact documents", "documents", CategoryDocuments},
		{"exact lca", "lca", CategoryLCA},
		{"exact location", "location", CategoryLocation},
		{"exact general", "general", CategoryGeneral},
		{"uppercase", "DOCUMENTS", CategoryDocuments},
		{"surrounding whitespace", "  lca \n", CategoryLCA},
		{"trailing period", "location.", CategoryLocation},
		{"quoted", "\"documents\"", CategoryDocuments},
		{"short sentence", "the category is lca", CategoryLCA},
		{"unknown word", "finance", CategoryGeneral},
		{"empty", "", CategoryGeneral},
		{"garbage", "I cannot classify this", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeCategory(tt.raw); got != tt.want {
				t.Errorf("normalizeCategory(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
