package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	genai "github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/grooshub/grooshub/internal/ai"
)

// Query categories. The category steers which context the agent gathers
// before answering; it never gates the answer itself.
const (
	CategoryGeneral   = "general"
	CategoryDocuments = "documents"
	CategoryLCA       = "lca"
	CategoryLocation  = "location"
)

const classifierPrompt = `Classify the user question into exactly one category.
Categories:
- documents: the question asks about the content of uploaded project files, drawings, reports, or specifications
- lca: the question concerns environmental impact, material shadow costs, MPG scores, or life-cycle assessment
- location: the question concerns the building site, address, neighborhood, or nearby amenities
- general: anything else

Reply with only the category name, lowercase, no punctuation.`

// Classifier routes a chat question to a category with one cheap model call.
type Classifier struct {
	provider *ai.Provider
}

// NewClassifier creates a query classifier backed by the configured
// classification model.
func NewClassifier(provider *ai.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify returns the category for the query and whether a model call was
// actually dispatched, so callers only charge quota for real calls. A
// classification failure of any kind degrades to CategoryGeneral so the chat
// request still proceeds.
func (c *Classifier) Classify(ctx context.Context, query string) (string, bool) {
	modelName := c.provider.ClassifierModel()
	providerName, _, err := ai.ParseModel(modelName)
	if err != nil {
		slog.Warn("classifier model misconfigured, defaulting to general", "model", modelName, "error", err)
		return CategoryGeneral, false
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, c.provider.Genkit(),
		genai.WithModelName(modelName),
		genai.WithSystem(classifierPrompt),
		genai.WithPrompt(query),
	)
	ai.ObserveModelCall(providerName, "classify", start, err)
	if err != nil {
		slog.Warn("query classification failed, defaulting to general", "error", err)
		return CategoryGeneral, true
	}

	return normalizeCategory(resp.Text()), true
}

// normalizeCategory maps model output onto a known category, tolerating
// whitespace, casing, and trailing punctuation. Unrecognized output maps to
// CategoryGeneral.
func normalizeCategory(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, ".!\"'`")

	switch cleaned {
	case CategoryDocuments, CategoryLCA, CategoryLocation, CategoryGeneral:
		return cleaned
	}

	// Some models answer in a short sentence; look for a category word
	for _, cat := range []string{CategoryDocuments, CategoryLCA, CategoryLocation} {
		if strings.Contains(cleaned, cat) {
			return cat
		}
	}
	return CategoryGeneral
}
