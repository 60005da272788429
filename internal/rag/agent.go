package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	genai "github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/grooshub/grooshub/internal/ai"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

const systemPrompt = `You are the GroosHub assistant for building and real-estate projects.
You answer questions about the user's project: its uploaded documents, its
life-cycle assessment (LCA) results, and its location. Use the available tools
to look up project data instead of guessing. When document excerpts are
provided, ground your answer in them and mention the source file names.
Answer concisely. If you do not know, say so.`

const defaultMaxTurns = 5

// scopeKey carries the per-request project scope into tool handlers through
// the generation context.
type scopeKey struct{}

type requestScope struct {
	ProjectID string
}

// ChatRequest is one user turn to be answered by the agent.
type ChatRequest struct {
	OrgID     string
	ProjectID string
	Model     string // qualified model name; empty selects the default
	Question  string
	History   []*models.Message

	// OrgAPIKey is the organization's decrypted provider override key, nil
	// when the organization uses the platform keys.
	OrgAPIKey *string
}

// ChatResult is the agent's final answer plus routing metadata.
type ChatResult struct {
	Answer   string
	Category string
	Model    string
}

// StreamFunc receives incremental answer text as the model produces it.
type StreamFunc func(chunk string)

// Agent orchestrates one chat turn: classify the question, gather context,
// then run a bounded tool-use generation loop.
type Agent struct {
	provider   *ai.Provider
	classifier *Classifier
	retriever  *Retriever
	files      *repositories.FileRepository
	lca        *repositories.LCARepository
	usage      *repositories.UsageRepository
	maxTurns   int

	mu         sync.Mutex
	registered map[*genkit.Genkit][]genai.ToolRef
}

// NewAgent creates the chat agent. maxTurns <= 0 falls back to the default
// tool-loop bound.
func NewAgent(
	provider *ai.Provider,
	classifier *Classifier,
	retriever *Retriever,
	files *repositories.FileRepository,
	lca *repositories.LCARepository,
	usage *repositories.UsageRepository,
	maxTurns int,
) *Agent {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Agent{
		provider:   provider,
		classifier: classifier,
		retriever:  retriever,
		files:      files,
		lca:        lca,
		usage:      usage,
		maxTurns:   maxTurns,
		registered: make(map[*genkit.Genkit][]genai.ToolRef),
	}
}

// Chat answers one user turn. If stream is non-nil it is called with each
// chunk of answer text as it is generated; the full answer is returned either
// way. The model call is counted against the organization's daily quota.
func (a *Agent) Chat(ctx context.Context, req ChatRequest, stream StreamFunc) (*ChatResult, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = a.provider.DefaultModel()
	}
	providerName, _, err := ai.ParseModel(modelName)
	if err != nil {
		return nil, err
	}

	g, err := a.provider.GenkitFor(ctx, providerName, req.OrgAPIKey)
	if err != nil {
		return nil, err
	}
	tools := a.toolsFor(g)

	category, classified := a.classifier.Classify(ctx, req.Question)
	if classified {
		a.countCall(ctx, req.OrgID)
	}

	// Scope tools to the request's project
	ctx = context.WithValue(ctx, scopeKey{}, &requestScope{ProjectID: req.ProjectID})

	messages := buildMessages(req.History, req.Question)

	opts := []genai.GenerateOption{
		genai.WithModelName(modelName),
		genai.WithSystem(systemPrompt),
		genai.WithMessages(messages...),
		genai.WithTools(tools...),
		genai.WithMaxTurns(a.maxTurns),
	}

	// For document questions, retrieve once up front so the first model turn
	// already has excerpts; the search tool remains available for follow-ups
	if category == CategoryDocuments {
		if docs := a.contextDocuments(ctx, req.ProjectID, req.Question); len(docs) > 0 {
			opts = append(opts, genai.WithDocs(docs...))
		}
	}

	if stream != nil {
		opts = append(opts, genai.WithStreaming(func(_ context.Context, chunk *genai.ModelResponseChunk) error {
			stream(chunk.Text())
			return nil
		}))
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, g, opts...)
	ai.ObserveModelCall(providerName, "chat", start, err)
	a.countCall(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := resp.Text()
	if strings.TrimSpace(answer) == "" {
		answer = "I could not produce an answer for that question. Try rephrasing it."
	}

	return &ChatResult{Answer: answer, Category: category, Model: modelName}, nil
}

// contextDocuments retrieves relevant chunks for the query. Retrieval errors
// degrade to no context rather than failing the chat turn.
func (a *Agent) contextDocuments(ctx context.Context, projectID, query string) []*genai.Document {
	retrieveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	matches, err := a.retriever.Retrieve(retrieveCtx, projectID, query)
	if err != nil {
		slog.Warn("context retrieval failed, answering without documents", "error", err)
		return nil
	}

	docs := make([]*genai.Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, genai.DocumentFromText(m.Content, map[string]any{
			"file_name": m.FileName,
			"file_id":   m.FileID,
		}))
	}
	return docs
}

// countCall increments the organization's daily usage counter. The quota
// middleware enforces the limit before the request reaches the agent;
// counting failures are logged, not fatal.
func (a *Agent) countCall(ctx context.Context, orgID string) {
	if _, err := a.usage.Increment(ctx, orgID, time.Now().UTC()); err != nil {
		slog.Warn("failed to record model call usage", "org_id", orgID, "error", err)
	}
}

// buildMessages converts stored history plus the new question into model
// messages, oldest first.
func buildMessages(history []*models.Message, question string) []*genai.Message {
	messages := make([]*genai.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case models.MessageRoleUser:
			messages = append(messages, genai.NewUserMessage(genai.NewTextPart(m.Content)))
		case models.MessageRoleAssistant:
			messages = append(messages, genai.NewModelMessage(genai.NewTextPart(m.Content)))
		}
	}
	messages = append(messages, genai.NewUserMessage(genai.NewTextPart(question)))
	return messages
}

// toolsFor returns the tool refs for a Genkit instance, defining them on
// first use. Override instances created per organization key each get their
// own registration.
func (a *Agent) toolsFor(g *genkit.Genkit) []genai.ToolRef {
	a.mu.Lock()
	defer a.mu.Unlock()

	if refs, ok := a.registered[g]; ok {
		return refs
	}

	searchTool := genkit.DefineTool(
		g, "search_documents", "Search the project's uploaded documents for passages relevant to a query",
		func(toolCtx *genai.ToolContext, input struct {
			Query string `json:"query" jsonschema_description:"What to search for in the project documents"`
		}) (string, error) {
			scope, err := scopeFrom(toolCtx.Context)
			if err != nil {
				return "", err
			}
			matches, err := a.retriever.Retrieve(toolCtx.Context, scope.ProjectID, input.Query)
			if err != nil {
				return "", fmt.Errorf("document search failed: %w", err)
			}
			if len(matches) == 0 {
				return "No matching passages found in the project documents.", nil
			}

			var b strings.Builder
			for i, m := range matches {
				fmt.Fprintf(&b, "[%d] %s:\n%s\n\n", i+1, m.FileName, m.Content)
			}
			return b.String(), nil
		},
	)

	listTool := genkit.DefineTool(
		g, "list_project_files", "List the files uploaded to the project, with their indexing status",
		func(toolCtx *genai.ToolContext, _ struct{}) (string, error) {
			scope, err := scopeFrom(toolCtx.Context)
			if err != nil {
				return "", err
			}
			files, err := a.files.ListByProject(toolCtx.Context, scope.ProjectID, 100, 0)
			if err != nil {
				return "", fmt.Errorf("failed to list project files: %w", err)
			}
			if len(files) == 0 {
				return "The project has no uploaded files.", nil
			}

			var b strings.Builder
			for _, f := range files {
				fmt.Fprintf(&b, "- %s (%d bytes, index status: %s)\n", f.Name, f.SizeBytes, f.IndexStatus)
			}
			return b.String(), nil
		},
	)

	lcaTool := genkit.DefineTool(
		g, "lca_summary", "Summarize the project's life-cycle assessment snapshots: MPG score, total shadow cost, and total global warming potential",
		func(toolCtx *genai.ToolContext, _ struct{}) (string, error) {
			scope, err := scopeFrom(toolCtx.Context)
			if err != nil {
				return "", err
			}
			snapshots, err := a.lca.ListSnapshotsByProject(toolCtx.Context, scope.ProjectID)
			if err != nil {
				return "", fmt.Errorf("failed to list assessments: %w", err)
			}
			if len(snapshots) == 0 {
				return "The project has no life-cycle assessments.", nil
			}

			var b strings.Builder
			for _, s := range snapshots {
				if s.MPGScore == nil {
					fmt.Fprintf(&b, "- %s: not yet computed\n", s.Name)
					continue
				}
				fmt.Fprintf(&b, "- %s: MPG %.2f EUR/m2/yr, total shadow cost %.2f EUR, total GWP %.1f kg CO2-eq (floor area %.0f m2, study period %d years)\n",
					s.Name, *s.MPGScore, *s.TotalShadowCost, *s.TotalGWP, s.GrossFloorArea, s.StudyPeriodYears)
			}
			return b.String(), nil
		},
	)

	refs := []genai.ToolRef{searchTool, listTool, lcaTool}
	a.registered[g] = refs
	return refs
}

func scopeFrom(ctx context.Context) (*requestScope, error) {
	scope, ok := ctx.Value(scopeKey{}).(*requestScope)
	if !ok || scope == nil {
		return nil, fmt.Errorf("no project scope in tool context")
	}
	return scope, nil
}
