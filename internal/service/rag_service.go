package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/vectorindex"
)

// User-facing fallback answers. Ask degrades to these instead of surfacing
// errors; the transport layer always gets a plain string.
const (
	msgAIUnavailable    = "Sorry, the AI service is not available at the moment."
	msgGenerationFailed = "Sorry, I encountered an error while generating a response. Please try again."
	msgNoMatches        = "I couldn't find relevant information about this project to answer your question."
	msgStillPreparing   = "This project's knowledge base is still being prepared. Please try again in a moment."
	msgNoRepository     = "This project doesn't have a linked GitHub repository to discuss yet."
)

const systemInstruction = "You are a helpful AI assistant that explains code and projects clearly and concisely. Keep responses brief and focused."

// contextChunks is how many retrieved chunks make it into the prompt.
const contextChunks = 3

// RAGService answers questions about a project grounded in its indexed
// repository content.
type RAGService struct {
	projects  port.ProjectStore
	records   port.ProcessingStore
	embedder  port.EmbeddingProvider
	generator port.GenerationProvider
	topK      int
	enabled   bool
}

// NewRAGService creates a new RAG service. enabled reflects whether both
// providers are configured; when false every Ask returns the unavailable message.
func NewRAGService(projects port.ProjectStore, records port.ProcessingStore, embedder port.EmbeddingProvider, generator port.GenerationProvider, topK int, enabled bool) *RAGService {
	if topK <= 0 {
		topK = 5
	}
	return &RAGService{
		projects:  projects,
		records:   records,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
		enabled:   enabled,
	}
}

// Ask answers a question about a project. It never returns an error: every
// failure degrades into a user-facing fallback answer.
func (s *RAGService) Ask(ctx context.Context, projectID, message string, history []domain.ChatTurn) string {
	if !s.enabled {
		return msgAIUnavailable
	}

	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		slog.Error("ask: load project", "project_id", projectID, "error", err)
		return msgGenerationFailed
	}
	if project.GitHubURL == "" {
		return msgNoRepository
	}

	rec, err := s.records.GetRecord(ctx, projectID)
	if err != nil || rec.State != domain.StateCompleted {
		return msgStillPreparing
	}

	// 1. Rebuild the index from the persisted document
	doc, err := s.records.LoadEmbeddingsDocument(ctx, projectID)
	if err != nil {
		slog.Warn("ask: embeddings document unavailable", "project_id", projectID, "error", err)
		return msgStillPreparing
	}
	if len(doc.Chunks) == 0 {
		return msgNoMatches
	}
	ix, err := vectorindex.Build(doc.Embeddings)
	if err != nil {
		slog.Error("ask: rebuild index", "project_id", projectID, "error", err)
		return msgGenerationFailed
	}

	// 2. Embed the question
	query, err := s.embedder.Embed(ctx, message)
	if err != nil {
		slog.Error("ask: embed query", "project_id", projectID, "error", err)
		return msgGenerationFailed
	}
	vectorindex.Normalize(query)

	// 3. Retrieve similar chunks
	matches, err := ix.Search(query, s.topK)
	if err != nil {
		slog.Error("ask: search", "project_id", projectID, "error", err)
		return msgGenerationFailed
	}
	if len(matches) == 0 {
		return msgNoMatches
	}

	retrieved := make([]string, len(matches))
	for i, m := range matches {
		retrieved[i] = doc.Chunks[m.ChunkIndex]
	}

	// 4. Generate the grounded answer
	prompt := buildPrompt(project.Title, message, retrieved, history)
	answer, err := s.generator.Generate(ctx, systemInstruction, prompt)
	if err != nil {
		slog.Error("ask: generate", "project_id", projectID, "error", err)
		return msgGenerationFailed
	}
	return answer
}

// buildPrompt assembles the generation prompt from the retrieved chunks and
// the tail of the conversation. Only the top chunks and the last 4 turns are used.
func buildPrompt(title, query string, retrieved []string, history []domain.ChatTurn) string {
	if len(retrieved) > contextChunks {
		retrieved = retrieved[:contextChunks]
	}
	contextText := strings.Join(retrieved, "\n\n")

	historyContext := ""
	if len(history) > 0 {
		recent := history
		if len(recent) > 4 {
			recent = recent[len(recent)-4:]
		}
		lines := make([]string, len(recent))
		for i, turn := range recent {
			role := "Assistant"
			if turn.Role == domain.RoleUser {
				role = "User"
			}
			lines[i] = role + ": " + turn.Content
		}
		historyContext = "\n\nRecent conversation:\n" + strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are an AI assistant helping users understand the "%s" project.
Use the following code/documentation context to answer the user's question accurately and helpfully.

Context from the project repository:
%s%s

User Question: %s

Instructions:
- Keep responses CONCISE and to the point (2-3 sentences max)
- Focus on the most important information
- Use bullet points for lists when appropriate
- If the context doesn't contain enough information, say so briefly and suggest what might help`,
		title, contextText, historyContext, query)
}
