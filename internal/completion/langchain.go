package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ragchat/internal/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGoogleAI  = "googleai"
)

const condenseSystemPrompt = `Given a conversation and a follow-up question, rephrase the follow-up question to be a standalone question that keeps all relevant context.
Reply with the standalone question only.`

const answerSystemPrompt = `You are a helpful assistant answering questions about the user's uploaded documents.
Answer using ONLY the context below. If the context does not contain the answer, say so.
Be concise and mention the source document names you relied on.`

// ModelConfig selects a langchaingo model.
type ModelConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKeyEnv string
}

// NewModel creates a langchaingo model for the configured provider.
func NewModel(ctx context.Context, cfg ModelConfig) (llms.Model, error) {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return m, nil
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return m, nil
	case ProviderAnthropic:
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		m, err := anthropic.New(anthropic.WithToken(key), anthropic.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return m, nil
	case ProviderGoogleAI:
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		m, err := googleai.New(ctx, googleai.WithAPIKey(key), googleai.WithDefaultModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("create googleai model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Provider)
	}
}

// LangChain answers with a langchaingo chat model in condense-plus-context
// mode: follow-ups are first rewritten into standalone questions, then the
// model answers from the retrieved context and the conversation.
type LangChain struct {
	llm         llms.Model
	name        string
	temperature float64
	condense    bool
}

// LangChainOption configures a LangChain completer.
type LangChainOption func(*LangChain)

func WithTemperature(t float64) LangChainOption {
	return func(l *LangChain) { l.temperature = t }
}

// WithCondense toggles the question rewriting step.
func WithCondense(enabled bool) LangChainOption {
	return func(l *LangChain) { l.condense = enabled }
}

func NewLangChain(model llms.Model, name string, opts ...LangChainOption) *LangChain {
	l := &LangChain{llm: model, name: name, temperature: 0.1, condense: true}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LangChain) Name() string { return l.name }

func (l *LangChain) Condense(ctx context.Context, query string, history []domain.Turn) (string, error) {
	prior := priorTurns(query, history)
	if !l.condense || len(prior) == 0 {
		return query, nil
	}
	var conv strings.Builder
	for _, t := range prior {
		fmt.Fprintf(&conv, "%s: %s\n", roleLabel(t.Role), t.Content)
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, condenseSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Conversation:\n%s\nFollow-up question: %s", conv.String(), query)),
	}
	out, err := l.generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("condense question: %w", err)
	}
	if out = strings.TrimSpace(out); out == "" {
		return query, nil
	}
	return out, nil
}

func (l *LangChain) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	var ctxText strings.Builder
	for i, r := range req.Context {
		fmt.Fprintf(&ctxText, "[%d] (%s)\n%s\n\n", i+1, r.Chunk.Source, r.Chunk.Text)
	}
	if ctxText.Len() == 0 {
		ctxText.WriteString("(no relevant context found)")
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, answerSystemPrompt+"\n\nContext:\n"+ctxText.String()),
	}
	for _, t := range priorTurns(req.Query, req.History) {
		messages = append(messages, llms.TextParts(chatType(t.Role), t.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Query))
	out, err := l.generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (l *LangChain) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := l.llm.GenerateContent(ctx, messages, llms.WithTemperature(l.temperature))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return resp.Choices[0].Content, nil
}

// priorTurns drops the trailing user turn when it is the question being
// asked, since history is committed before generation starts.
func priorTurns(query string, history []domain.Turn) []domain.Turn {
	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Content == query {
		return history[:n-1]
	}
	return history
}

func chatType(role string) llms.ChatMessageType {
	if role == "assistant" {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

func roleLabel(role string) string {
	if role == "assistant" {
		return "Assistant"
	}
	return "User"
}
