package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"ragchat/internal/domain"
)

func result(source, text string) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Source: source, Text: text}}
}

func TestExtractive_Complete(t *testing.T) {
	e := NewExtractive(2)
	ctx := context.Background()

	t.Run("no context", func(t *testing.T) {
		got, err := e.Complete(ctx, domain.CompletionRequest{Query: "anything"})
		require.NoError(t, err)
		assert.Equal(t, NoContextAnswer, got)
	})

	t.Run("quotes matching sentences with sources", func(t *testing.T) {
		got, err := e.Complete(ctx, domain.CompletionRequest{
			Query: "When was the lighthouse built?",
			Context: []domain.SearchResult{
				result("history.txt", "The town grew slowly. The lighthouse was built in 1871."),
				result("keepers.txt", "Keepers lived in the lighthouse until 1950."),
			},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "The lighthouse was built in 1871. Keepers lived in the lighthouse until 1950."), got)
		assert.Contains(t, got, "Sources: history.txt, keepers.txt")
		assert.NotContains(t, got, "town grew")
	})

	t.Run("falls back to first sentence", func(t *testing.T) {
		got, err := e.Complete(ctx, domain.CompletionRequest{
			Query:   "zebra",
			Context: []domain.SearchResult{result("a.txt", "Unrelated words. More words.")},
		})
		require.NoError(t, err)
		assert.Equal(t, "Unrelated words.\n\nSources: a.txt", got)
	})
}

func TestExtractive_Condense(t *testing.T) {
	e := NewExtractive(0)
	history := []domain.Turn{
		{Role: "user", Content: "Tell me about the lighthouse"},
		{Role: "assistant", Content: "It was built in 1871."},
		{Role: "user", Content: "why?"},
	}
	got, err := e.Condense(context.Background(), "why?", history)
	require.NoError(t, err)
	assert.Equal(t, "Tell me about the lighthouse why?", got)

	got, err = e.Condense(context.Background(), "lighthouse keepers", history)
	require.NoError(t, err)
	assert.Equal(t, "lighthouse keepers", got)
}

// fakeModel is a scripted llms.Model.
type fakeModel struct {
	replies []string
	err     error
	calls   [][]llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return nil, f.err
	}
	reply := ""
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func text(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestLangChain_CondenseSkipsFirstQuestion(t *testing.T) {
	model := &fakeModel{}
	lc := NewLangChain(model, "fake")
	got, err := lc.Condense(context.Background(), "What is it?", []domain.Turn{{Role: "user", Content: "What is it?"}})
	require.NoError(t, err)
	assert.Equal(t, "What is it?", got)
	assert.Empty(t, model.calls)
}

func TestLangChain_CondenseRewritesFollowUp(t *testing.T) {
	model := &fakeModel{replies: []string{"  When was the lighthouse built?  "}}
	lc := NewLangChain(model, "fake")
	got, err := lc.Condense(context.Background(), "When?", []domain.Turn{
		{Role: "user", Content: "Tell me about the lighthouse"},
		{Role: "assistant", Content: "It guards the bay."},
		{Role: "user", Content: "When?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "When was the lighthouse built?", got)
	require.Len(t, model.calls, 1)
	assert.Contains(t, text(model.calls[0][1]), "Assistant: It guards the bay.")
}

func TestLangChain_CompleteBuildsConversation(t *testing.T) {
	model := &fakeModel{replies: []string{"Built in 1871."}}
	lc := NewLangChain(model, "fake", WithCondense(false), WithTemperature(0))
	got, err := lc.Complete(context.Background(), domain.CompletionRequest{
		Query: "When?",
		History: []domain.Turn{
			{Role: "user", Content: "Lighthouse?"},
			{Role: "assistant", Content: "It guards the bay."},
			{Role: "user", Content: "When?"},
		},
		Context: []domain.SearchResult{result("history.txt", "The lighthouse was built in 1871.")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Built in 1871.", got)

	require.Len(t, model.calls, 1)
	msgs := model.calls[0]
	require.Len(t, msgs, 4, "system, two prior turns, question")
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Contains(t, text(msgs[0]), "(history.txt)")
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
	assert.Equal(t, "When?", text(msgs[3]))
}

func TestLangChain_CompletePropagatesErrors(t *testing.T) {
	boom := errors.New("rate limited")
	lc := NewLangChain(&fakeModel{err: boom}, "fake")
	_, err := lc.Complete(context.Background(), domain.CompletionRequest{Query: "q"})
	assert.ErrorIs(t, err, boom)
}

func TestNewModel_ProviderSelection(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "test-key")
	t.Setenv("RAGCHAT_TEST_EMPTY_KEY", "")
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr string
	}{
		{
			name:    "unknown provider",
			cfg:     ModelConfig{Provider: "mystery"},
			wantErr: "unsupported completion provider",
		},
		{
			name:    "googleai without key",
			cfg:     ModelConfig{Provider: ProviderGoogleAI, Model: "gemini-2.5-flash", APIKeyEnv: "RAGCHAT_TEST_EMPTY_KEY"},
			wantErr: "missing API key in env RAGCHAT_TEST_EMPTY_KEY",
		},
		{
			name:    "anthropic without key",
			cfg:     ModelConfig{Provider: ProviderAnthropic, Model: "claude-3-5-haiku-latest", APIKeyEnv: "RAGCHAT_TEST_EMPTY_KEY"},
			wantErr: "missing API key",
		},
		{
			name: "googleai with key",
			cfg:  ModelConfig{Provider: ProviderGoogleAI, Model: "gemini-2.5-flash", APIKeyEnv: "RAGCHAT_TEST_KEY"},
		},
		{
			name: "openai with key",
			cfg:  ModelConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKeyEnv: "RAGCHAT_TEST_KEY"},
		},
		{
			name: "ollama needs no key",
			cfg:  ModelConfig{Provider: ProviderOllama, Model: "llama3.2", BaseURL: "http://localhost:11434"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}
