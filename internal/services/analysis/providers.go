package analysis

import (
	"context"

	"github.com/bdtoconnect-creator/etf-compass/internal/clients/claude"
	"github.com/bdtoconnect-creator/etf-compass/internal/clients/gemini"
	"github.com/bdtoconnect-creator/etf-compass/internal/clients/openai"
	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
)

const xaiDefaultModel = "grok-2"

// CandidatesFromConfig builds a candidate for every provider with a
// credential, in the order openai, claude, gemini, xai, fake.
func CandidatesFromConfig(cfg *common.Config, logger *common.Logger) []Candidate {
	clients := cfg.Clients
	var out []Candidate

	if key := clients.OpenAI.APIKey; key != "" {
		pc := clients.OpenAI
		out = append(out, Candidate{Name: ProviderOpenAI, New: func(context.Context) (interfaces.AnalysisProvider, error) {
			client := openai.NewClient(key,
				openai.WithBaseURL(pc.BaseURL),
				openai.WithModel(pc.Model),
				openai.WithTimeout(pc.GetTimeout()),
				openai.WithLogger(logger),
			)
			return NewChatProvider(ProviderOpenAI, client), nil
		}})
	}

	if key := clients.Claude.APIKey; key != "" {
		pc := clients.Claude
		out = append(out, Candidate{Name: ProviderClaude, New: func(context.Context) (interfaces.AnalysisProvider, error) {
			client := claude.NewClient(key,
				claude.WithBaseURL(pc.BaseURL),
				claude.WithModel(pc.Model),
				claude.WithTimeout(pc.GetTimeout()),
				claude.WithLogger(logger),
			)
			return NewChatProvider(ProviderClaude, client), nil
		}})
	}

	if key := clients.Gemini.APIKey; key != "" {
		pc := clients.Gemini
		out = append(out, Candidate{Name: ProviderGemini, New: func(ctx context.Context) (interfaces.AnalysisProvider, error) {
			client, err := gemini.NewClient(ctx, key, gemini.WithModel(pc.Model), gemini.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return NewChatProvider(ProviderGemini, client), nil
		}})
	}

	if key := clients.XAI.APIKey; key != "" {
		pc := clients.XAI
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = openai.XAIBaseURL
		}
		model := pc.Model
		if model == "" {
			model = xaiDefaultModel
		}
		out = append(out, Candidate{Name: ProviderXAI, New: func(context.Context) (interfaces.AnalysisProvider, error) {
			client := openai.NewClient(key,
				openai.WithBaseURL(baseURL),
				openai.WithModel(model),
				openai.WithTimeout(pc.GetTimeout()),
				openai.WithLogger(logger),
			)
			return NewChatProvider(ProviderXAI, client, SentimentOnly()), nil
		}})
	}

	if cfg.AI.EnableFake {
		out = append(out, Candidate{Name: ProviderFake, New: func(context.Context) (interfaces.AnalysisProvider, error) {
			return NewFakeProvider(ProviderFake), nil
		}})
	}

	return out
}
