package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/beaconhq/beacon/internal/log"
)

// Generator produces a completion for a fully rendered prompt.
type Generator struct {
	genkit    *genkit.Genkit
	modelName string
	retry     RetryConfig
	logger    log.Logger
}

// NewGenerator creates a generation client bound to a model name, for
// example "googleai/gemini-2.5-flash".
func NewGenerator(g *genkit.Genkit, modelName string, retry RetryConfig, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{
		genkit:    g,
		modelName: modelName,
		retry:     retry,
		logger:    logger.With("component", "generator"),
	}
}

// Generate runs the prompt through the model and returns the text of the
// response. The response is trimmed of surrounding whitespace.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := do(ctx, g.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		resp, genErr := genkit.Generate(callCtx, g.genkit,
			ai.WithModelName(g.modelName),
			ai.WithPrompt(prompt),
		)
		if genErr != nil {
			return genErr
		}
		text = strings.TrimSpace(resp.Text())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	g.logger.Debug("generated response", "model", g.modelName, "chars", len(text))
	return text, nil
}
