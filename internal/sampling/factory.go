package sampling

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BackendConfig names which concrete Sampler to build. It mirrors the
// subset of internal/config.Config sampling fields this package needs,
// so the dependency runs from the CLI entrypoint down into here rather
// than the reverse.
type BackendConfig struct {
	Backend string // "", "anthropic", "openai", or "bedrock"
	APIKey  string
	Model   string
}

// New builds the Sampler named by cfg.Backend. An empty Backend returns
// Unavailable{}, so a server started without any sampling configuration
// still runs every non-sampling tool normally.
func New(ctx context.Context, cfg BackendConfig) (Sampler, error) {
	switch cfg.Backend {
	case "":
		return Unavailable{}, nil
	case "anthropic":
		return NewAnthropicBackend(cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIBackend(cfg.APIKey, cfg.Model)
	case "bedrock":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("sampling: load AWS config: %w", err)
		}
		return NewBedrockBackend(bedrockruntime.NewFromConfig(awsCfg), cfg.Model)
	default:
		return nil, fmt.Errorf("sampling: unknown backend %q", cfg.Backend)
	}
}
