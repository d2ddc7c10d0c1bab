package memory

import (
	"fmt"

	"github.com/smallnest/agentmem/llm"
)

// Config carries the union of tunables across all strategies plus the
// external dependencies. Zero values mean "use the strategy default";
// Client is required only by the strategies that call the model.
type Config struct {
	// WindowSize bounds sliding_window, hierarchical and memory_augmented.
	WindowSize int

	// RAMSize bounds the os_paging active tier.
	RAMSize int

	// K is the retrieval fan-out for retrieval_rag and hierarchical.
	K int

	// EmbeddingDim is the vector dimension for retrieval_rag and
	// hierarchical.
	EmbeddingDim int

	// SummaryThreshold triggers summarization consolidation.
	SummaryThreshold int

	// CompressionRatio and ImportanceThreshold tune compression.
	CompressionRatio    float64
	ImportanceThreshold float64

	// Client is required by summarization, retrieval_rag, compression,
	// hierarchical, memory_augmented and graph_knowledge.
	Client llm.Client

	// CountTokens defaults to the gpt-4o-mini tokenizer when nil.
	CountTokens llm.TokenCounter
}

// StrategyIDs lists every registered strategy identifier, in presentation
// order.
func StrategyIDs() []string {
	return []string{
		StrategySequential,
		StrategySlidingWindow,
		StrategySummarization,
		StrategyRetrieval,
		StrategyCompression,
		StrategyHierarchical,
		StrategyAugmented,
		StrategyGraph,
		StrategyOSPaging,
	}
}

// New constructs the strategy registered under id. Unknown ids and missing
// required dependencies are rejected with an error.
func New(id string, config *Config) (Strategy, error) {
	if config == nil {
		config = &Config{}
	}
	switch id {
	case StrategySequential:
		return NewSequentialMemory(&SequentialConfig{
			CountTokens: config.CountTokens,
		}), nil
	case StrategySlidingWindow:
		return NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{
			WindowSize:  config.WindowSize,
			CountTokens: config.CountTokens,
		}), nil
	case StrategySummarization:
		return NewSummarizationMemory(&SummarizationConfig{
			SummaryThreshold: config.SummaryThreshold,
			Client:           config.Client,
		})
	case StrategyRetrieval:
		return NewRetrievalMemory(&RetrievalConfig{
			K:            config.K,
			EmbeddingDim: config.EmbeddingDim,
			Client:       config.Client,
		})
	case StrategyCompression:
		return NewCompressionMemory(&CompressionConfig{
			CompressionRatio:    config.CompressionRatio,
			ImportanceThreshold: config.ImportanceThreshold,
			Client:              config.Client,
			CountTokens:         config.CountTokens,
		})
	case StrategyHierarchical:
		return NewHierarchicalMemory(&HierarchicalConfig{
			WindowSize:   config.WindowSize,
			K:            config.K,
			EmbeddingDim: config.EmbeddingDim,
			Client:       config.Client,
			CountTokens:  config.CountTokens,
		})
	case StrategyAugmented:
		return NewAugmentedMemory(&AugmentedConfig{
			WindowSize:  config.WindowSize,
			Client:      config.Client,
			CountTokens: config.CountTokens,
		})
	case StrategyGraph:
		return NewGraphMemory(&GraphConfig{
			Client: config.Client,
		})
	case StrategyOSPaging:
		return NewOSMemory(&OSMemoryConfig{
			RAMSize: config.RAMSize,
		}), nil
	default:
		return nil, fmt.Errorf("memory: unknown strategy %q", id)
	}
}
