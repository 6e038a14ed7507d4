package assembler

import (
	"fmt"

	"github.com/fyrsmithlabs/sheetctx/internal/sampling"
	"github.com/fyrsmithlabs/sheetctx/internal/schema"
)

// Section keys rendered into the prompt context.
const (
	SectionSchema    = "schema"
	SectionRetrieved = "retrieved"
	SectionSamples   = "samples"
)

// SamplingOptions selects the rows shown in the samples section.
type SamplingOptions struct {
	Strategy sampling.Strategy `koanf:"strategy" json:"strategy"`
	// Size is the number of data rows. It must be a non-negative integer.
	Size float64 `koanf:"size" json:"size"`
	Seed uint64  `koanf:"seed" json:"seed"`
	// StratifyBy names the column used as the stratum key.
	StratifyBy string `koanf:"stratify_by" json:"stratifyBy,omitempty"`
}

// RetrievalConfig controls indexing and retrieval.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
	// ChunkRows is the number of data rows per indexed chunk.
	ChunkRows int `koanf:"chunk_rows"`
	// PreviewChars bounds the preview of each retrieved chunk.
	PreviewChars int `koanf:"preview_chars"`
	// IndexCacheSize bounds how many sheet versions stay indexed.
	IndexCacheSize int `koanf:"index_cache_size"`
	// Rerank reorders vector matches by query term overlap.
	Rerank bool `koanf:"rerank"`
}

// Config configures an Assembler.
type Config struct {
	MaxContextTokens       int            `koanf:"max_context_tokens"`
	ReserveForOutputTokens int            `koanf:"reserve_for_output_tokens"`
	SectionTargets         map[string]int `koanf:"section_targets"`
	SectionPriorities      map[string]int `koanf:"section_priorities"`

	Sampling  SamplingOptions `koanf:"sampling"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Schema    schema.Limits   `koanf:"schema"`
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:       8000,
		ReserveForOutputTokens: 1000,
		SectionTargets: map[string]int{
			SectionSchema:    1500,
			SectionRetrieved: 2500,
			SectionSamples:   2000,
		},
		SectionPriorities: map[string]int{
			SectionSchema:    3,
			SectionRetrieved: 2,
			SectionSamples:   1,
		},
		Sampling: SamplingOptions{
			Strategy: sampling.StrategySystematic,
			Size:     10,
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			ChunkRows:      25,
			PreviewChars:   200,
			IndexCacheSize: 32,
		},
		Schema: schema.DefaultLimits(),
	}
}

// ApplyDefaults fills zero fields from DefaultConfig. Section maps are only
// defaulted when nil, so an empty map disables allocation.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = d.MaxContextTokens
	}
	if c.ReserveForOutputTokens == 0 {
		c.ReserveForOutputTokens = d.ReserveForOutputTokens
	}
	if c.SectionTargets == nil {
		c.SectionTargets = d.SectionTargets
	}
	if c.SectionPriorities == nil {
		c.SectionPriorities = d.SectionPriorities
	}
	if c.Sampling.Strategy == "" {
		c.Sampling.Strategy = d.Sampling.Strategy
	}
	if c.Sampling.Size == 0 {
		c.Sampling.Size = d.Sampling.Size
	}
	if c.Schema == (schema.Limits{}) {
		c.Schema = d.Schema
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = d.Retrieval.TopK
	}
	if c.Retrieval.ChunkRows == 0 {
		c.Retrieval.ChunkRows = d.Retrieval.ChunkRows
	}
	if c.Retrieval.PreviewChars == 0 {
		c.Retrieval.PreviewChars = d.Retrieval.PreviewChars
	}
	if c.Retrieval.IndexCacheSize == 0 {
		c.Retrieval.IndexCacheSize = d.Retrieval.IndexCacheSize
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("%w: max_context_tokens must not be negative", ErrInvalidConfig)
	}
	if c.ReserveForOutputTokens < 0 {
		return fmt.Errorf("%w: reserve_for_output_tokens must not be negative", ErrInvalidConfig)
	}
	for k, v := range c.SectionTargets {
		if v < 0 {
			return fmt.Errorf("%w: section target %q is negative", ErrInvalidConfig, k)
		}
	}
	if _, err := sampling.ValidateSize(c.Sampling.Size); err != nil {
		return err
	}
	if c.Retrieval.TopK < 0 || c.Retrieval.ChunkRows < 0 || c.Retrieval.PreviewChars < 0 {
		return fmt.Errorf("%w: retrieval settings must not be negative", ErrInvalidConfig)
	}
	if c.Retrieval.IndexCacheSize < 0 {
		return fmt.Errorf("%w: index_cache_size must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) priority(key string) int {
	return c.SectionPriorities[key]
}
