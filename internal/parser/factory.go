package parser

import (
	"fmt"

	"docxingest/internal/config"
	"docxingest/internal/port"
)

// ProviderFactory is a function that creates a FieldExtractor from a provider config.
type ProviderFactory func(cfg *config.ParserProviderConfig) (port.FieldExtractor, error)

// registry of provider factories, populated by init() in each provider package
// or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewFieldExtractor creates a FieldExtractor from a provider config using the registered factory.
func NewFieldExtractor(cfg *config.ParserProviderConfig) (port.FieldExtractor, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown parser provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewFromConfig builds every configured provider in fallback order. A single
// provider is returned as is; several are wrapped in a FallbackExtractor.
func NewFromConfig(cfg *config.ParserConfig) (port.FieldExtractor, error) {
	var (
		extractors []port.FieldExtractor
		names      []string
	)
	for _, pc := range cfg.Providers() {
		fe, err := NewFieldExtractor(pc)
		if err != nil {
			return nil, fmt.Errorf("parser.NewFromConfig: %w", err)
		}
		extractors = append(extractors, fe)
		names = append(names, pc.Provider)
	}
	if len(extractors) == 1 {
		return extractors[0], nil
	}
	return NewFallbackExtractor(extractors, names), nil
}
