package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if !isHTTPURL(c.Server.PublicBaseURL) {
		errors = append(errors, ValidationError{
			Field:   "server.public_base_url",
			Message: "invalid public base URL",
		})
	}

	if c.Server.SearchRateLimit <= 0 || c.Server.SearchBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.search_rate_limit",
			Message: "search_rate_limit and search_burst must be positive",
		})
	}

	// Validate Auth config
	if c.Auth.JWTSecret == "" {
		errors = append(errors, ValidationError{
			Field:   "auth.jwt_secret",
			Message: "JWT secret is required",
		})
	}

	// Validate Database config
	if c.Database.Type != "postgres" && c.Database.Type != "atlas" {
		errors = append(errors, ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("unknown database type: %s", c.Database.Type),
		})
	}

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if dim, ok := EmbeddingDim(c.Embedder.Type, c.Embedder.Model); ok && c.Database.VectorDim != dim {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: fmt.Sprintf("embedder %s produces %d-dimensional vectors, vector_dim is %d", c.Embedder.Type, dim, c.Database.VectorDim),
		})
	}

	if c.Database.NumCandidates < c.Search.TopK {
		errors = append(errors, ValidationError{
			Field:   "database.num_candidates",
			Message: "num_candidates must be at least search.top_k",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Type {
	case "http", "ollama":
		if !isHTTPURL(c.Embedder.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "invalid embedding service URL",
			})
		}
	case "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.type",
			Message: fmt.Sprintf("unknown embedder type: %s", c.Embedder.Type),
		})
	}

	// Validate LLM config
	switch c.LLM.Type {
	case "ollama":
		if !isHTTPURL(c.LLM.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "openai":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "api_key is required for openai",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.type",
			Message: fmt.Sprintf("unknown llm type: %s", c.LLM.Type),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature != nil && (*c.LLM.Temperature < 0 || *c.LLM.Temperature > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Search config
	if c.Search.TopK < 1 || c.Search.TopK > 100 {
		errors = append(errors, ValidationError{
			Field:   "search.top_k",
			Message: "top_k must be between 1 and 100",
		})
	}

	if c.Search.MaxQueryChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.max_query_chars",
			Message: "max_query_chars must be positive",
		})
	}

	if c.Search.MaxContextChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.max_context_chars",
			Message: "max_context_chars must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Logging config
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Logging.Level),
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
