package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Embedder EmbedderConfig `yaml:"embedder"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SearchRateLimit float64       `yaml:"search_rate_limit"` // searches per second per owner
	SearchBurst     int           `yaml:"search_burst"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

type DatabaseConfig struct {
	Type          string `yaml:"type"` // postgres or atlas
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	IndexName     string `yaml:"index_name"`
	VectorDim     int    `yaml:"vector_dim"`
	NumCandidates int    `yaml:"num_candidates"`
}

type EmbedderConfig struct {
	Type    string        `yaml:"type"` // http, ollama or openai
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Type        string        `yaml:"type"` // ollama or openai
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"` // nil means unset; 0 is a valid setting
	Timeout     time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	TopK             int           `yaml:"top_k"`
	MaxQueryChars    int           `yaml:"max_query_chars"`
	MaxContextChars  int           `yaml:"max_context_chars"`
	SkipEmptyContext bool          `yaml:"skip_empty_context"`
	Timeout          time.Duration `yaml:"timeout"`
}

type ScraperConfig struct {
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/mindvault/config.yaml"),
			"/etc/mindvault/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}
	if config.Server.PublicBaseURL == "" {
		config.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", config.Server.Port)
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}
	if config.Server.SearchRateLimit == 0 {
		config.Server.SearchRateLimit = 1
	}
	if config.Server.SearchBurst == 0 {
		config.Server.SearchBurst = 5
	}

	if config.Auth.CookieName == "" {
		config.Auth.CookieName = "token"
	}

	if config.Database.Type == "" {
		config.Database.Type = "postgres"
	}
	if config.Database.Name == "" {
		config.Database.Name = "mindvault"
	}
	if config.Database.IndexName == "" {
		config.Database.IndexName = "vector_index"
	}
	if config.Database.VectorDim == 0 {
		if dim, ok := EmbeddingDim(config.Embedder.Type, config.Embedder.Model); ok {
			config.Database.VectorDim = dim
		} else {
			config.Database.VectorDim = 384 // all-MiniLM-L6-v2
		}
	}
	if config.Database.NumCandidates == 0 {
		config.Database.NumCandidates = 100
	}

	if config.Embedder.Type == "" {
		config.Embedder.Type = "http"
	}
	if config.Embedder.BaseURL == "" {
		switch config.Embedder.Type {
		case "ollama":
			config.Embedder.BaseURL = "http://localhost:11434"
		case "http":
			config.Embedder.BaseURL = "http://localhost:8000"
		}
	}
	if config.Embedder.Timeout == 0 {
		config.Embedder.Timeout = 10 * time.Second
	}

	if config.LLM.Type == "" {
		config.LLM.Type = "ollama"
	}
	if config.LLM.Model == "" && config.LLM.Type == "ollama" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.BaseURL == "" && config.LLM.Type == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Temperature == nil {
		t := 0.2
		config.LLM.Temperature = &t
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Search.TopK == 0 {
		config.Search.TopK = 10
	}
	if config.Search.MaxQueryChars == 0 {
		config.Search.MaxQueryChars = 2000
	}
	if config.Search.MaxContextChars == 0 {
		config.Search.MaxContextChars = 8000
	}
	if config.Search.Timeout == 0 {
		config.Search.Timeout = 5 * time.Second
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 5 * time.Second
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "INFO"
	}
}

// embeddingDims lists the vector sizes of the default and common models per
// embedder type. The empty model name is the embedder's default.
var embeddingDims = map[string]map[string]int{
	"http": {
		"":                 384,
		"all-MiniLM-L6-v2": 384,
	},
	"ollama": {
		"":                  768,
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
	},
	"openai": {
		"":                       1536,
		"text-embedding-ada-002": 1536,
	},
}

// EmbeddingDim reports the vector size produced by an embedder type and
// model, when it is known.
func EmbeddingDim(embedderType, model string) (int, bool) {
	if embedderType == "" {
		embedderType = "http"
	}
	model = strings.TrimSuffix(model, ":latest")
	dim, ok := embeddingDims[embedderType][model]
	return dim, ok
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if embURL := os.Getenv("EMBEDDING_SERVICE_URL"); embURL != "" {
		config.Embedder.BaseURL = embURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if level := os.Getenv("MINDVAULT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
