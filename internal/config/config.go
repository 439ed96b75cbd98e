package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-dedup/internal/constants"
)

//go:embed prices.yaml
var pricesYAML []byte

//go:embed vocabulary.yaml
var vocabularyYAML []byte

type Config struct {
	PhotoPrism PhotoPrismConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	LlamaCpp   LlamaCppConfig
	Caption    CaptionConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Pipeline   PipelineConfig
	Fetch      FetchConfig
	Web        WebConfig
	LogLevel   string
	Prices     PricesConfig
	Vocabulary VocabularyConfig
}

type PhotoPrismConfig struct {
	URL          string
	Username     string
	Password     string
	PasswordFile string // file holding the password, used when Password is empty (e.g. Docker secrets)
	Domain       string // public domain for generating photo links (e.g., https://photos.example.com)
	DatabaseURL  string // MariaDB DSN for direct database access (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
}

// GetPassword returns the password, reading PasswordFile when Password is unset.
func (c *PhotoPrismConfig) GetPassword() string {
	if c.Password != "" || c.PasswordFile == "" {
		return c.Password
	}
	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// PhotoURL returns an OSC 8 hyperlink for terminal emulators (iTerm2, etc.)
// Displays the UID but makes it clickable to open the photo in PhotoPrism
// Returns empty string if Domain is not set
func (c *PhotoPrismConfig) PhotoURL(uid string) string {
	if c.Domain == "" {
		return ""
	}
	url := c.Domain + "/library/browse?view=cards&order=oldest&q=uid:" + uid
	// OSC 8 hyperlink format: \e]8;;URL\e\\TEXT\e]8;;\e\\
	return "\x1b]8;;" + url + "\x1b\\" + uid + "\x1b]8;;\x1b\\"
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

// GetAPIKey returns the Gemini API key, falling back to GOOGLE_API_KEY.
func (c *GeminiConfig) GetAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("GOOGLE_API_KEY")
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type LlamaCppConfig struct {
	URL   string // defaults to http://localhost:8080
	Model string // defaults to llava
}

type CaptionConfig struct {
	Provider string // openai, gemini, ollama, llamacpp; empty disables the semantic fallback
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 768
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the feature cache (optional)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type PipelineConfig struct {
	SimilarityThreshold float64
	ConfidenceThreshold float64
	DHashSize           int
	DHashThreshold      float64
	BatchSize           int
	BatchDelay          time.Duration
	FallbackSampleSize  int
	SemanticThreshold   float64
	ImagePurposes       []string // URL preference order, e.g. "web,thumbnail,original"
}

type FetchConfig struct {
	RateLimit float64 // requests per second, 0 disables limiting
	Timeout   time.Duration
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type VocabularyConfig struct {
	Terms []string `yaml:"terms"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float. Invalid values give the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a Go duration ("200ms", "1m"). Invalid or negative values give the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}
	var vocabulary VocabularyConfig
	if err := yaml.Unmarshal(vocabularyYAML, &vocabulary); err != nil {
		panic("failed to unmarshal embedded vocabulary.yaml: " + err.Error())
	}

	return &Config{
		PhotoPrism: PhotoPrismConfig{
			URL:          os.Getenv("PHOTOPRISM_URL"),
			Username:     os.Getenv("PHOTOPRISM_USERNAME"),
			Password:     os.Getenv("PHOTOPRISM_PASSWORD"),
			PasswordFile: os.Getenv("PHOTOPRISM_PASSWORD_FILE"),
			Domain:       os.Getenv("PHOTOPRISM_DOMAIN"),
			DatabaseURL:  os.Getenv("PHOTOPRISM_DATABASE_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		Caption: CaptionConfig{
			Provider: strings.ToLower(os.Getenv("CAPTION_PROVIDER")),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 768),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold: envFloat("PIPELINE_SIMILARITY_THRESHOLD", constants.DefaultVisualThreshold),
			ConfidenceThreshold: envFloat("PIPELINE_CONFIDENCE_THRESHOLD", constants.DefaultConfidenceThreshold),
			DHashSize:           envInt("PIPELINE_DHASH_SIZE", constants.DefaultDHashSize),
			DHashThreshold:      envFloat("PIPELINE_DHASH_THRESHOLD", constants.DefaultDHashThreshold),
			BatchSize:           envInt("PIPELINE_BATCH_SIZE", constants.DefaultBatchSize),
			BatchDelay:          envDuration("PIPELINE_BATCH_DELAY", constants.DefaultBatchDelay),
			FallbackSampleSize:  envInt("PIPELINE_FALLBACK_SAMPLE", constants.DefaultFallbackSampleSize),
			SemanticThreshold:   envFloat("PIPELINE_SEMANTIC_THRESHOLD", constants.DefaultSemanticThreshold),
			ImagePurposes:       envList("PIPELINE_IMAGE_PURPOSE", nil),
		},
		Fetch: FetchConfig{
			RateLimit: envFloat("FETCH_RATE_LIMIT", constants.DefaultFetchRateLimit),
			Timeout:   envDuration("FETCH_TIMEOUT", constants.DefaultFetchTimeout),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", []string{"*"}),
		},
		LogLevel:   envString("LOG_LEVEL", "info"),
		Prices:     prices,
		Vocabulary: vocabulary,
	}
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
