package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	openaiadapter "github.com/snipwise/snipwise/internal/adapter/openai"
	"github.com/snipwise/snipwise/internal/relay"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/snipwise.ini"
	dotenvFile       = ".env"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the daemon.
type Config struct {
	Environment string
	HTTPAddress string

	LogLevel    string
	LogFormat   string
	LogFile     string
	LogMaxBytes int64

	// Upstream provider. The credential is picked by Provider.
	Provider        string
	GroqAPIKey      string
	OpenAIAPIKey    string
	UpstreamBaseURL string
	OpenAIOrg       string
	Model           string
	UpstreamTimeout time.Duration
	UpstreamRetries int

	// Explain function
	UseMockExplain    bool
	ExplainPromptFile string
	Prompt            PromptProfile

	// ai-generate function
	GenerateProvider string
	GenerateModel    string

	// Auth
	AuthSecret         string
	AnonKey            string
	TokenTTL           time.Duration
	OTPTTL             time.Duration
	AuthEchoCode       bool
	FunctionsVerifyJWT bool

	// Storage: DatabaseURL (postgres) wins over the sqlite paths.
	DatabaseURL  string
	SnippetsPath string
	IdentityPath string

	// Function rate limiting
	RateLimitWindow time.Duration
	RateLimitMax    int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	ShutdownTimeout time.Duration
}

// PromptProfile overrides the explain instructions. Loaded from YAML.
type PromptProfile struct {
	SystemPrompt string   `yaml:"system_prompt"`
	UserPrefix   string   `yaml:"user_prefix"`
	Model        string   `yaml:"model"`
	Temperature  *float64 `yaml:"temperature"`
}

// ClientConfig describes runtime options for the CLI.
type ClientConfig struct {
	Environment string
	BaseURL     string
	AnonKey     string
	SessionPath string
	LogLevel    string
}

// Load reads .env, the active environment and its snipwise.ini, then applies
// environment variable overrides.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	merged, env, err := loadMerged(root)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: env,
		HTTPAddress: firstNonEmpty(os.Getenv("SNIPWISE_HTTP_ADDRESS"), merged["http_address"], ":8080"),
		LogLevel:    firstNonEmpty(os.Getenv("SNIPWISE_LOG_LEVEL"), merged["log_level"], "info"),
		LogFormat:   firstNonEmpty(os.Getenv("SNIPWISE_LOG_FORMAT"), merged["log_format"], "text"),
		LogFile:     firstNonEmpty(os.Getenv("SNIPWISE_LOG_FILE"), merged["log_file"]),
		LogMaxBytes: int64(parseOptionalInt(merged["log_max_bytes"], 100<<20)),

		Provider:        strings.ToLower(firstNonEmpty(os.Getenv("PROVIDER"), os.Getenv("SNIPWISE_PROVIDER"), merged["provider"], openaiadapter.ProviderGroq)),
		GroqAPIKey:      firstNonEmpty(os.Getenv("GROQ_API_KEY"), merged["groq_api_key"]),
		OpenAIAPIKey:    firstNonEmpty(os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"]),
		UpstreamBaseURL: firstNonEmpty(os.Getenv("SNIPWISE_UPSTREAM_BASE_URL"), merged["upstream_base_url"]),
		OpenAIOrg:       firstNonEmpty(os.Getenv("SNIPWISE_OPENAI_ORG"), merged["openai_org"]),
		Model:           firstNonEmpty(os.Getenv("SNIPWISE_MODEL"), merged["model"]),
		UpstreamRetries: parseOptionalInt(firstNonEmpty(os.Getenv("SNIPWISE_UPSTREAM_RETRIES"), merged["upstream_retries"]), 0),

		UseMockExplain:    parseBool(firstNonEmpty(os.Getenv("USE_MOCK_EXPLAIN"), merged["use_mock_explain"])),
		ExplainPromptFile: firstNonEmpty(os.Getenv("SNIPWISE_EXPLAIN_PROMPT_FILE"), merged["explain_prompt_file"]),

		GenerateProvider: strings.ToLower(firstNonEmpty(os.Getenv("SNIPWISE_GENERATE_PROVIDER"), merged["generate_provider"], openaiadapter.ProviderOpenAI)),
		GenerateModel:    firstNonEmpty(os.Getenv("SNIPWISE_GENERATE_MODEL"), merged["generate_model"]),

		AuthSecret:         firstNonEmpty(os.Getenv("SNIPWISE_AUTH_SECRET"), merged["auth_secret"], "snipwise-dev-secret"),
		AnonKey:            firstNonEmpty(os.Getenv("SNIPWISE_ANON_KEY"), merged["anon_key"]),
		AuthEchoCode:       parseOptionalBool(firstNonEmpty(os.Getenv("SNIPWISE_AUTH_ECHO_CODE"), merged["auth_echo_code"]), env == defaultEnv),
		FunctionsVerifyJWT: parseOptionalBool(firstNonEmpty(os.Getenv("SNIPWISE_FUNCTIONS_VERIFY_JWT"), merged["functions_verify_jwt"]), true),

		DatabaseURL:  firstNonEmpty(os.Getenv("SNIPWISE_DATABASE_URL"), merged["database_url"]),
		SnippetsPath: firstNonEmpty(os.Getenv("SNIPWISE_SNIPPETS_PATH"), merged["snippets_path"], DefaultDataPath("snippets.db")),
		IdentityPath: firstNonEmpty(os.Getenv("SNIPWISE_IDENTITY_PATH"), merged["identity_path"], DefaultDataPath("identity.db")),

		RateLimitMax:  parseOptionalInt(firstNonEmpty(os.Getenv("RATE_LIMIT_MAX"), merged["rate_limit_max"]), 20),
		RedisAddr:     firstNonEmpty(os.Getenv("SNIPWISE_REDIS_ADDR"), merged["redis_addr"]),
		RedisPassword: firstNonEmpty(os.Getenv("SNIPWISE_REDIS_PASSWORD"), merged["redis_password"]),
		RedisDB:       parseOptionalInt(firstNonEmpty(os.Getenv("SNIPWISE_REDIS_DB"), merged["redis_db"]), 0),
	}
	if cfg.UpstreamRetries < 0 {
		cfg.UpstreamRetries = 0
	}

	windowSeconds := parseOptionalInt(firstNonEmpty(os.Getenv("RATE_LIMIT_WINDOW"), merged["rate_limit_window"]), 60)
	if windowSeconds <= 0 {
		return Config{}, fmt.Errorf("invalid rate_limit_window %d: must be positive", windowSeconds)
	}
	cfg.RateLimitWindow = time.Duration(windowSeconds) * time.Second

	durations := []struct {
		key, env string
		dst      *time.Duration
		fallback time.Duration
	}{
		{"upstream_timeout", "SNIPWISE_UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout, 60 * time.Second},
		{"token_ttl", "SNIPWISE_TOKEN_TTL", &cfg.TokenTTL, time.Hour},
		{"otp_ttl", "SNIPWISE_OTP_TTL", &cfg.OTPTTL, 10 * time.Minute},
		{"shutdown_timeout", "SNIPWISE_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		v := firstNonEmpty(os.Getenv(d.env), merged[d.key])
		if v == "" {
			*d.dst = d.fallback
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = dur
	}

	switch cfg.Provider {
	case openaiadapter.ProviderGroq, openaiadapter.ProviderOpenAI, "mock":
	default:
		return Config{}, fmt.Errorf("unknown provider %q (want groq, openai or mock)", cfg.Provider)
	}

	if cfg.ExplainPromptFile != "" {
		path := cfg.ExplainPromptFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		profile, err := LoadPromptProfile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Prompt = profile
	}
	if v := firstNonEmpty(os.Getenv("SNIPWISE_TEMPERATURE"), merged["temperature"]); v != "" && cfg.Prompt.Temperature == nil {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid temperature %q: %w", v, err)
		}
		cfg.Prompt.Temperature = &t
	}
	return cfg, nil
}

// LoadClient reads the CLI configuration from the same files.
func LoadClient(root string) (ClientConfig, error) {
	if root == "" {
		root = "."
	}
	merged, env, err := loadMerged(root)
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		Environment: env,
		BaseURL:     firstNonEmpty(os.Getenv("SNIPWISE_URL"), merged["base_url"], DefaultBaseURL(env)),
		AnonKey:     firstNonEmpty(os.Getenv("SNIPWISE_ANON_KEY"), merged["anon_key"]),
		SessionPath: firstNonEmpty(os.Getenv("SNIPWISE_SESSION_PATH"), merged["session_path"], DefaultDataPath("session.json")),
		LogLevel:    firstNonEmpty(os.Getenv("SNIPWISE_LOG_LEVEL"), merged["cli_log_level"], "warn"),
	}, nil
}

// UpstreamAPIKey returns the credential for the explain provider, empty when unset.
func (c Config) UpstreamAPIKey() string {
	return c.apiKeyFor(c.Provider)
}

// GenerateAPIKey returns the credential for the ai-generate provider.
func (c Config) GenerateAPIKey() string {
	return c.apiKeyFor(c.GenerateProvider)
}

func (c Config) apiKeyFor(provider string) string {
	switch provider {
	case openaiadapter.ProviderOpenAI:
		return c.OpenAIAPIKey
	case openaiadapter.ProviderGroq:
		return c.GroqAPIKey
	default:
		return ""
	}
}

// Relay derives the explain relay configuration.
func (c Config) Relay() relay.Config {
	temperature := relay.DefaultTemperature
	if c.Prompt.Temperature != nil {
		temperature = *c.Prompt.Temperature
	}
	return relay.Config{
		ForceMock:    c.UseMockExplain,
		Model:        firstNonEmpty(c.Prompt.Model, c.Model, openaiadapter.DefaultModel(c.Provider)),
		Temperature:  temperature,
		SystemPrompt: c.Prompt.SystemPrompt,
		UserPrefix:   c.Prompt.UserPrefix,
	}
}

// LoadPromptProfile parses a YAML prompt profile.
func LoadPromptProfile(path string) (PromptProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PromptProfile{}, fmt.Errorf("read prompt profile: %w", err)
	}
	var p PromptProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return PromptProfile{}, fmt.Errorf("parse prompt profile %s: %w", path, err)
	}
	return p, nil
}

func loadMerged(root string) (map[string]string, string, error) {
	// .env never overrides variables already present in the process environment
	if err := godotenv.Load(filepath.Join(root, dotenvFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load %s: %w", dotenvFile, err)
	}
	s, err := loadSettings(root)
	if err != nil {
		return nil, "", err
	}
	if v := strings.TrimSpace(os.Getenv("SNIPWISE_ENV")); v != "" {
		s.Environment = v
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return nil, "", err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	return merged, s.Environment, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultDataPath returns name under ~/.snipwise, or name itself when there is no home directory.
func DefaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".snipwise", name)
}

// DefaultBaseURL returns the daemon URL the CLI talks to for the given environment.
func DefaultBaseURL(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "live", "prod", "production":
		return "https://api.snipwise.dev"
	default:
		return "http://localhost:8080"
	}
}
