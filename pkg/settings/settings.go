package settings

import (
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type OpenAISettings struct {
	APIKey       string        `mapstructure:"api-key" yaml:"api_key,omitempty"`
	BaseURL      string        `mapstructure:"base-url" yaml:"base_url,omitempty"`
	Model        string        `mapstructure:"model" yaml:"model,omitempty"`
	SummaryModel string        `mapstructure:"summary-model" yaml:"summary_model,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type FirecrawlSettings struct {
	APIKey  string `mapstructure:"api-key" yaml:"api_key,omitempty"`
	BaseURL string `mapstructure:"base-url" yaml:"base_url,omitempty"`
}

type AgentSettings struct {
	Plan              bool `mapstructure:"plan" yaml:"plan,omitempty"`
	MaxTurns          int  `mapstructure:"max-turns" yaml:"max_turns,omitempty"`
	FirstToolCallOnly bool `mapstructure:"first-tool-call-only" yaml:"first_tool_call_only,omitempty"`
	AbortOnToolError  bool `mapstructure:"abort-on-tool-error" yaml:"abort_on_tool_error,omitempty"`
	ValidateArguments bool `mapstructure:"validate-arguments" yaml:"validate_arguments,omitempty"`
}

type MemorySettings struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	MaxMessages int  `mapstructure:"max-messages" yaml:"max_messages,omitempty"`
	MaxTokens   int  `mapstructure:"max-tokens" yaml:"max_tokens,omitempty"`
	KeepLast    int  `mapstructure:"keep-last" yaml:"keep_last,omitempty"`
}

// Settings is the configuration of a sleuth run. It is built once at startup
// and handed to the components that need it.
type Settings struct {
	OpenAI     OpenAISettings    `mapstructure:"openai" yaml:"openai"`
	Firecrawl  FirecrawlSettings `mapstructure:"firecrawl" yaml:"firecrawl"`
	Agent      AgentSettings     `mapstructure:"agent" yaml:"agent"`
	Memory     MemorySettings    `mapstructure:"memory" yaml:"memory"`
	PromptsDir string            `mapstructure:"prompts-dir" yaml:"prompts_dir,omitempty"`
	ToolsDir   string            `mapstructure:"tools-dir" yaml:"tools_dir,omitempty"`

	// DataPointsFile lists the data points to look for, see datapoints.LoadFile.
	DataPointsFile string `mapstructure:"data-points" yaml:"data_points,omitempty"`
}

const (
	DefaultModel            = "gpt-4-turbo-2024-04-09"
	DefaultSummaryModel     = "gpt-3.5-turbo"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"
)

func NewSettings() *Settings {
	return &Settings{
		OpenAI: OpenAISettings{
			BaseURL:      DefaultOpenAIBaseURL,
			Model:        DefaultModel,
			SummaryModel: DefaultSummaryModel,
			Timeout:      120 * time.Second,
		},
		Firecrawl: FirecrawlSettings{
			BaseURL: DefaultFirecrawlBaseURL,
		},
		Agent: AgentSettings{
			MaxTurns: 50,
		},
		Memory: MemorySettings{
			Enabled:     true,
			MaxMessages: 24,
			MaxTokens:   10000,
			KeepLast:    12,
		},
	}
}

// SetDefaults registers the defaults with v so that environment variables
// are picked up for every key by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	d := NewSettings()
	v.SetDefault("openai.api-key", "")
	v.SetDefault("openai.base-url", d.OpenAI.BaseURL)
	v.SetDefault("openai.model", d.OpenAI.Model)
	v.SetDefault("openai.summary-model", d.OpenAI.SummaryModel)
	v.SetDefault("openai.timeout", d.OpenAI.Timeout)
	v.SetDefault("firecrawl.api-key", "")
	v.SetDefault("firecrawl.base-url", d.Firecrawl.BaseURL)
	v.SetDefault("agent.plan", d.Agent.Plan)
	v.SetDefault("agent.max-turns", d.Agent.MaxTurns)
	v.SetDefault("agent.first-tool-call-only", d.Agent.FirstToolCallOnly)
	v.SetDefault("agent.abort-on-tool-error", d.Agent.AbortOnToolError)
	v.SetDefault("agent.validate-arguments", d.Agent.ValidateArguments)
	v.SetDefault("memory.enabled", d.Memory.Enabled)
	v.SetDefault("memory.max-messages", d.Memory.MaxMessages)
	v.SetDefault("memory.max-tokens", d.Memory.MaxTokens)
	v.SetDefault("memory.keep-last", d.Memory.KeepLast)
	v.SetDefault("prompts-dir", "")
	v.SetDefault("tools-dir", "")
	v.SetDefault("data-points", "")

	// the conventional provider variables work without the SLEUTH_ prefix
	_ = v.BindEnv("openai.api-key", "SLEUTH_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("firecrawl.api-key", "SLEUTH_FIRECRAWL_API_KEY", "FIRECRAWL_API_KEY")
}

// FromViper decodes the settings from v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	return s, nil
}

// Validate reports configuration errors before anything is run.
func (s *Settings) Validate() error {
	if s.OpenAI.APIKey == "" {
		return errors.New("no OpenAI API key configured (set OPENAI_API_KEY or openai.api-key)")
	}
	if s.OpenAI.Model == "" {
		return errors.New("no model configured")
	}
	if s.Agent.MaxTurns <= 0 {
		return errors.Errorf("agent.max-turns must be positive, got %d", s.Agent.MaxTurns)
	}
	if s.Memory.Enabled {
		if s.Memory.KeepLast <= 0 {
			return errors.Errorf("memory.keep-last must be positive, got %d", s.Memory.KeepLast)
		}
		if s.Memory.MaxMessages < s.Memory.KeepLast {
			return errors.Errorf("memory.max-messages (%d) must not be smaller than memory.keep-last (%d)",
				s.Memory.MaxMessages, s.Memory.KeepLast)
		}
		if s.OpenAI.SummaryModel == "" {
			return errors.New("memory is enabled but no summary model is configured")
		}
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}
