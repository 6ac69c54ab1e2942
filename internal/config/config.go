package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meridianbank/agentcore/internal/agenterr"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/workflow"
)

// RuntimeConfig is the Unified Runtime's (C7) process-start configuration,
// loaded from the environment per §6's Configuration table. Every field
// here has a direct environment variable; there is no config file for the
// runtime itself, only for the persona and workflow it loads.
type RuntimeConfig struct {
	Mode          model.Mode
	AgentID       string
	AgentPort     int
	WorkflowFile  string
	PersonaFile   string
	GatewayURL    string
	LocalToolsURL string
	BankingURL    string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	AutoTriggerEnabled bool
	MaxSessionErrors   int
	ErrorWindow        time.Duration
	LogLevel           string

	// Watch enables fsnotify-based hot-reload of the workflow/persona
	// files (a supplemented feature, off by default; see SPEC_FULL.md).
	Watch bool
}

// FromEnv loads a RuntimeConfig from the process environment, applying
// the §6 defaults for any variable left unset.
func FromEnv() (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{
		Mode:               model.Mode(getenv("MODE", "text")),
		AgentID:            os.Getenv("AGENT_ID"),
		AgentPort:          getenvInt("AGENT_PORT", 8080),
		WorkflowFile:       os.Getenv("WORKFLOW_FILE"),
		PersonaFile:        os.Getenv("PERSONA_FILE"),
		GatewayURL:         os.Getenv("GATEWAY_URL"),
		LocalToolsURL:      os.Getenv("LOCAL_TOOLS_URL"),
		BankingURL:         os.Getenv("BANKING_URL"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMBaseURL:         os.Getenv("LLM_BASE_URL"),
		LLMModel:           os.Getenv("LLM_MODEL"),
		AutoTriggerEnabled: getenvBool("AUTO_TRIGGER_ENABLED", true),
		MaxSessionErrors:   getenvInt("MAX_SESSION_ERRORS", 5),
		ErrorWindow:        time.Duration(getenvInt("ERROR_WINDOW_MS", 10000)) * time.Millisecond,
		LogLevel:           getenv("LOG_LEVEL", "info"),
		Watch:              getenvBool("WATCH", false),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on the startup-sequence preconditions in §4.7 step 1.
func (c *RuntimeConfig) Validate() error {
	switch c.Mode {
	case model.ModeVoice, model.ModeText, model.ModeHybrid:
	default:
		return agenterr.Config(fmt.Sprintf("MODE must be one of voice|text|hybrid, got %q", c.Mode), nil)
	}
	if strings.TrimSpace(c.AgentID) == "" {
		return agenterr.Config("AGENT_ID is required", nil)
	}
	if strings.TrimSpace(c.WorkflowFile) == "" {
		return agenterr.Config("WORKFLOW_FILE is required", nil)
	}
	if strings.TrimSpace(c.PersonaFile) == "" {
		return agenterr.Config("PERSONA_FILE is required", nil)
	}
	if c.AgentPort <= 0 || c.AgentPort > 65535 {
		return agenterr.Config(fmt.Sprintf("AGENT_PORT out of range: %d", c.AgentPort), nil)
	}
	if c.MaxSessionErrors <= 0 {
		return agenterr.Config("MAX_SESSION_ERRORS must be positive", nil)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// LoadWorkflow reads and validates the workflow graph at path (YAML or
// JSON5, per extension), per §4.1's load() contract.
func LoadWorkflow(path string) (*workflow.Workflow, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, agenterr.Config("failed to read workflow file", err)
	}
	var def workflow.Definition
	if err := decodeInto(raw, &def); err != nil {
		return nil, agenterr.Config("failed to parse workflow file", err)
	}
	w, err := workflow.Load(def)
	if err != nil {
		return nil, agenterr.Config("workflow validation failed", err)
	}
	return w, nil
}

// LoadPersona reads the static persona configuration at path.
func LoadPersona(path string) (*model.Persona, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, agenterr.Config("failed to read persona file", err)
	}
	var p model.Persona
	if err := decodeInto(raw, &p); err != nil {
		return nil, agenterr.Config("failed to parse persona file", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, agenterr.Config("persona.id is required", nil)
	}
	return &p, nil
}
