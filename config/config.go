package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser   BrowserConfig
	Agent     AgentConfig
	Log       LogConfig
	Telemetry TelemetryConfig

	// EventTimeouts holds per-event-class timeout overrides read from
	// TIMEOUT_<EventName> environment variables. Read once at startup.
	EventTimeouts map[string]time.Duration
}

// BrowserConfig controls the CDP-backed browser session.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL applied to the browser instance.
	Proxy string

	// DownloadsDir is where the download watchdog saves files.
	DownloadsDir string // default: "./downloads"

	// Stealth injects go-rod/stealth's evasion script on every new page.
	Stealth bool // default: false

	// StorageStatePath, if non-empty, is where the Storage Watchdog
	// persists cookies + origin storage across runs (§4.5).
	StorageStatePath string

	// HARPath, if non-empty, is where the HAR Recording Watchdog writes
	// a HAR 1.2 JSON capture of HTTPS traffic when the session stops.
	HARPath string

	// NetworkTimeout bounds how long a pending network request may stay
	// unresolved before the Crash Watchdog reports BrowserError{NetworkTimeout}.
	NetworkTimeout time.Duration // default: 30s

	// UnresponsiveThreshold is how many consecutive document.readyState
	// evaluation failures the Crash Watchdog tolerates before reporting
	// TargetUnresponsive.
	UnresponsiveThreshold int // default: 3
}

// AgentConfig controls the step loop.
type AgentConfig struct {
	// MaxSteps bounds the number of step-loop iterations per run.
	MaxSteps int // default: 100

	// MaxActionsPerStep bounds the action list the model may return in one step.
	MaxActionsPerStep int // default: 10

	// MaxFailures is the consecutive-failure budget before the run fails.
	MaxFailures int // default: 3

	// LLMTimeout bounds a single model call.
	LLMTimeout time.Duration // default: 60s

	// LLMMaxRetries bounds retries of a transient model error.
	LLMMaxRetries int // default: 3

	// LoopDetectionWindow is the trailing-action window checked for repetition; 0 disables.
	LoopDetectionWindow int // default: 4

	// FinalResponseAfterFail asks the model for a best-effort summary when the step budget runs out without a done action.
	FinalResponseAfterFail bool // default: true

	// IncludeScreenshot attaches a screenshot image part to step messages.
	IncludeScreenshot bool // default: true
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// TelemetryConfig controls the opt-out telemetry capture.
type TelemetryConfig struct {
	// Enabled toggles local agent_event capture.
	Enabled bool // default: true

	// DebugAddr, if non-empty, starts the loopback-only introspection server.
	DebugAddr string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:     envBoolOr("AGENTRT_HEADLESS", true),
			NoSandbox:    envBoolOr("AGENTRT_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("AGENTRT_BROWSER_BIN"),
			Proxy:        os.Getenv("AGENTRT_PROXY"),
			DownloadsDir:     envOr("AGENTRT_DOWNLOADS_DIR", "./downloads"),
			Stealth:          envBoolOr("AGENTRT_STEALTH", false),
			StorageStatePath:      os.Getenv("AGENTRT_STORAGE_STATE_PATH"),
			HARPath:               os.Getenv("AGENTRT_HAR_PATH"),
			NetworkTimeout:        envDurationOr("AGENTRT_NETWORK_TIMEOUT", 30*time.Second),
			UnresponsiveThreshold: envIntOr("AGENTRT_UNRESPONSIVE_THRESHOLD", 3),
		},
		Agent: AgentConfig{
			MaxSteps:               envIntOr("AGENTRT_MAX_STEPS", 100),
			MaxActionsPerStep:      envIntOr("AGENTRT_MAX_ACTIONS_PER_STEP", 10),
			MaxFailures:            envIntOr("AGENTRT_MAX_FAILURES", 3),
			LLMTimeout:             envDurationOr("AGENTRT_LLM_TIMEOUT", 60*time.Second),
			LLMMaxRetries:          envIntOr("AGENTRT_LLM_MAX_RETRIES", 3),
			LoopDetectionWindow:    envIntOr("AGENTRT_LOOP_WINDOW", 4),
			FinalResponseAfterFail: envBoolOr("AGENTRT_FINAL_RESPONSE_AFTER_FAIL", true),
			IncludeScreenshot:      envBoolOr("AGENTRT_INCLUDE_SCREENSHOT", true),
		},
		Log: LogConfig{
			Level:  envOr("AGENTRT_LOG_LEVEL", "info"),
			Format: envOr("AGENTRT_LOG_FORMAT", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:   telemetryEnabled(),
			DebugAddr: os.Getenv("AGENTRT_DEBUG_ADDR"),
		},
		EventTimeouts: loadEventTimeouts(),
	}
}

// telemetryEnabled honors both AGENTRT_TELEMETRY and the upstream
// ANONYMIZED_TELEMETRY=false convention used by comparable agent runtimes.
func telemetryEnabled() bool {
	if v := os.Getenv("ANONYMIZED_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return envBoolOr("AGENTRT_TELEMETRY", true)
}

// loadEventTimeouts scans the environment for TIMEOUT_<EventName> entries,
// where the value is a number of seconds (fractional allowed).
func loadEventTimeouts() map[string]time.Duration {
	out := make(map[string]time.Duration)
	const prefix = "TIMEOUT_"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		name := strings.TrimPrefix(k, prefix)
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			out[name] = time.Duration(secs * float64(time.Second))
		}
	}
	return out
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
