package httpapi

import (
	"net/http"
	"os/exec"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	AgentMode  string            `json:"agent_mode"`
	ScrapeMode string            `json:"scrape_mode"`
	Checks     []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	agentMode, agentChecks := s.agentChecks()
	scrapeMode, scrapeChecks := s.scrapeChecks()

	checks := make([]onboardingCheck, 0, 6)
	checks = append(checks, agentChecks...)
	checks = append(checks, scrapeChecks...)
	checks = append(checks, onboardingCheck{
		ID:     "transcript_store",
		Status: "warn",
		Label:  "Transcript persistence",
		Detail: "in-memory only",
	})

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		AgentMode:  agentMode,
		ScrapeMode: scrapeMode,
		Checks:     checks,
	})
}

// agentChecks resolves "auto" the same way the runtime factory does.
func (s *Server) agentChecks() (string, []onboardingCheck) {
	mode := strings.ToLower(strings.TrimSpace(s.cfg.AgentMode))
	if mode == "" {
		mode = "auto"
	}
	hasKey := strings.TrimSpace(s.cfg.OpenAIAPIKey) != ""
	hasURL := strings.TrimSpace(s.cfg.AgentHTTPURL) != ""
	if mode == "auto" {
		switch {
		case hasKey:
			mode = "openai"
		case hasURL:
			mode = "http"
		default:
			mode = "mock"
		}
	}

	switch mode {
	case "openai":
		return mode, []onboardingCheck{{
			ID:     "agent_openai",
			Status: "ok",
			Label:  "Agent runtime",
			Detail: "OpenAI (" + s.cfg.AgentModel + ")",
		}}
	case "http":
		return mode, []onboardingCheck{{
			ID:     "agent_http",
			Status: "ok",
			Label:  "Agent runtime",
			Detail: s.cfg.AgentHTTPURL,
		}}
	default:
		return mode, []onboardingCheck{{
			ID:     "agent_mock",
			Status: "warn",
			Label:  "Agent runtime is mock",
			Detail: "Personas reply with canned text.",
			Fix:    "Set OPENAI_API_KEY or AGENT_HTTP_URL.",
		}}
	}
}

func (s *Server) scrapeChecks() (string, []onboardingCheck) {
	mode := strings.ToLower(strings.TrimSpace(s.cfg.ScrapeMode))
	if mode == "" {
		mode = "firecrawl"
	}

	switch mode {
	case "firecrawl":
		if strings.TrimSpace(s.cfg.FirecrawlAPIKey) == "" {
			return mode, []onboardingCheck{{
				ID:     "firecrawl_key",
				Status: "error",
				Label:  "Firecrawl API key",
				Detail: "FIRECRAWL_API_KEY is not set",
				Fix:    "Set FIRECRAWL_API_KEY or switch to SCRAPE_MODE=browser.",
			}}
		}
		return mode, []onboardingCheck{{
			ID:     "firecrawl_key",
			Status: "ok",
			Label:  "Firecrawl API key",
			Detail: "present",
		}}
	case "browser":
		return mode, []onboardingCheck{chromeCheck(s.cfg.ChromePath)}
	default:
		return mode, []onboardingCheck{{
			ID:     "scrape_mock",
			Status: "warn",
			Label:  "Web context is mock",
			Detail: "Topic background is synthesized.",
		}}
	}
}

func chromeCheck(path string) onboardingCheck {
	candidates := []string{strings.TrimSpace(path)}
	if candidates[0] == "" {
		candidates = []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return onboardingCheck{
				ID:     "chrome",
				Status: "ok",
				Label:  "Headless Chrome",
				Detail: p,
			}
		}
	}
	return onboardingCheck{
		ID:     "chrome",
		Status: "error",
		Label:  "Headless Chrome",
		Detail: "no Chrome binary found",
		Fix:    "Install Chrome or set CHROME_PATH.",
	}
}
