package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/yanbot/internal/config"
	"github.com/yanbot/internal/tasks"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are missing
	Present  map[string]string // Settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
	Backend  string            // Update queue backend
}

// CheckRequiredConfig reports required and optional settings of cfg
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
		Backend:  cfg.Queue.Backend,
	}

	type setting struct {
		key    string
		value  string
		secret bool
	}
	required := []setting{
		{"server.base_url", cfg.Server.BaseURL, false},
		{"secrets.callback", cfg.Secrets.Callback, true},
		{"secrets.transport", cfg.Secrets.Transport, true},
		{"telegram.token", cfg.Telegram.Token, true},
		{"llm.api_key", cfg.LLM.APIKey, true},
	}
	if cfg.Queue.Backend == "river" {
		required = append(required, setting{"database.url", cfg.Database.URL, true})
	}

	for _, r := range required {
		switch {
		case strings.TrimSpace(r.value) == "":
			result.Missing = append(result.Missing, r.key)
		case r.secret:
			result.Present[r.key] = maskSecret(r.value)
		default:
			result.Present[r.key] = r.value
		}
	}

	// Optional but good to check
	if cfg.Database.URL != "" {
		result.Present["database.url"] = maskSecret(cfg.Database.URL)
	} else {
		result.Warnings = append(result.Warnings, "database.url not set: users and jobs live in memory and are lost on restart")
	}
	if cfg.Redis.Addr != "" {
		result.Present["redis.addr"] = cfg.Redis.Addr
	} else if cfg.Queue.Backend == "river" {
		result.Warnings = append(result.Warnings, "redis.addr not set: onboarding sessions are not shared between replicas")
	}

	for _, k := range tasks.All() {
		if cfg.Dispatch.Endpoints[k.String()] != "" {
			continue
		}
		affected := "/" + k.Spec().Command + " requests"
		if k.Spec().Command == "" {
			affected = "onboarding analyses"
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("dispatch.endpoints.%s not set: %s will fail", k, affected))
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(result *ConfigCheckResult) {
	fmt.Println("=== Configuration Check ===")
	fmt.Printf("Queue backend: %s\n", result.Backend)
	fmt.Println("")

	if len(result.Missing) > 0 {
		fmt.Println("❌ Missing required settings:")
		for _, v := range result.Missing {
			fmt.Printf("   - %s\n", v)
		}
		fmt.Println("")
	}

	if len(result.Present) > 0 {
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("✓ Configured settings:")
		for _, k := range keys {
			fmt.Printf("   - %s = %s\n", k, result.Present[k])
		}
		fmt.Println("")
	}

	for _, w := range result.Warnings {
		fmt.Printf("⚠ Warning: %s\n", w)
	}

	if len(result.Missing) == 0 {
		fmt.Println("✓ All required configuration is present")
	}

	fmt.Println("============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
