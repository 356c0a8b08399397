package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Show the effective configuration, or set a value in the config file.

Examples:
  lin config
  lin config path
  lin config set max_threads 4
  lin config set s2_api_key YOUR-KEY`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.Path()
		}
		if humanOutput {
			fmt.Println(path)
			return nil
		}
		return outputJSON(struct {
			Path string `json:"path"`
		}{path})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

// ConfigResponse is the JSON output of the config command. The API key
// is reported as present or absent, never echoed.
type ConfigResponse struct {
	Path               string  `json:"path"`
	S2APIKeySet        bool    `json:"s2ApiKeySet"`
	Model              string  `json:"model,omitempty"`
	Criteria           string  `json:"criteria,omitempty"`
	APIDelaySeconds    float64 `json:"apiDelaySeconds,omitempty"`
	MaxThreads         int     `json:"maxThreads"`
	MaxPapersPerThread int     `json:"maxPapersPerThread"`
	MaxPerYear         int     `json:"maxPerYear"`
	BroadSearch        bool    `json:"broadSearch"`
	PoolEnabled        bool    `json:"poolEnabled"`
	CacheTTLDays       int     `json:"cacheTtlDays"`
	DataDir            string  `json:"dataDir"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	ecfg := cfg.ExploreConfig()

	path := configPath
	if path == "" {
		path = config.Path()
	}
	resp := ConfigResponse{
		Path:               path,
		S2APIKeySet:        cfg.S2APIKey != "",
		Model:              cfg.Model,
		Criteria:           cfg.Criteria,
		APIDelaySeconds:    cfg.APIDelaySeconds,
		MaxThreads:         ecfg.MaxThreads,
		MaxPapersPerThread: ecfg.MaxPapersPerThread,
		MaxPerYear:         ecfg.MaxPerYear,
		BroadSearch:        ecfg.BroadSearch,
		PoolEnabled:        ecfg.PoolEnabled,
		CacheTTLDays:       int(cfg.CacheTTL().Hours() / 24),
		DataDir:            config.DataPath(),
	}

	if !humanOutput {
		return outputJSON(resp)
	}
	fmt.Printf("Config: %s\n", resp.Path)
	fmt.Printf("  s2_api_key: %s\n", presence(resp.S2APIKeySet))
	if resp.Model != "" {
		fmt.Printf("  model: %s\n", resp.Model)
	}
	if resp.Criteria != "" {
		fmt.Printf("  criteria: %s\n", truncateString(resp.Criteria, TitleMaxLen))
	}
	if resp.APIDelaySeconds > 0 {
		fmt.Printf("  api_delay_seconds: %g\n", resp.APIDelaySeconds)
	}
	fmt.Printf("  max_threads: %d\n", resp.MaxThreads)
	fmt.Printf("  max_papers_per_thread: %d\n", resp.MaxPapersPerThread)
	fmt.Printf("  max_per_year: %d\n", resp.MaxPerYear)
	fmt.Printf("  broad_search: %t\n", resp.BroadSearch)
	fmt.Printf("  pool_enabled: %t\n", resp.PoolEnabled)
	fmt.Printf("  cache_ttl_days: %d\n", resp.CacheTTLDays)
	fmt.Printf("Data: %s\n", resp.DataDir)
	return nil
}

func presence(set bool) string {
	if set {
		return "(set)"
	}
	return "(not set)"
}

// UpdateResponse is the response for config set.
type UpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	cfg := mustLoadConfig()

	if err := applyConfigValue(cfg, key, value); err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	path := configPath
	if path == "" {
		path = config.Path()
	}
	if err := cfg.Save(path); err != nil {
		exitWithError(ExitConfigError, "saving config: %v", err)
	}

	if humanOutput {
		fmt.Printf("Set %s\n", key)
		return nil
	}
	return outputJSON(UpdateResponse{Status: "updated", Key: key, Value: value})
}

func applyConfigValue(cfg *config.Config, key, value string) error {
	intVal := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s needs an integer value: %q", key, value)
		}
		return n, nil
	}
	boolVal := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s needs a boolean value: %q", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "s2_api_key":
		cfg.S2APIKey = value
	case "model":
		cfg.Model = value
	case "criteria":
		cfg.Criteria = value
	case "api_delay_seconds":
		var f float64
		if f, err = strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s needs a numeric value: %q", key, value)
		}
		cfg.APIDelaySeconds = f
	case "max_threads":
		cfg.MaxThreads, err = intVal()
	case "max_papers_per_thread":
		cfg.MaxPapersPerThread, err = intVal()
	case "max_per_year":
		cfg.MaxPerYear, err = intVal()
	case "pool_min_size":
		cfg.PoolMinSize, err = intVal()
	case "pool_max_threads":
		cfg.PoolMaxThreads, err = intVal()
	case "candidate_cap":
		cfg.CandidateCap, err = intVal()
	case "cache_ttl_days":
		cfg.CacheTTLDays, err = intVal()
	case "broad_search":
		var b bool
		if b, err = boolVal(); err == nil {
			cfg.BroadSearch = &b
		}
	case "pool_enabled":
		var b bool
		if b, err = boolVal(); err == nil {
			cfg.PoolEnabled = &b
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}
