package profile

import "github.com/matheus3301/inbox/internal/config"

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride, configPath string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if configPath == "" {
		configPath = ConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
