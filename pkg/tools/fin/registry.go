package fin

import (
	"log/slog"
	"os"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// Credential environment variables per vendor group. A group whose variable
// is unset is skipped at startup; the engine runs with whatever remains.
const (
	EnvFMPAPIKey     = "FMP_API_KEY"
	EnvPolygonAPIKey = "POLYGON_API_KEY"
	EnvSECUserAgent  = "SEC_EDGAR_USER_AGENT"
	EnvFREDAPIKey    = "FRED_API_KEY"
	EnvTavilyAPIKey  = "TAVILY_API_KEY"
)

// FromEnv builds the tool set for every vendor group whose credential is
// present. It never fails: a fully unconfigured environment yields an empty
// slice, and the caller decides whether that is acceptable.
func FromEnv(logger *slog.Logger) []tools.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	api := newAPIClient(logger)

	var out []tools.Tool
	register := func(group, envVar string, build func(key string) []tools.Tool) {
		key := os.Getenv(envVar)
		if key == "" {
			logger.Info("Tool group disabled, credential not set", "group", group, "env", envVar)
			return
		}
		ts := build(key)
		logger.Info("Tool group enabled", "group", group, "tools", len(ts))
		out = append(out, ts...)
	}

	register("fmp", EnvFMPAPIKey, func(key string) []tools.Tool {
		return newFMPClient(api, key, "").Tools()
	})
	register("polygon", EnvPolygonAPIKey, func(key string) []tools.Tool {
		return newPolygonClient(api, key, "").Tools()
	})
	register("sec", EnvSECUserAgent, func(key string) []tools.Tool {
		return newSECClient(api, key, "", "").Tools()
	})
	register("fred", EnvFREDAPIKey, func(key string) []tools.Tool {
		return newFREDClient(api, key, "").Tools()
	})
	register("tavily", EnvTavilyAPIKey, func(key string) []tools.Tool {
		return newTavilyClient(api, key, "").Tools()
	})

	return out
}
