package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"proxy-fleet/pkg/model"
)

// Config carries daemon settings resolved from the environment.
// A .env file in the working directory is loaded first when present.
type Config struct {
	EngineURL    string
	EngineSecret string

	Settings model.Settings

	ArchivePath         string
	ConsulAddr          string
	EngineConsulService string
}

func Load() Config {
	_ = loadDotEnv()
	return Config{
		EngineURL:    getenv("ENGINE_URL", "http://127.0.0.1:9090"),
		EngineSecret: os.Getenv("ENGINE_SECRET"),
		Settings: model.Settings{
			TestURL:              getenv("TEST_URL", "https://www.gstatic.com/generate_204"),
			TestTimeoutMs:        getenvInt("TEST_TIMEOUT_MS", 5000),
			AutoCloseConnections: getenvBool("AUTO_CLOSE_CONNECTIONS", false),
		},
		ArchivePath:         os.Getenv("ARCHIVE_PATH"),
		ConsulAddr:          getenv("CONSUL_ADDR", "127.0.0.1:8500"),
		EngineConsulService: os.Getenv("ENGINE_CONSUL_SERVICE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
