package properties

import (
	"os"
	"path/filepath"
	"strconv"
)

const ToolName = "wqindex"

var Version = "0.4.0"

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// WorkspacePath is the user workspace holding resources/algo_config.yaml
// and resources/algo_calibration/. Empty when no workspace is active.
func WorkspacePath() string {
	return os.Getenv("WQINDEX_WORKSPACE")
}

func CacheDir() string {
	return filepath.Join(RootPath(), "data", "cache")
}

func OutputDir() string {
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(RootPath(), "data", "l3")
}

func Workers() int {
	n, err := strconv.Atoi(os.Getenv("WORKERS"))
	if err != nil || n < 1 {
		return 4
	}
	return n
}

func DiscordNotificationUrl() string {
	return os.Getenv("DISCORD_NOTIFICATION_URL")
}
