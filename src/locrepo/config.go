package locrepo

import (
	"os"

	"github.com/locvc/locvc/src/internal/loccfg"
)

type Config struct {
	// SnapshotCacheSize bounds the number of branch snapshots kept in
	// memory. Snapshots are cached per (branch, version), so stale entries
	// are never served.
	SnapshotCacheSize int `json:"snapshot_cache_size"`
	// MergeRetries bounds how many times Merge re-prepares after losing an
	// optimistic-concurrency race.
	MergeRetries int `json:"merge_retries"`
}

func DefaultConfig() Config {
	return Config{
		SnapshotCacheSize: 64,
		MergeRetries:      4,
	}
}

func SaveConfig(root *os.Root, cfg Config) error {
	return loccfg.CreateFile(root, configPath, cfg)
}

func LoadConfig(root *os.Root) (*Config, error) {
	data, err := root.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return loccfg.Parse[Config](data)
}

func EditConfig(root *os.Root, fn func(x Config) Config) error {
	return loccfg.EditFile(root, configPath, fn)
}
