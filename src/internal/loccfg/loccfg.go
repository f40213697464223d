// Package loccfg reads and writes JSON configuration files rooted
// below a directory handle.
package loccfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// Parse decodes data into a fresh T.
func Parse[T any](data []byte) (*T, error) {
	var ret T
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &ret, nil
}

// CreateFile writes cfg to p, failing if p already exists.
func CreateFile[T any](root *os.Root, p string, cfg T) error {
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	f, err := root.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// LoadFile reads and parses the config at p.
func LoadFile[T any](root *os.Root, p string) (*T, error) {
	data, err := root.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return Parse[T](data)
}

// EditFile applies fn to the config at p and writes the result back.
func EditFile[T any](root *os.Root, p string, fn func(T) T) error {
	cfg, err := LoadFile[T](root, p)
	if err != nil {
		return err
	}
	data, err := encode(fn(*cfg))
	if err != nil {
		return err
	}
	return root.WriteFile(p, data, 0o644)
}

func encode(x any) ([]byte, error) {
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return append(data, '\n'), nil
}
