package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"poolsort/internal/bench"
	"poolsort/internal/logger"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Benchmark BenchmarkConfig `yaml:"benchmark" json:"benchmark"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// BenchmarkConfig はベンチマーク設定
type BenchmarkConfig struct {
	Preset          string `yaml:"preset" json:"preset"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description" json:"description"`
	Size            *int   `yaml:"size" json:"size"`
	ThreadCounts    []int  `yaml:"thread_counts" json:"thread_counts"`
	ChunksPerThread int    `yaml:"chunks_per_thread" json:"chunks_per_thread"`
	Repeat          int    `yaml:"repeat" json:"repeat"`
	Seed            uint64 `yaml:"seed" json:"seed"`
	Verify          *bool  `yaml:"verify" json:"verify"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToBenchConfig はFileConfigをbench.Configに変換する
// 未指定の項目はプリセット（未指定ならdefault）の値を使う
func (f *FileConfig) ToBenchConfig() (bench.Config, error) {
	bc := f.Benchmark

	config := bench.DefaultConfig()
	if bc.Preset != "" {
		preset, ok := bench.GetPreset(bc.Preset)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s (available: %v)", bc.Preset, bench.ListPresets())
		}
		config = preset
	}

	if bc.Name != "" {
		config.Name = bc.Name
	}
	if bc.Description != "" {
		config.Description = bc.Description
	}
	if bc.Size != nil {
		// 0を明示すると空の入力でベンチマークする
		config.Size = *bc.Size
	}
	if len(bc.ThreadCounts) > 0 {
		config.ThreadCounts = append([]int(nil), bc.ThreadCounts...)
	}
	if bc.ChunksPerThread > 0 {
		config.ChunksPerThread = bc.ChunksPerThread
	}
	if bc.Repeat > 0 {
		config.Repeat = bc.Repeat
	}
	if bc.Seed != 0 {
		config.Seed = bc.Seed
	}
	if bc.Verify != nil {
		config.Verify = *bc.Verify
	}

	return config, nil
}

// LogLevel は設定されたログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Benchmark.LogLevel)
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	bc := f.Benchmark

	if bc.Size != nil && *bc.Size < 0 {
		return fmt.Errorf("benchmark.size must be non-negative")
	}

	for _, n := range bc.ThreadCounts {
		if n <= 0 {
			return fmt.Errorf("benchmark.thread_counts must be positive, got %d", n)
		}
	}

	if bc.ChunksPerThread < 0 {
		return fmt.Errorf("benchmark.chunks_per_thread must be non-negative")
	}

	if bc.Repeat < 0 {
		return fmt.Errorf("benchmark.repeat must be non-negative")
	}

	if _, err := f.LogLevel(); err != nil {
		return fmt.Errorf("benchmark.log_level: %w", err)
	}

	return nil
}
