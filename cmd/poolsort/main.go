// Package main is the entry point for poolsort.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"poolsort/internal/api"
	"poolsort/internal/bench"
	"poolsort/internal/config"
	"poolsort/internal/logger"
)

var (
	version = "dev"
)

// options はコマンドラインで指定された値
type options struct {
	configFile      string
	presetName      string
	size            int
	threads         string
	chunksPerThread int
	repeat          int
	seed            uint64
	verify          bool
	logLevel        string
	addr            string

	// 明示的に指定されたフラグ名
	set map[string]bool
}

func main() {
	var opts options

	// フラグ定義
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.presetName, "preset", "", "プリセット名 (default, quick, scaling, oversplit, stress)")
	flag.IntVar(&opts.size, "size", 0, "入力要素数 (指定時のみ反映、0で空の入力)")
	flag.StringVar(&opts.threads, "threads", "", "計測するワーカー数 (カンマ区切り, 例: 1,2,4,8)")
	flag.IntVar(&opts.chunksPerThread, "chunks", 0, "ワーカーあたりのチャンク数")
	flag.IntVar(&opts.repeat, "repeat", 0, "各ワーカー数での繰り返し回数")
	flag.Uint64Var(&opts.seed, "seed", 0, "入力生成のシード (0でランダム)")
	flag.BoolVar(&opts.verify, "verify", true, "ソート結果を検証する")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	listPresets := flag.Bool("list-presets", false, "利用可能なプリセットを表示")
	showVersion := flag.Bool("version", false, "バージョンを表示")
	serverMode := flag.Bool("server", false, "APIサーバーモードで起動")
	flag.StringVar(&opts.addr, "addr", ":8080", "サーバーアドレス (例: :8080, 0.0.0.0:3000)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `poolsort - Thread pool backed parallel merge sort benchmark

Usage:
  poolsort [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # デフォルト設定 (1千万要素, 1〜100ワーカー) で実行
  poolsort

  # プリセットを実行
  poolsort --preset quick

  # 設定ファイルから実行
  poolsort --config bench.yaml

  # フラグでカスタマイズ
  poolsort --size 1000000 --threads 1,2,4,8 --repeat 3

  # プリセット一覧を表示
  poolsort --list-presets

  # APIサーバーモードで起動
  poolsort --server --addr :3000
`)
	}

	flag.Parse()

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	// バージョン表示
	if *showVersion {
		fmt.Printf("poolsort version %s\n", version)
		return
	}

	// プリセット一覧表示
	if *listPresets {
		printPresets()
		return
	}

	fileConfig, err := loadFileConfig(opts.configFile)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	if err := applyLogLevel(fileConfig, opts); err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	// APIサーバーモード
	if *serverMode {
		addr := opts.addr
		if !opts.set["addr"] && fileConfig != nil && fileConfig.Server.Addr != "" {
			addr = fileConfig.Server.Addr
		}
		if err := runServer(addr); err != nil {
			logger.Error("", "サーバーエラー: %v", err)
			os.Exit(1)
		}
		return
	}

	benchConfig, err := buildBenchConfig(fileConfig, opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	if err := runBenchmark(benchConfig); err != nil {
		logger.Error("", "ベンチマーク実行エラー: %v", err)
		os.Exit(1)
	}
}

// loadFileConfig は設定ファイルを読み込んで検証する。pathが空ならnilを返す
func loadFileConfig(path string) (*config.FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	fileConfig, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
	}
	if err := fileConfig.Validate(); err != nil {
		return nil, fmt.Errorf("設定検証エラー: %w", err)
	}
	return fileConfig, nil
}

// applyLogLevel はフラグまたは設定ファイルのログレベルをデフォルトロガーに反映する
func applyLogLevel(fileConfig *config.FileConfig, opts options) error {
	name := opts.logLevel
	if name == "" && fileConfig != nil {
		name = fileConfig.Benchmark.LogLevel
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return err
	}
	logger.Default.SetLevel(level)
	return nil
}

// buildBenchConfig はベンチマーク設定を構築する
// 優先順位: 設定ファイル > プリセット > デフォルト、その上にフラグを重ねる
func buildBenchConfig(fileConfig *config.FileConfig, opts options) (bench.Config, error) {
	var cfg bench.Config

	switch {
	case fileConfig != nil:
		// 1. 設定ファイルから読み込み
		c, err := fileConfig.ToBenchConfig()
		if err != nil {
			return cfg, fmt.Errorf("設定変換エラー: %w", err)
		}
		cfg = c
	case opts.presetName != "":
		// 2. プリセットから読み込み
		preset, ok := bench.GetPreset(opts.presetName)
		if !ok {
			return cfg, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", opts.presetName, bench.ListPresets())
		}
		cfg = preset
	default:
		// 3. デフォルト
		cfg = bench.DefaultConfig()
	}

	// フラグでオーバーライド
	if opts.set["size"] {
		// -size 0 は空の入力を選ぶ
		cfg.Size = opts.size
	}
	if opts.threads != "" {
		counts, err := parseThreadCounts(opts.threads)
		if err != nil {
			return cfg, err
		}
		cfg.ThreadCounts = counts
	}
	if opts.chunksPerThread > 0 {
		cfg.ChunksPerThread = opts.chunksPerThread
	}
	if opts.repeat > 0 {
		cfg.Repeat = opts.repeat
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}

	// フラグが明示的に指定された場合のみオーバーライド
	if opts.set["verify"] {
		cfg.Verify = opts.verify
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("設定検証エラー: %w", err)
	}
	return cfg, nil
}

// parseThreadCounts は "1,2,4" 形式のワーカー数一覧を解析する
func parseThreadCounts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	counts := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("不正なワーカー数: %q", p)
		}
		if n <= 0 {
			return nil, fmt.Errorf("ワーカー数は正の値が必要: %d", n)
		}
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("ワーカー数が指定されていません: %q", s)
	}
	return counts, nil
}

// runBenchmark はベンチマークを実行する
func runBenchmark(cfg bench.Config) error {
	fmt.Println("poolsort - Thread pool backed parallel merge sort")
	fmt.Println("=================================================")
	fmt.Printf("Benchmark: %s\n", cfg.Name)
	fmt.Printf("Elements: %d\n", cfg.Size)
	fmt.Printf("Threads: %v, Chunks/thread: %d, Repeat: %d\n", cfg.ThreadCounts, cfg.ChunksPerThread, cfg.Repeat)
	fmt.Printf("Verify: %v\n", cfg.Verify)
	fmt.Println("=================================================")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n中断シグナルを受信、ベンチマークを終了中...")
			cancel()
		case <-ctx.Done():
		}
	}()

	engine := bench.New(cfg)
	result, err := engine.Run(ctx)
	if result != nil {
		// 中断時もそこまでの結果を出力する
		fmt.Println(result.Report())
	}
	return err
}

// printPresets は利用可能なプリセットを表示する
func printPresets() {
	fmt.Println("利用可能なプリセット:")
	fmt.Println()

	for _, p := range bench.Presets() {
		fmt.Printf("  %-12s %s\n", p.Name, p.Description)
	}

	fmt.Println()
	fmt.Println("使用例: poolsort --preset quick")
}

// runServer はAPIサーバーを起動する
func runServer(addr string) error {
	fmt.Println("poolsort - API Server")
	fmt.Println("=====================")
	fmt.Printf("Starting server on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\n中断シグナルを受信、サーバーを終了中...")
		cancel()
	}()

	server := api.NewServer(addr)
	return server.Start(ctx)
}
