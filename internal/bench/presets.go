package bench

import "slices"

// QuickConfig は短時間の動作確認用の設定を返す
func QuickConfig() Config {
	return Config{
		Name:            "quick",
		Description:     "Short smoke run on a small input",
		Size:            100_000,
		ThreadCounts:    []int{1, 2, 4},
		ChunksPerThread: 1,
		Repeat:          1,
		Verify:          true,
	}
}

// ScalingConfig はスレッド数ごとのスケーリングを見る設定を返す
// 各スレッド数を3回ずつ計測する
func ScalingConfig() Config {
	return Config{
		Name:            "scaling",
		Description:     "Thread scaling curve on one million elements",
		Size:            1_000_000,
		ThreadCounts:    []int{1, 2, 4, 8, 16, 32, 64},
		ChunksPerThread: 1,
		Repeat:          3,
		Verify:          true,
	}
}

// OversplitConfig はスレッド数より多いチャンクに分割する設定を返す
func OversplitConfig() Config {
	return Config{
		Name:            "oversplit",
		Description:     "More chunks than workers to exercise queueing",
		Size:            2_000_000,
		ThreadCounts:    []int{2, 4, 8},
		ChunksPerThread: 8,
		Repeat:          2,
		Verify:          true,
	}
}

// StressConfig は大きな入力で繰り返し計測する設定を返す
func StressConfig() Config {
	return Config{
		Name:            "stress",
		Description:     "Large input with repeated runs",
		Size:            10_000_000,
		ThreadCounts:    []int{4, 8, 16},
		ChunksPerThread: 4,
		Repeat:          5,
		Verify:          true,
	}
}

// Preset はプリセットの名前と説明
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var presets = map[string]func() Config{
	"default":   DefaultConfig,
	"quick":     QuickConfig,
	"scaling":   ScalingConfig,
	"oversplit": OversplitConfig,
	"stress":    StressConfig,
}

// GetPreset は名前からプリセット設定を返す
func GetPreset(name string) (Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	return fn(), true
}

// ListPresets はプリセット名を名前順で返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Presets はプリセットの一覧を名前順で返す
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, name := range ListPresets() {
		out = append(out, Preset{Name: name, Description: presets[name]().Description})
	}
	return out
}
