package bbgo

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config 策略文件：
//
//	strategies:
//	  - hunter:
//	      referenceProbability: 2
//	      zThreshold: -2
type Config struct {
	Strategies []StrategyConfigEntry `yaml:"strategies" json:"strategies"`
}

// StrategyConfigEntry 单个条目：key 为策略 ID，value 为扁平参数表
type StrategyConfigEntry map[string]interface{}

// StrategyEntry 展开后的条目
type StrategyEntry struct {
	ID     string
	Params map[string]interface{}
}

// Load 从文件加载策略配置
func Load(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Entries 按文件顺序展开所有条目（同一条目内多个 ID 按字母序）。
func (c *Config) Entries() ([]StrategyEntry, error) {
	var out []StrategyEntry
	for i, entry := range c.Strategies {
		ids := make([]string, 0, len(entry))
		for id := range entry {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			params, err := toParams(entry[id])
			if err != nil {
				return nil, fmt.Errorf("strategies[%d].%s: %w", i, id, err)
			}
			out = append(out, StrategyEntry{ID: id, Params: params})
		}
	}
	return out, nil
}

// Find 查找指定 ID 的条目；id 为空时返回第一个条目。
func (c *Config) Find(id string) (StrategyEntry, error) {
	entries, err := c.Entries()
	if err != nil {
		return StrategyEntry{}, err
	}
	for _, e := range entries {
		if id == "" || e.ID == id {
			return e, nil
		}
	}
	if id == "" {
		return StrategyEntry{}, fmt.Errorf("no strategy configured")
	}
	// 未配置参数的策略使用全部默认值
	return StrategyEntry{ID: id, Params: map[string]interface{}{}}, nil
}

func toParams(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a parameter map, got %T", v)
	}
}
