package bbgo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// ParamType 参数类型
type ParamType string

const (
	TypeFloat   ParamType = "float"
	TypeInt     ParamType = "int"
	TypeDecimal ParamType = "decimal" // 以十进制字符串传递，解码为 decimal.Decimal
	TypeBool    ParamType = "bool"
	TypeString  ParamType = "string"
)

// ParamSpec 单个参数的模式定义。
// Min/Max 只对数值类型生效；Choices 只对字符串类型生效。
type ParamSpec struct {
	Name        string
	Type        ParamType
	Default     interface{}
	Min         *float64
	Max         *float64
	Choices     []string
	Description string
}

// Bound 便于在模式字面量中书写 Min/Max
func Bound(v float64) *float64 { return &v }

// AnomalyKind 参数异常类型（都不是致命错误）
type AnomalyKind string

const (
	AnomalyWrongType AnomalyKind = "wrong_type" // 类型不符，回退默认值
	AnomalyClamped   AnomalyKind = "clamped"    // 越界，截断到边界
	AnomalyChoice    AnomalyKind = "invalid_choice"
	AnomalyUnknown   AnomalyKind = "unknown" // 模式中不存在的参数，忽略
)

// Anomaly 一次参数解析异常
type Anomaly struct {
	Param string
	Kind  AnomalyKind
	Given interface{}
	Used  interface{}
}

func (a Anomaly) String() string {
	if a.Kind == AnomalyUnknown {
		return fmt.Sprintf("%s: unknown parameter ignored (given=%v)", a.Param, a.Given)
	}
	return fmt.Sprintf("%s: %s (given=%v, using=%v)", a.Param, a.Kind, a.Given, a.Used)
}

// ResolveParams 按模式解析扁平参数表：
// - 缺失：使用默认值
// - 类型不符 / 非法选项：使用默认值并报告
// - 越界：截断到 [Min, Max] 并报告
// - 未知参数：忽略并报告
func ResolveParams(schema []ParamSpec, raw map[string]interface{}) (map[string]interface{}, []Anomaly) {
	out := make(map[string]interface{}, len(schema))
	var anomalies []Anomaly
	known := make(map[string]bool, len(schema))

	for _, p := range schema {
		known[p.Name] = true
		given, ok := raw[p.Name]
		if !ok || given == nil {
			out[p.Name] = p.defaultValue()
			continue
		}
		v, err := p.coerce(given)
		if err != nil {
			kind := AnomalyWrongType
			if err == errChoice {
				kind = AnomalyChoice
			}
			anomalies = append(anomalies, Anomaly{Param: p.Name, Kind: kind, Given: given, Used: p.Default})
			out[p.Name] = p.defaultValue()
			continue
		}
		if c, changed := p.clamp(v); changed {
			anomalies = append(anomalies, Anomaly{Param: p.Name, Kind: AnomalyClamped, Given: given, Used: c})
			v = c
		}
		out[p.Name] = v
	}

	var unknown []string
	for name := range raw {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		anomalies = append(anomalies, Anomaly{Param: name, Kind: AnomalyUnknown, Given: raw[name]})
	}
	return out, anomalies
}

// ValidateSchema 模式自身的结构校验（注册时调用）：名称唯一、类型合法、默认值合法且在范围内。
func ValidateSchema(schema []ParamSpec) error {
	seen := make(map[string]bool, len(schema))
	for _, p := range schema {
		if p.Name == "" {
			return fmt.Errorf("param with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate param %s", p.Name)
		}
		seen[p.Name] = true
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("param %s: min %v > max %v", p.Name, *p.Min, *p.Max)
		}
		v, err := p.coerce(p.Default)
		if err != nil {
			return fmt.Errorf("param %s: default %v: %w", p.Name, p.Default, err)
		}
		if _, changed := p.clamp(v); changed {
			return fmt.Errorf("param %s: default %v out of range", p.Name, p.Default)
		}
	}
	return nil
}

// Decode 将解析后的参数解码到策略的类型化配置（json 往返，同 ReUnmarshal）。
func Decode(params map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("序列化参数失败: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("反序列化策略配置失败: %w", err)
	}
	return nil
}

var errChoice = errors.New("value not in choices")

// defaultValue 规范化后的默认值（模式已在注册时校验）
func (p ParamSpec) defaultValue() interface{} {
	v, err := p.coerce(p.Default)
	if err != nil {
		return p.Default
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func (p ParamSpec) coerce(v interface{}) (interface{}, error) {
	switch p.Type {
	case TypeFloat:
		if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	case TypeInt:
		if f, ok := toFloat(v); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
	case TypeDecimal:
		switch x := v.(type) {
		case string:
			d, err := decimal.NewFromString(x)
			if err == nil {
				return d.String(), nil
			}
		case decimal.Decimal:
			return x.String(), nil
		default:
			if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return decimal.NewFromFloat(f).String(), nil
			}
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b, nil
			}
		}
	case TypeString:
		s, ok := v.(string)
		if !ok {
			break
		}
		if len(p.Choices) == 0 {
			return s, nil
		}
		for _, c := range p.Choices {
			if c == s {
				return s, nil
			}
		}
		return nil, errChoice
	default:
		return nil, fmt.Errorf("unknown param type %q", p.Type)
	}
	return nil, fmt.Errorf("expected %s, got %T", p.Type, v)
}

// clamp 截断到 [Min, Max]，返回截断后的值以及是否发生了截断。
func (p ParamSpec) clamp(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case float64:
		if p.Min != nil && x < *p.Min {
			return *p.Min, true
		}
		if p.Max != nil && x > *p.Max {
			return *p.Max, true
		}
	case int64:
		if p.Min != nil && float64(x) < *p.Min {
			return int64(math.Ceil(*p.Min)), true
		}
		if p.Max != nil && float64(x) > *p.Max {
			return int64(math.Floor(*p.Max)), true
		}
	case string:
		if p.Type != TypeDecimal {
			return v, false
		}
		d := decimal.RequireFromString(x)
		if p.Min != nil && d.LessThan(decimal.NewFromFloat(*p.Min)) {
			return decimal.NewFromFloat(*p.Min).String(), true
		}
		if p.Max != nil && d.GreaterThan(decimal.NewFromFloat(*p.Max)) {
			return decimal.NewFromFloat(*p.Max).String(), true
		}
	}
	return v, false
}
