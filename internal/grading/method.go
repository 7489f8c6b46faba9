package grading

import (
	"fmt"
	"sort"
)

// Method 多评分人成绩汇总方式
type Method string

const (
	MethodManual  Method = "manual"
	MethodFirst   Method = "first"
	MethodMax     Method = "max"
	MethodAverage Method = "average"
)

// Unset 总成绩未评定时的取值
const Unset float64 = -1

// MarkEntry 一位已分配评分人的分数，Value 为 nil 表示该评分人尚未给分
type MarkEntry struct {
	MarkerID uint
	Value    *float64
}

// Aggregator 把已分配评分人的分数合并成一个总成绩。
// entries 必须按分配顺序传入，且只包含当前仍被分配的评分人。
// 第二个返回值为 false 时总成绩保持 Unset。
type Aggregator interface {
	Method() Method
	Aggregate(entries []MarkEntry) (float64, bool)
}

// MethodInfo 用于设置页展示的汇总方式
type MethodInfo struct {
	ID   Method `json:"id"`
	Name string `json:"name"`
}

type methodEntry struct {
	name  string
	order int
	build func(r Rounding) Aggregator
}

var registry = map[Method]methodEntry{
	MethodManual: {
		name:  "Manual",
		order: 1,
		build: func(Rounding) Aggregator { return manualAggregator{} },
	},
	MethodFirst: {
		name:  "First mark",
		order: 2,
		build: func(Rounding) Aggregator { return firstAggregator{} },
	},
	MethodMax: {
		name:  "Maximum mark",
		order: 3,
		build: func(Rounding) Aggregator { return maxAggregator{} },
	},
	MethodAverage: {
		name:  "Average mark",
		order: 4,
		build: func(r Rounding) Aggregator { return averageAggregator{rounding: r} },
	},
}

// Methods 返回全部汇总方式，顺序固定
func Methods() []MethodInfo {
	infos := make([]MethodInfo, 0, len(registry))
	for id := range registry {
		infos = append(infos, MethodInfo{ID: id, Name: registry[id].name})
	}
	sort.Slice(infos, func(i, j int) bool {
		return registry[infos[i].ID].order < registry[infos[j].ID].order
	})
	return infos
}

func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if _, ok := registry[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
	return m, nil
}

// NewAggregator 根据作业配置构造汇总器。
// 只有 average 方式会校验舍入方式；其它方式忽略 rounding。
func NewAggregator(method, rounding string) (Aggregator, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	var r Rounding
	if m == MethodAverage {
		if r, err = ParseRounding(rounding); err != nil {
			return nil, err
		}
	}
	return registry[m].build(r), nil
}

// complete 所有已分配评分人都给了分才算完整
func complete(entries []MarkEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if e.Value == nil {
			return false
		}
	}
	return true
}

type manualAggregator struct{}

func (manualAggregator) Method() Method { return MethodManual }

func (manualAggregator) Aggregate([]MarkEntry) (float64, bool) {
	return Unset, false
}

type firstAggregator struct{}

func (firstAggregator) Method() Method { return MethodFirst }

func (firstAggregator) Aggregate(entries []MarkEntry) (float64, bool) {
	if !complete(entries) {
		return Unset, false
	}
	return *entries[0].Value, true
}

type maxAggregator struct{}

func (maxAggregator) Method() Method { return MethodMax }

func (maxAggregator) Aggregate(entries []MarkEntry) (float64, bool) {
	if !complete(entries) {
		return Unset, false
	}
	best := *entries[0].Value
	for _, e := range entries[1:] {
		if *e.Value > best {
			best = *e.Value
		}
	}
	return best, true
}

type averageAggregator struct {
	rounding Rounding
}

func (averageAggregator) Method() Method { return MethodAverage }

func (a averageAggregator) Aggregate(entries []MarkEntry) (float64, bool) {
	if !complete(entries) {
		return Unset, false
	}
	var sum float64
	for _, e := range entries {
		sum += *e.Value
	}
	return a.rounding.Apply(sum / float64(len(entries))), true
}
