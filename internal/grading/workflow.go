package grading

import (
	"fmt"
	"strings"
)

// 评阅流程状态
const (
	WorkflowNotMarked       = "notmarked"
	WorkflowInMarking       = "inmarking"
	WorkflowReadyForReview  = "readyforreview"
	WorkflowInReview        = "inreview"
	WorkflowReadyForRelease = "readyforrelease"
	WorkflowReleased        = "released"
)

func DefaultWorkflowStates() []string {
	return []string{
		WorkflowNotMarked,
		WorkflowInMarking,
		WorkflowReadyForReview,
		WorkflowInReview,
		WorkflowReadyForRelease,
		WorkflowReleased,
	}
}

// Progression 评阅流程状态的全序，下标越小越靠前
type Progression struct {
	states  []string
	rank    map[string]int
	pending int // 已分配但尚未上报状态的评分人按此状态计
}

func NewProgression(states []string) (*Progression, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no states", ErrInvalidProgression)
	}
	p := &Progression{
		states: make([]string, 0, len(states)),
		rank:   make(map[string]int, len(states)),
	}
	for _, s := range states {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: blank state", ErrInvalidProgression)
		}
		if _, dup := p.rank[s]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", ErrInvalidProgression, s)
		}
		p.rank[s] = len(p.states)
		p.states = append(p.states, s)
	}
	p.pending = 0
	if r, ok := p.rank[WorkflowInMarking]; ok {
		p.pending = r
	}
	return p, nil
}

func (p *Progression) Contains(state string) bool {
	_, ok := p.rank[state]
	return ok
}

func (p *Progression) States() []string {
	out := make([]string, len(p.states))
	copy(out, p.states)
	return out
}

// Pending 尚未上报状态的评分人所处的状态：流程中有 inmarking 时为它，否则为第一个状态
func (p *Progression) Pending() string {
	return p.states[p.pending]
}

// Lowest 返回各评分人状态中最靠前的一个。
// 没有任何评分人上报时返回空串；部分上报时未上报的按 Pending 计。
// 不在流程中的状态不参与比较。
func (p *Progression) Lowest(states []*string) string {
	best := len(p.states)
	reported := false
	unreported := false
	for _, s := range states {
		if s == nil || *s == "" {
			unreported = true
			continue
		}
		if r, ok := p.rank[*s]; ok {
			reported = true
			if r < best {
				best = r
			}
		}
	}
	if !reported {
		return ""
	}
	if unreported && p.pending < best {
		best = p.pending
	}
	return p.states[best]
}
