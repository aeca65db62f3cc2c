package runner

import (
	"fmt"
	"math"
)

// StageType names the shape of a Stage.
type StageType string

const (
	StageTypeConstant StageType = "constant"
	StageTypeRamp     StageType = "ramp"
	StageTypeStep     StageType = "step"
)

// Stage is one segment of a per-tick rate plan.
type Stage struct {
	Name    string
	Type    StageType
	RPS     int         // constant
	FromRPS int         // ramp
	ToRPS   int         // ramp
	Ticks   int         // constant and ramp length
	Steps   []StageStep // step
}

// StageStep is one level of a step stage.
type StageStep struct {
	RPS   int
	Ticks int
}

type stagePlan struct {
	segments []stageSegment
	ticks    int
	total    int64
}

type stageSegment struct {
	start    int
	ticks    int
	fromRate int
	toRate   int
}

func compileStagePlan(stages []Stage) *stagePlan {
	if len(stages) == 0 {
		return nil
	}

	plan := &stagePlan{}
	offset := 0
	for _, stage := range stages {
		switch stage.Type {
		case StageTypeRamp:
			if stage.Ticks <= 0 {
				continue
			}
			plan.appendSegment(stageSegment{start: offset, ticks: stage.Ticks, fromRate: stage.FromRPS, toRate: stage.ToRPS})
			offset += stage.Ticks
		case StageTypeStep:
			for _, step := range stage.Steps {
				if step.Ticks <= 0 {
					continue
				}
				plan.appendSegment(stageSegment{start: offset, ticks: step.Ticks, fromRate: step.RPS, toRate: step.RPS})
				offset += step.Ticks
			}
		default:
			if stage.Ticks <= 0 {
				continue
			}
			plan.appendSegment(stageSegment{start: offset, ticks: stage.Ticks, fromRate: stage.RPS, toRate: stage.RPS})
			offset += stage.Ticks
		}
	}

	if len(plan.segments) == 0 {
		return nil
	}
	plan.ticks = offset
	for tick := 0; tick < plan.ticks; tick++ {
		n, _ := plan.requestsAt(tick)
		plan.total += int64(n)
	}
	return plan
}

func (p *stagePlan) appendSegment(seg stageSegment) {
	p.segments = append(p.segments, seg)
}

// requestsAt returns how many requests tick should submit. Ramps interpolate
// linearly from the segment start and round to the nearest request.
func (p *stagePlan) requestsAt(tick int) (int, bool) {
	if p == nil || tick < 0 {
		return 0, false
	}
	for _, seg := range p.segments {
		if tick < seg.start || tick >= seg.start+seg.ticks {
			continue
		}
		if seg.fromRate == seg.toRate {
			return seg.fromRate, true
		}
		progress := float64(tick-seg.start) / float64(seg.ticks)
		rate := float64(seg.fromRate) + float64(seg.toRate-seg.fromRate)*progress
		return int(math.Round(rate)), true
	}
	return 0, false
}

func (p *stagePlan) totalTicks() int {
	if p == nil {
		return 0
	}
	return p.ticks
}

// totalRequests is the exact number of submissions the plan schedules.
func (p *stagePlan) totalRequests() int64 {
	if p == nil {
		return 0
	}
	return p.total
}

func validateStages(stages []Stage) []string {
	var issues []string
	for i, stage := range stages {
		label := stage.Name
		if label == "" {
			label = fmt.Sprintf("stage[%d]", i)
		}
		switch stage.Type {
		case "", StageTypeConstant:
			if stage.RPS < 0 {
				issues = append(issues, fmt.Sprintf("%s: rps must be >= 0", label))
			}
			if stage.Ticks <= 0 {
				issues = append(issues, fmt.Sprintf("%s: ticks must be > 0", label))
			}
		case StageTypeRamp:
			if stage.FromRPS < 0 || stage.ToRPS < 0 {
				issues = append(issues, fmt.Sprintf("%s: ramp rates must be >= 0", label))
			}
			if stage.Ticks <= 0 {
				issues = append(issues, fmt.Sprintf("%s: ticks must be > 0", label))
			}
		case StageTypeStep:
			if len(stage.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("%s: step stage needs at least one step", label))
			}
			for j, step := range stage.Steps {
				if step.RPS < 0 {
					issues = append(issues, fmt.Sprintf("%s: step[%d] rps must be >= 0", label, j))
				}
				if step.Ticks <= 0 {
					issues = append(issues, fmt.Sprintf("%s: step[%d] ticks must be > 0", label, j))
				}
			}
		default:
			issues = append(issues, fmt.Sprintf("%s: unknown stage type %q", label, stage.Type))
		}
	}
	return issues
}
