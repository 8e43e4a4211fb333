package pipeline

import (
	"fmt"
	"strings"

	"github.com/aescanero/codeforge/pkg/domain"
)

// Plan is a validated stage ordering
type Plan struct {
	Order    []string
	Warnings []string

	index map[string]int
}

// Contains reports whether the ordering includes a stage.
func (p *Plan) Contains(stage string) bool {
	_, ok := p.index[stage]
	return ok
}

// Plan validates an ordering at composition time. An empty ordering selects the
// default one. Unknown and duplicated stage names are rejected; optional reads
// that no earlier stage writes are reported as warnings, since the driver treats
// them as eligibility gates at run time.
func (r *Registry) Plan(order []string) (*Plan, error) {
	if len(order) == 0 {
		order = r.defaultOrder
	}

	p := &Plan{
		Order: make([]string, 0, len(order)),
		index: make(map[string]int, len(order)),
	}

	for i, raw := range order {
		name := strings.TrimSpace(raw)
		if _, ok := r.stages[name]; !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStage, raw)
		}
		if _, dup := p.index[name]; dup {
			return nil, fmt.Errorf("stage %q appears more than once", name)
		}
		p.index[name] = i
		p.Order = append(p.Order, name)
	}

	written := make(map[domain.Field]bool)
	for _, name := range p.Order {
		spec := r.stages[name]
		for _, f := range spec.Reads {
			if !written[f] && !r.writtenInLoop(p, f) {
				p.Warnings = append(p.Warnings,
					fmt.Sprintf("%s reads %s but no earlier stage writes it; it will be skipped", name, f))
			}
		}
		if !r.providesAll(p, spec.Requires, written) {
			p.Warnings = append(p.Warnings,
				fmt.Sprintf("%s requires %v which may be unresolved when it runs", name, spec.Requires))
		}
		for _, f := range spec.Writes {
			written[f] = true
		}
	}

	return p, nil
}

// writtenInLoop reports whether a field is produced inside the generation loop,
// where extract, review, classify and testgen run regardless of their position.
func (r *Registry) writtenInLoop(p *Plan, f domain.Field) bool {
	if !p.Contains(StageGenerate) {
		return false
	}
	for _, name := range []string{StageGenerate, StageExtract, StageReview, StageClassify, StageTestGen} {
		if !p.Contains(name) {
			continue
		}
		for _, w := range r.stages[name].Writes {
			if w == f {
				return true
			}
		}
	}
	return false
}

func (r *Registry) providesAll(p *Plan, fields []domain.Field, written map[domain.Field]bool) bool {
	for _, f := range fields {
		if !written[f] && !r.writtenInLoop(p, f) {
			return false
		}
	}
	return true
}
