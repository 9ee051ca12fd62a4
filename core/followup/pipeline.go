package followup

import (
	"encoding/json"
	"io/fs"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
)

const DefaultMaxAttempts = 3

// Stage is a step of the outreach sequence.
// Status is the lead status once the lead has reached the stage.
type Stage struct {
	Name     string        `yaml:"name"`
	Label    string        `yaml:"label"`
	Status   lead.Status   `yaml:"status"`
	Interval time.Duration `yaml:"interval"`
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string      `json:"name"`
		Label    string      `json:"label"`
		Status   lead.Status `json:"status"`
		Interval string      `json:"interval"`
	}{s.Name, s.Label, s.Status, s.Interval.String()})
}

// Pipeline is the ordered list of follow-up stages, each allowing MaxAttempts attempts.
type Pipeline struct {
	MaxAttempts int     `yaml:"max_attempts" json:"max_attempts"`
	Stages      []Stage `yaml:"stages" json:"stages"`
}

// ParsePipeline decodes and validates a YAML pipeline definition.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decoding pipeline")
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPipeline reads the pipeline from overridePath when set, otherwise from name in fsys.
func LoadPipeline(fsys fs.FS, name, overridePath string) (*Pipeline, error) {
	var (
		data []byte
		err  error
	)
	if overridePath != "" {
		data, err = os.ReadFile(overridePath)
	} else {
		data, err = fs.ReadFile(fsys, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading pipeline")
	}
	return ParsePipeline(data)
}

func (p *Pipeline) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("pipeline: max_attempts must be at least 1")
	}
	if len(p.Stages) == 0 {
		return errors.New("pipeline: at least one stage is required")
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		switch {
		case s.Name == "":
			return errors.Errorf("pipeline: stage #%d has no name", i+1)
		case seen[s.Name]:
			return errors.Errorf("pipeline: duplicate stage %q", s.Name)
		case s.Interval <= 0:
			return errors.Errorf("pipeline: stage %q must have a positive interval", s.Name)
		case !s.Status.IsValid() || s.Status.IsTerminal():
			return errors.Errorf("pipeline: stage %q has invalid status %q", s.Name, s.Status)
		}
		seen[s.Name] = true
	}
	return nil
}

func (p *Pipeline) First() Stage {
	return p.Stages[0]
}

func (p *Pipeline) index(name string) int {
	for i, s := range p.Stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Stage returns the stage with the given name.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	if i := p.index(name); i >= 0 {
		return p.Stages[i], true
	}
	return Stage{}, false
}

// Advance applies the outcome of the follow-up of l's current stage and attempt to l.
// It returns the delay after which the next follow-up is due, or false when l needs no more follow-ups.
func (p *Pipeline) Advance(l *lead.Lead, outcome Outcome, notes string, now time.Time) (time.Duration, bool, error) {
	idx := p.index(l.Stage)
	if idx < 0 {
		return 0, false, errors.Errorf("unknown stage %q", l.Stage)
	}

	switch outcome {
	case OutcomeAdvance:
		if idx == len(p.Stages)-1 {
			l.Status = lead.StatusConverted
			l.ConvertedAt = &now
			return 0, false, nil
		}
		next := p.Stages[idx+1]
		l.Stage = next.Name
		l.StageAttempt = 1
		if next.Status.Rank() > l.Status.Rank() {
			l.Status = next.Status
		}
		return next.Interval, true, nil

	case OutcomeNoResponse:
		if l.StageAttempt < p.MaxAttempts {
			l.StageAttempt++
			return p.Stages[idx].Interval, true, nil
		}
		l.Status = lead.StatusCold
		return 0, false, nil

	case OutcomeExit:
		l.Status = lead.StatusExit
		l.ExitReason = notes
		return 0, false, nil
	}
	return 0, false, errors.Errorf("unknown outcome %q", outcome)
}
