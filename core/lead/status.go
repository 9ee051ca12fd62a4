package lead

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

type Status string

const (
	StatusNew       Status = "NEW"
	StatusQualified Status = "QUALIFIED"
	StatusWarm      Status = "WARM"
	StatusHot       Status = "HOT"
	StatusConverted Status = "CONVERTED"
	StatusCold      Status = "COLD"
	StatusExit      Status = "EXIT"
)

var (
	AllStatuses = []Status{
		StatusNew, StatusQualified, StatusWarm, StatusHot, StatusConverted, StatusCold, StatusExit,
	}

	// progress of an active lead through the funnel
	statusRanks = map[Status]int{
		StatusNew:       1,
		StatusQualified: 2,
		StatusWarm:      3,
		StatusHot:       4,
		StatusConverted: 5,
	}

	// manual transitions; follow-up outcomes drive the pipeline statuses and COLD
	manualTransitions = map[Status][]Status{
		StatusNew:       {StatusQualified, StatusExit},
		StatusQualified: {StatusWarm, StatusHot, StatusExit},
		StatusWarm:      {StatusHot, StatusConverted, StatusExit},
		StatusHot:       {StatusWarm, StatusConverted, StatusExit},
		StatusCold:      {StatusQualified},
	}

	leadStatusTag  = "leadstatus"
	leadStatusText = "invalid lead status"
)

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no follow-up is ever scheduled for a lead in this status.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusCold || s == StatusExit
}

// Rank orders the non-terminal statuses and CONVERTED; COLD and EXIT rank 0.
func (s Status) Rank() int {
	return statusRanks[s]
}

// CanTransition reports whether a lead may be moved manually from one status to another.
func CanTransition(from, to Status) bool {
	for _, st := range manualTransitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

// InitValidators registers the lead validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(leadStatusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, leadStatusTag, leadStatusText)
}
