package visit

import (
	"fmt"
	"sort"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

// CheckAnswers validates answers against the active checklist categories.
// It returns the answers sorted by category and option.
func CheckAnswers(categories []Category, answers []Answer) ([]Answer, error) {
	type catInfo struct {
		cat     Category
		options map[int64]bool
	}
	active := make(map[int64]catInfo, len(categories))
	for _, cat := range categories {
		if !cat.IsActive {
			continue
		}
		info := catInfo{cat: cat, options: make(map[int64]bool, len(cat.Options))}
		for _, opt := range cat.Options {
			info.options[opt.ID] = true
		}
		active[cat.ID] = info
	}

	var fields []core.FieldError
	counts := make(map[int64]int, len(active))
	seen := make(map[int64]bool, len(answers))
	for i, ans := range answers {
		fld := fmt.Sprintf("answers[%d]", i)
		info, ok := active[ans.CategoryID]
		switch {
		case !ok:
			fields = append(fields, core.FieldError{Field: fld, Error: "unknown or inactive category"})
		case !info.options[ans.OptionID]:
			fields = append(fields, core.FieldError{Field: fld, Error: "option does not belong to the category"})
		case seen[ans.OptionID]:
			fields = append(fields, core.FieldError{Field: fld, Error: "duplicate option"})
		default:
			seen[ans.OptionID] = true
			counts[ans.CategoryID]++
		}
	}

	ids := make([]int64, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		info := active[id]
		if info.cat.Kind == KindRadio && counts[id] != 1 {
			fields = append(fields, core.FieldError{
				Field: "answers",
				Error: fmt.Sprintf("%s: exactly one option must be chosen", info.cat.Name),
			})
		}
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(nil, fields...)
	}

	sorted := append([]Answer{}, answers...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CategoryID != sorted[j].CategoryID {
			return sorted[i].CategoryID < sorted[j].CategoryID
		}
		return sorted[i].OptionID < sorted[j].OptionID
	})
	return sorted, nil
}
