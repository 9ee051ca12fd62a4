package visit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

func TestCheckAnswers(t *testing.T) {
	categories := []Category{
		{ID: 1, Name: "Jenis Lantai", Kind: KindRadio, IsActive: true, Options: []Option{
			{ID: 11, CategoryID: 1}, {ID: 12, CategoryID: 1},
		}},
		{ID: 2, Name: "Kebutuhan Produk", Kind: KindCheckbox, IsActive: true, Options: []Option{
			{ID: 21, CategoryID: 2}, {ID: 22, CategoryID: 2}, {ID: 23, CategoryID: 2},
		}},
		{ID: 3, Name: "Lama", Kind: KindCheckbox, IsActive: false, Options: []Option{
			{ID: 31, CategoryID: 3},
		}},
	}

	tests := []struct {
		name       string
		answers    []Answer
		want       []Answer
		wantFields []string
	}{
		{
			name:    "radio only",
			answers: []Answer{{CategoryID: 1, OptionID: 12}},
			want:    []Answer{{CategoryID: 1, OptionID: 12}},
		},
		{
			name:    "checkbox many, sorted",
			answers: []Answer{{2, 23}, {1, 11}, {2, 21}},
			want:    []Answer{{1, 11}, {2, 21}, {2, 23}},
		},
		{
			name:       "radio missing",
			answers:    []Answer{{2, 21}},
			wantFields: []string{"answers"},
		},
		{
			name:       "radio twice",
			answers:    []Answer{{1, 11}, {1, 12}},
			wantFields: []string{"answers"},
		},
		{
			name:       "duplicate checkbox option",
			answers:    []Answer{{1, 11}, {2, 22}, {2, 22}},
			wantFields: []string{"answers[2]"},
		},
		{
			name:       "option from another category",
			answers:    []Answer{{1, 11}, {2, 12}},
			wantFields: []string{"answers[1]"},
		},
		{
			name:       "inactive category",
			answers:    []Answer{{1, 11}, {3, 31}},
			wantFields: []string{"answers[1]"},
		},
		{
			name:       "unknown category",
			answers:    []Answer{{9, 91}},
			wantFields: []string{"answers[0]", "answers"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CheckAnswers(categories, tc.answers)
			if len(tc.wantFields) == 0 {
				if err != nil {
					t.Fatalf("CheckAnswers() error = %v", err)
				}
				if diff := cmp.Diff(tc.want, got); diff != "" {
					t.Errorf("answers mismatch (-want +got):\n%s", diff)
				}
				return
			}

			verr, ok := errors.Cause(err).(*core.ValidationError)
			if !ok {
				t.Fatalf("CheckAnswers() error = %v; want a validation error", err)
			}
			fields := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			if diff := cmp.Diff(tc.wantFields, fields); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
