package validator

import (
	"errors"
	"testing"
	"time"
)

type pageParams struct {
	Page  *int   `json:"page" validate:"omitempty,min=1" error_msg:"min:page must be >= 1"`
	Limit *int   `json:"limit" validate:"omitempty,min=1,max=1000" error_msg:"min:limit must be >= 1"`
	Order string `json:"order" validate:"omitempty,oneof=asc desc" error_msg:"oneof:order must be asc or desc"`
}

func intPtr(v int) *int { return &v }

func TestValidateListParams(t *testing.T) {
	t.Parallel()

	v := New()
	tests := []struct {
		name   string
		params pageParams
		want   string
	}{
		{"empty", pageParams{}, ""},
		{"valid", pageParams{Page: intPtr(2), Limit: intPtr(10), Order: "asc"}, ""},
		{"zero page", pageParams{Page: intPtr(0)}, "page: page must be >= 1"},
		{"limit without message", pageParams{Limit: intPtr(5000)}, "limit: limit failed on 'max'"},
		{"several fields sorted", pageParams{Page: intPtr(0), Limit: intPtr(0), Order: "up"},
			"limit: limit must be >= 1; order: order must be asc or desc; page: page must be >= 1"},
	}
	for _, tt := range tests {
		err := v.Validate(&tt.params)
		if tt.want == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.want {
			t.Fatalf("%s: got %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestValidateNestedStructs(t *testing.T) {
	t.Parallel()

	type Window struct {
		From time.Time `json:"from"`
		Days int       `json:"days" validate:"min=1" error_msg:"min:days must be >= 1"`
	}
	type Req struct {
		Paging   pageParams `json:"paging"`
		Window   *Window    `json:"window"`
		internal int
	}

	v := New()
	if err := v.Validate(Req{Window: nil}); err != nil {
		t.Fatalf("nil nested pointer must be skipped: %v", err)
	}

	err := v.Validate(&Req{Paging: pageParams{Page: intPtr(0)}, Window: &Window{}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := verr.Fields()
	if len(fields) != 2 || fields[0] != "paging.page" || fields[1] != "window.days" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if got := verr.Get("window.days"); len(got) != 1 || got[0] != "days must be >= 1" {
		t.Fatalf("unexpected messages: %v", got)
	}
}

func TestValidateNil(t *testing.T) {
	t.Parallel()

	var p *pageParams
	if err := New().Validate(p); err != nil {
		t.Fatalf("nil pointer: %v", err)
	}
	if err := New().Validate(nil); err != nil {
		t.Fatalf("nil: %v", err)
	}
}
