package validation

import (
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
)

type signup struct {
	FullName string `json:"full_name" validate:"notblank,singleline,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"signup_role"`
}

type window struct {
	Timezone string `json:"timezone" validate:"timezone"`
	Start    int    `json:"work_start_minute" validate:"gte=0,lte=1440"`
	End      int    `json:"work_end_minute" validate:"gtfield=Start,lte=1440"`
	Date     string `json:"date" validate:"omitempty,date"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()
	fields := v.Struct(signup{FullName: "  ", Email: "nope", Role: "admin"})
	assert.Equal(t, map[string]string{
		"full_name": "is required",
		"email":     "must be a valid email address",
		"role":      "must be farmer or agronomist",
	}, fields)
}

func TestStructValid(t *testing.T) {
	v := New()
	assert.Nil(t, v.Struct(signup{FullName: "Wanjiru", Email: "w@example.com", Role: "farmer"}))
	assert.Nil(t, v.Struct(window{Timezone: "Africa/Nairobi", Start: 540, End: 1020, Date: "2026-03-02"}))
}

func TestCustomRules(t *testing.T) {
	v := New()
	fields := v.Struct(window{Timezone: "Mars/Base", Start: 600, End: 540, Date: "02/03/2026"})
	assert.Equal(t, "must be an IANA time zone", fields["timezone"])
	assert.Equal(t, "must be a date formatted YYYY-MM-DD", fields["date"])
	assert.Contains(t, fields, "work_end_minute")
}

func TestSingleLineRejectsHeaderBreaks(t *testing.T) {
	v := New()
	fields := v.Struct(signup{FullName: "Eve\r\nBcc: victim@example.com", Email: "eve@example.com", Role: "farmer"})
	assert.Equal(t, map[string]string{"full_name": "must not contain line breaks or control characters"}, fields)

	assert.Contains(t, v.Struct(signup{FullName: "Eve\tB", Email: "eve@example.com", Role: "farmer"}), "full_name")
	assert.Nil(t, v.Struct(signup{FullName: "Amina Wanjiru-Odhiambo", Email: "a@example.com", Role: "farmer"}))
}
