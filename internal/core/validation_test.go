package core

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================================
// ValidateField Tests
// ============================================================================

func TestValidateField(t *testing.T) {
	v := testValidator() // today is 2026-06-15

	tests := []struct {
		name    string
		field   Field
		value   string
		wantErr bool
	}{
		// studentCode
		{name: "code 6 chars", field: FieldStudentCode, value: "SV0001"},
		{name: "code 12 chars", field: FieldStudentCode, value: "ABCDEF123456"},
		{name: "code trimmed", field: FieldStudentCode, value: "  SV0001 "},
		{name: "code required", field: FieldStudentCode, value: "", wantErr: true},
		{name: "code too short", field: FieldStudentCode, value: "SV001", wantErr: true},
		{name: "code too long", field: FieldStudentCode, value: "ABCDEF1234567", wantErr: true},
		{name: "code with dash", field: FieldStudentCode, value: "SV-0001", wantErr: true},
		{name: "code with diacritic", field: FieldStudentCode, value: "SVĐ0001", wantErr: true},

		// names
		{name: "first name", field: FieldFirstName, value: "Nguyễn Văn"},
		{name: "first name required", field: FieldFirstName, value: "  ", wantErr: true},
		{name: "last name 50 runes", field: FieldLastName, value: strings.Repeat("ễ", 50)},
		{name: "last name 51 runes", field: FieldLastName, value: strings.Repeat("a", 51), wantErr: true},

		// email
		{name: "email optional", field: FieldEmail, value: ""},
		{name: "email valid", field: FieldEmail, value: "an.nguyen@example.com"},
		{name: "email no tld", field: FieldEmail, value: "an@example", wantErr: true},
		{name: "email no at", field: FieldEmail, value: "an.example.com", wantErr: true},
		{name: "email with space", field: FieldEmail, value: "an nguyen@example.com", wantErr: true},

		// birthDate
		{name: "birth date optional", field: FieldBirthDate, value: ""},
		{name: "birth date exactly 15 years", field: FieldBirthDate, value: "2011-06-15"},
		{name: "birth date one day short of 15", field: FieldBirthDate, value: "2011-06-16", wantErr: true},
		{name: "birth date exactly 100 years", field: FieldBirthDate, value: "1926-06-15"},
		{name: "birth date over 100 years", field: FieldBirthDate, value: "1926-06-14", wantErr: true},
		{name: "birth date not a calendar day", field: FieldBirthDate, value: "2003-02-30", wantErr: true},
		{name: "birth date wrong format", field: FieldBirthDate, value: "15/03/2004", wantErr: true},

		// scores
		{name: "score optional", field: FieldMathScore, value: ""},
		{name: "score zero", field: FieldMathScore, value: "0"},
		{name: "score ten", field: FieldLiteratureScore, value: "10"},
		{name: "score decimal", field: FieldEnglishScore, value: "7.75"},
		{name: "score negative", field: FieldMathScore, value: "-0.5", wantErr: true},
		{name: "score above ten", field: FieldMathScore, value: "10.01", wantErr: true},
		{name: "score not numeric", field: FieldEnglishScore, value: "eight", wantErr: true},

		// other
		{name: "hometown free text", field: FieldHometown, value: "Hà Nội"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateField(tt.field, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateField(%s, %q) = %v, wantErr %v", tt.field, tt.value, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var fe FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error type = %T, want FieldError", err)
			}
			if fe.Field != tt.field || fe.Message == "" {
				t.Errorf("FieldError = %+v, want field %s with message", fe, tt.field)
			}
		})
	}
}

// ============================================================================
// ValidateRecord Tests
// ============================================================================

func TestValidateRecord(t *testing.T) {
	v := testValidator()

	valid := Candidate{
		FieldStudentCode: "SV2024001",
		FieldFirstName:   "Nguyễn Văn",
		FieldLastName:    "An",
		FieldEmail:       "an@example.com",
		FieldBirthDate:   "2004-03-15",
		FieldMathScore:   "8.5",
	}

	t.Run("valid candidate has no errors", func(t *testing.T) {
		errs := v.ValidateRecord(valid)
		if errs == nil || len(errs) != 0 {
			t.Errorf("ValidateRecord() = %v, want empty map", errs)
		}
	})

	t.Run("missing keys are empty values", func(t *testing.T) {
		errs := v.ValidateRecord(Candidate{})
		for _, f := range []Field{FieldStudentCode, FieldFirstName, FieldLastName} {
			if _, ok := errs[f]; !ok {
				t.Errorf("expected error for required field %s", f)
			}
		}
		if len(errs) != 3 {
			t.Errorf("got %d errors, want 3: %v", len(errs), errs)
		}
	})

	t.Run("every broken field reported", func(t *testing.T) {
		bad := Candidate{
			FieldStudentCode:  "x",
			FieldFirstName:    "A",
			FieldLastName:     "B",
			FieldEmail:        "nope",
			FieldEnglishScore: "12",
		}
		errs := v.ValidateRecord(bad)
		want := []Field{FieldStudentCode, FieldEmail, FieldEnglishScore}
		list := errs.List()
		if len(list) != len(want) {
			t.Fatalf("List() = %v, want fields %v", list, want)
		}
		for i, f := range want {
			if list[i].Field != f {
				t.Errorf("List()[%d].Field = %s, want %s (display order)", i, list[i].Field, f)
			}
		}
	})
}

func TestFieldErrors_ListUnknownFieldsLast(t *testing.T) {
	errs := FieldErrors{
		"zeta":           "z",
		FieldEmail:       "e",
		"alpha":          "a",
		FieldStudentCode: "c",
		"mid":            "m",
	}
	want := []Field{FieldStudentCode, FieldEmail, "alpha", "mid", "zeta"}
	list := errs.List()
	if len(list) != len(want) {
		t.Fatalf("List() = %v, want fields %v", list, want)
	}
	for i, f := range want {
		if list[i].Field != f {
			t.Errorf("List()[%d].Field = %s, want %s", i, list[i].Field, f)
		}
	}
}

func TestFieldErrors_Error(t *testing.T) {
	errs := FieldErrors{
		FieldEmail:       "is not a valid email address",
		FieldStudentCode: "is required",
	}
	want := "studentCode: is required; email: is not a valid email address"
	if got := errs.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCandidateFields(t *testing.T) {
	c := Candidate{
		FieldStudentCode:     " SV2024001 ",
		FieldFirstName:       "An",
		FieldLastName:        "Nguyễn",
		FieldMathScore:       "9",
		FieldLiteratureScore: "",
	}
	f := CandidateFields(c)
	if f.StudentCode != "SV2024001" {
		t.Errorf("StudentCode = %q, want trimmed", f.StudentCode)
	}
	if f.MathScore == nil || *f.MathScore != 9 {
		t.Errorf("MathScore = %v, want 9", f.MathScore)
	}
	if f.LiteratureScore != nil {
		t.Errorf("LiteratureScore = %v, want nil", *f.LiteratureScore)
	}
}
