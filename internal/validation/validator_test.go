package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Pincode string   `json:"pincode" validate:"required,pincode"`
	Color   string   `json:"color" validate:"omitempty,hexcolor"`
	Pattern string   `json:"pattern" validate:"omitempty,oneof=solid stripes"`
	Tags    []string `json:"tags" validate:"max=2"`
}

func TestStructPasses(t *testing.T) {
	if err := Struct(sample{Pincode: "110001", Color: "#dc2626", Pattern: "solid"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Pincode: "123", Color: "red", Pattern: "zigzag", Tags: []string{"a", "b", "c"}})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	want := map[string]string{
		"pincode": "pincode",
		"color":   "hexcolor",
		"pattern": "oneof",
		"tags":    "max",
	}
	if len(verr.Fields) != len(want) {
		t.Fatalf("got %d field errors: %+v", len(verr.Fields), verr.Fields)
	}
	for _, f := range verr.Fields {
		if want[f.Field] != f.Tag {
			t.Fatalf("unexpected field error %+v", f)
		}
	}
	if verr.HasTag("required") {
		t.Fatalf("no required rule should fail")
	}
}

func TestStructRequired(t *testing.T) {
	err := Struct(sample{})
	var verr *Error
	if !errors.As(err, &verr) || !verr.HasTag("required") {
		t.Fatalf("expected required failure, got %v", err)
	}
	if verr.Error() != "pincode is required" {
		t.Fatalf("message = %q", verr.Error())
	}
}

func TestPincodeCountsCharacters(t *testing.T) {
	if err := Struct(sample{Pincode: "abcdef"}); err != nil {
		t.Fatalf("six letters should pass the length rule: %v", err)
	}
	if err := Struct(sample{Pincode: "1234567"}); err == nil {
		t.Fatalf("seven characters should fail")
	}
}
