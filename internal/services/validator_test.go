package services

import (
	"encoding/json"
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *OutputValidator {
	t.Helper()
	v, err := NewOutputValidator()
	if err != nil {
		t.Fatalf("NewOutputValidator: %v", err)
	}
	return v
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		output string
	}{
		{"answer", `{"type":"answer","text":"42","sources":["installed-context"]}`},
		{"recommendation", `{"type":"recommendation","text":"Try this skill","skill":{"id":"8f0e6c1e-4e43-4a8a-9d1e-0c1b2a3d4e5f","title":"K8s","priceUnits":500000,"priceStx":0.5}}`},
		{"no skills", `{"type":"no_skills_found","text":"Nothing matched"}`},
		{"error", `{"type":"error","text":"completion failed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := v.Validate(json.RawMessage(tc.output))
			if err != nil {
				t.Fatalf("expected valid output, got: %v", err)
			}
			if out.Type == "" {
				t.Fatal("decoded output has no type")
			}
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		output string
	}{
		{"not JSON", `answer: 42`},
		{"missing type", `{"text":"42"}`},
		{"unknown type", `{"type":"poem","text":"roses"}`},
		{"empty text", `{"type":"answer","text":""}`},
		{"recommendation without skill", `{"type":"recommendation","text":"see skill"}`},
		{"answer with skill", `{"type":"answer","text":"x","skill":{"id":"8f0e6c1e-4e43-4a8a-9d1e-0c1b2a3d4e5f","title":"K8s","priceUnits":1}}`},
		{"leaked content reference", `{"type":"recommendation","text":"x","skill":{"id":"8f0e6c1e-4e43-4a8a-9d1e-0c1b2a3d4e5f","title":"K8s","priceUnits":1,"contentReference":"ipfs://secret"}}`},
		{"negative price", `{"type":"recommendation","text":"x","skill":{"id":"8f0e6c1e-4e43-4a8a-9d1e-0c1b2a3d4e5f","title":"K8s","priceUnits":-1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(json.RawMessage(tc.output))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got: %v", err)
			}
		})
	}
}
