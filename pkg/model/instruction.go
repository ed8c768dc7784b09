package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata integrity faults reported by InstructionFromFields.
var (
	ErrMissingEnqueueTime = errors.New("missing enqueue time")
	ErrInvalidPriority    = errors.New("invalid priority")
)

// Metadata field names persisted for each waiting instruction.
const (
	FieldCode       = "instruction_code"
	FieldContainer  = "container_code"
	FieldFrom       = "location_from"
	FieldTo         = "location_to"
	FieldPriority   = "priority"
	FieldEnqueuedAt = "enqueued_at"
)

// Instruction is a transport task moving a container between two locations.
type Instruction struct {
	Code      string `json:"instruction_code" yaml:"instruction_code"`
	Container string `json:"container_code,omitempty" yaml:"container_code"`
	From      string `json:"location_from" yaml:"location_from"`
	To        string `json:"location_to" yaml:"location_to"`
	Priority  int    `json:"priority" yaml:"priority"`

	// EnqueuedAt is the submission time in Unix milliseconds.
	EnqueuedAt int64 `json:"enqueued_at,omitempty" yaml:"-"`
}

// InstructionRequest is the wire form of a submission. Priority is a pointer
// so that an omitted priority can be told apart from priority 0.
type InstructionRequest struct {
	Code      string `json:"instruction_code" yaml:"instruction_code"`
	Container string `json:"container_code" yaml:"container_code"`
	From      string `json:"location_from" yaml:"location_from"`
	To        string `json:"location_to" yaml:"location_to"`
	Priority  *int   `json:"priority" yaml:"priority"`
}

// Validate reports every missing required field.
func (r *InstructionRequest) Validate() []FieldError {
	var errs []FieldError
	required := []struct{ field, value string }{
		{FieldCode, r.Code},
		{FieldContainer, r.Container},
		{FieldFrom, r.From},
		{FieldTo, r.To},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, FieldError{Field: f.field, Message: f.field + " is required"})
		}
	}
	if r.Priority == nil {
		errs = append(errs, FieldError{Field: FieldPriority, Message: "priority is required"})
	}
	return errs
}

// Instruction converts a validated request. Callers must run Validate first.
func (r *InstructionRequest) Instruction() Instruction {
	in := Instruction{
		Code:      strings.TrimSpace(r.Code),
		Container: strings.TrimSpace(r.Container),
		From:      strings.TrimSpace(r.From),
		To:        strings.TrimSpace(r.To),
	}
	if r.Priority != nil {
		in.Priority = *r.Priority
	}
	return in
}

// Fields flattens the instruction into its metadata record.
func (i Instruction) Fields() map[string]string {
	return map[string]string{
		FieldCode:       i.Code,
		FieldContainer:  i.Container,
		FieldFrom:       i.From,
		FieldTo:         i.To,
		FieldPriority:   strconv.Itoa(i.Priority),
		FieldEnqueuedAt: strconv.FormatInt(i.EnqueuedAt, 10),
	}
}

// InstructionFromFields rebuilds an instruction from its metadata record.
// It fails with ErrInvalidPriority when the priority is absent or not an
// integer and with ErrMissingEnqueueTime when the enqueue time is absent,
// unparsable or not positive. The fields that did parse are still returned.
func InstructionFromFields(code string, fields map[string]string) (Instruction, error) {
	in := Instruction{
		Code:      code,
		Container: fields[FieldContainer],
		From:      fields[FieldFrom],
		To:        fields[FieldTo],
	}
	p, err := strconv.Atoi(fields[FieldPriority])
	if err != nil {
		return in, fmt.Errorf("instruction %s: %w %q", code, ErrInvalidPriority, fields[FieldPriority])
	}
	in.Priority = p

	ts, err := strconv.ParseInt(fields[FieldEnqueuedAt], 10, 64)
	if err != nil || ts <= 0 {
		return in, fmt.Errorf("instruction %s: %w", code, ErrMissingEnqueueTime)
	}
	in.EnqueuedAt = ts
	return in, nil
}
