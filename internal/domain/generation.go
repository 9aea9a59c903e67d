package domain

import (
	"encoding/json"
	"time"
)

// GenerationMode decides which component owns the terminal write of a job.
type GenerationMode string

const (
	// ModeBlocking jobs are finished inside the submitting request.
	ModeBlocking GenerationMode = "blocking"
	// ModeNonBlocking jobs are finished by the webhook receiver.
	ModeNonBlocking GenerationMode = "nonblocking"
)

// Valid reports whether m is a known mode.
func (m GenerationMode) Valid() bool {
	return m == ModeBlocking || m == ModeNonBlocking
}

// GenerationStatus enumerates job lifecycle states.
type GenerationStatus string

const (
	StatusProcessing GenerationStatus = "processing"
	StatusSucceeded  GenerationStatus = "succeeded"
	StatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s GenerationStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// GenerationJob is one request to transform an input photo into a generated image.
type GenerationJob struct {
	ID           string           `json:"id"`
	TemplateID   string           `json:"template_id"`
	Mode         GenerationMode   `json:"mode"`
	Provider     string           `json:"provider"`
	Status       GenerationStatus `json:"status"`
	ResultImage  string           `json:"result_image,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Properties   json.RawMessage  `json:"properties,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewGeneration carries the fields fixed at creation time.
type NewGeneration struct {
	TemplateID string
	Mode       GenerationMode
	Provider   string
	Properties map[string]any
}

// Outcome is the terminal state requested for a job.
type Outcome struct {
	Status       GenerationStatus
	ResultImage  string
	ErrorMessage string
}

// Succeeded builds a success outcome.
func Succeeded(resultImage string) Outcome {
	return Outcome{Status: StatusSucceeded, ResultImage: resultImage}
}

// Failed builds a failure outcome.
func Failed(message string) Outcome {
	return Outcome{Status: StatusFailed, ErrorMessage: message}
}

// Validate checks that the outcome is terminal and carries exactly the field matching its status.
func (o Outcome) Validate() error {
	switch o.Status {
	case StatusSucceeded:
		if o.ResultImage == "" {
			return NewError(ErrInvalidRequest, "succeeded outcome requires a result image")
		}
	case StatusFailed:
		if o.ErrorMessage == "" {
			return NewError(ErrInvalidRequest, "failed outcome requires an error message")
		}
	default:
		return NewError(ErrInvalidRequest, "outcome status must be terminal")
	}
	return nil
}

// StatusEvent is published whenever a job transition is actually applied.
type StatusEvent struct {
	JobID        string           `json:"job_id"`
	Status       GenerationStatus `json:"status"`
	ResultImage  string           `json:"result_image,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// EventFromJob projects the observable fields of a job.
func EventFromJob(job GenerationJob) StatusEvent {
	return StatusEvent{
		JobID:        job.ID,
		Status:       job.Status,
		ResultImage:  job.ResultImage,
		ErrorMessage: job.ErrorMessage,
		UpdatedAt:    job.UpdatedAt,
	}
}
