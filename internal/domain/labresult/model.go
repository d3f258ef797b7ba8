package labresult

import (
	"time"

	"github.com/google/uuid"

	"github.com/hl7results/gateway/internal/platform/hl7v2"
)

// ErrorKind classifies a failed ProcessResult.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindInvalidArgument ErrorKind = "invalid_argument"
	ErrorKindInvalidFormat   ErrorKind = "invalid_format"
	ErrorKindInternal        ErrorKind = "internal"
)

// SourceUnknown is used when the caller does not identify the sender.
const SourceUnknown = "Unknown"

// ProcessCommand asks the service to decode one HL7v2 message.
type ProcessCommand struct {
	Message string
	Source  string
}

// ProcessResult is the outcome of one ProcessCommand. Exactly one of
// Message and ErrorMessage is set.
type ProcessResult struct {
	ID           uuid.UUID      `json:"id"`
	Success      bool           `json:"success"`
	Message      *hl7v2.Message `json:"message,omitempty"`
	ErrorKind    ErrorKind      `json:"errorKind,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	Source       string         `json:"source"`
	ProcessedAt  time.Time      `json:"processedAt"`
}

// processSummary is the response body of POST /hl7/process.
type processSummary struct {
	Success          bool            `json:"success"`
	ID               string          `json:"id"`
	ProcessedAt      time.Time       `json:"processedAt"`
	MessageType      string          `json:"messageType"`
	PatientID        string          `json:"patientId"`
	ObservationCount int             `json:"observationCount"`
	Warnings         []hl7v2.Warning `json:"warnings,omitempty"`
}

func newProcessSummary(r *ProcessResult) processSummary {
	return processSummary{
		Success:          true,
		ID:               r.ID.String(),
		ProcessedAt:      r.ProcessedAt,
		MessageType:      r.Message.MessageType.String(),
		PatientID:        r.Message.Patient.PatientID,
		ObservationCount: len(r.Message.Observations),
		Warnings:         r.Message.Warnings,
	}
}

// failureResponse is the response body for a failed ProcessResult.
type failureResponse struct {
	Success     bool      `json:"success"`
	ID          string    `json:"id"`
	Code        ErrorKind `json:"code"`
	Error       string    `json:"error"`
	ProcessedAt time.Time `json:"processedAt"`
}

func newFailureResponse(r *ProcessResult) failureResponse {
	return failureResponse{
		Success:     false,
		ID:          r.ID.String(),
		Code:        r.ErrorKind,
		Error:       r.ErrorMessage,
		ProcessedAt: r.ProcessedAt,
	}
}

// parsedMessage is the response body of POST /hl7/parse.
type parsedMessage struct {
	Success     bool           `json:"success"`
	ID          string         `json:"id"`
	ProcessedAt time.Time      `json:"processedAt"`
	Message     *hl7v2.Message `json:"message"`
}
