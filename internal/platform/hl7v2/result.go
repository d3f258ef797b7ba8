package hl7v2

import (
	"fmt"
	"time"
)

// MessageType identifies the message structure announced in MSH-9.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeORU_R01             // Observation result
	MessageTypeADT_A01             // Admit patient
	MessageTypeADT_A03             // Discharge patient
	MessageTypeORM_O01             // Order message
)

var messageTypeNames = [...]string{"Unknown", "ORU_R01", "ADT_A01", "ADT_A03", "ORM_O01"}

func (t MessageType) String() string {
	if t < 0 || int(t) >= len(messageTypeNames) {
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
	return messageTypeNames[t]
}

// MarshalText renders the type by name so JSON and YAML output stay readable.
func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Gender is the administrative sex from PID-8.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

var genderNames = [...]string{"Unknown", "Male", "Female"}

func (g Gender) String() string {
	if g < 0 || int(g) >= len(genderNames) {
		return fmt.Sprintf("Gender(%d)", int(g))
	}
	return genderNames[g]
}

func (g Gender) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// ObservationStatus is the interpretation of the OBX-8 abnormal flag.
type ObservationStatus int

const (
	ObservationStatusUnknown ObservationStatus = iota
	ObservationStatusNormal
	ObservationStatusAbnormal
	ObservationStatusCritical
)

var observationStatusNames = [...]string{"Unknown", "Normal", "Abnormal", "Critical"}

func (s ObservationStatus) String() string {
	if s < 0 || int(s) >= len(observationStatusNames) {
		return fmt.Sprintf("ObservationStatus(%d)", int(s))
	}
	return observationStatusNames[s]
}

func (s ObservationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Message is the structured result of decoding one HL7v2 message.
// A Message returned by Parse is never modified afterwards and may be
// shared between goroutines.
type Message struct {
	MessageType  MessageType   `json:"messageType" yaml:"messageType"`
	Header       Header        `json:"header" yaml:"header"`
	Patient      Patient       `json:"patient" yaml:"patient"`
	Observations []Observation `json:"observations" yaml:"observations"`
	Warnings     []Warning     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Header carries the MSH routing metadata.
type Header struct {
	SendingApplication   string     `json:"sendingApplication" yaml:"sendingApplication"`     // MSH-3
	SendingFacility      string     `json:"sendingFacility" yaml:"sendingFacility"`           // MSH-4
	ReceivingApplication string     `json:"receivingApplication" yaml:"receivingApplication"` // MSH-5
	ReceivingFacility    string     `json:"receivingFacility" yaml:"receivingFacility"`       // MSH-6
	Timestamp            *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`   // MSH-7
	MessageCode          string     `json:"messageCode" yaml:"messageCode"`                   // MSH-9.1
	TriggerEvent         string     `json:"triggerEvent" yaml:"triggerEvent"`                 // MSH-9.2
	ControlID            string     `json:"controlId" yaml:"controlId"`                       // MSH-10
	ProcessingID         string     `json:"processingId" yaml:"processingId"`                 // MSH-11
	Version              string     `json:"version" yaml:"version"`                           // MSH-12
}

// Patient holds the PID demographics.
type Patient struct {
	PatientID   string     `json:"patientId" yaml:"patientId"`
	LastName    string     `json:"lastName" yaml:"lastName"`
	FirstName   string     `json:"firstName" yaml:"firstName"`
	MiddleName  string     `json:"middleName" yaml:"middleName"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty" yaml:"dateOfBirth,omitempty"`
	Gender      Gender     `json:"gender" yaml:"gender"`
	Address     string     `json:"address,omitempty" yaml:"address,omitempty"`
}

// Observation holds one OBX result.
type Observation struct {
	ObservationID  string            `json:"observationId" yaml:"observationId"`
	Description    string            `json:"description" yaml:"description"`
	Value          string            `json:"value" yaml:"value"`
	Units          string            `json:"units" yaml:"units"`
	ReferenceRange string            `json:"referenceRange" yaml:"referenceRange"`
	ValueType      string            `json:"valueType" yaml:"valueType"`
	Status         ObservationStatus `json:"status" yaml:"status"`
}

// Warning records a segment that was recognised but dropped because it
// did not carry enough fields. Line is 1-based over the non-empty lines.
type Warning struct {
	Line    int    `json:"line" yaml:"line"`
	Segment string `json:"segment" yaml:"segment"`
	Reason  string `json:"reason" yaml:"reason"`
}
