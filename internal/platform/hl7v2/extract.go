package hl7v2

import (
	"slices"
	"strings"
)

// Extractor reads one segment into the accumulated message. It returns
// the updated message, or a *SkipError and the message unchanged when the
// segment is too short to use.
type Extractor interface {
	Extract(msg Message, seg Segment) (Message, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(msg Message, seg Segment) (Message, error)

// Extract calls f(msg, seg).
func (f ExtractorFunc) Extract(msg Message, seg Segment) (Message, error) {
	return f(msg, seg)
}

// DefaultExtractors returns the extractor table for MSH, PID and OBX.
func DefaultExtractors() map[string]Extractor {
	return map[string]Extractor{
		SegmentMSH: ExtractorFunc(extractHeader),
		SegmentPID: ExtractorFunc(extractPatient),
		SegmentOBX: ExtractorFunc(extractObservation),
	}
}

// oruTrigger is matched as a substring of MSH-9.
const oruTrigger = "ORU^R01"

// extractHeader never skips: every field it reads is optional.
func extractHeader(msg Message, seg Segment) (Message, error) {
	msgType := seg.Field(8)
	if strings.Contains(msgType, oruTrigger) {
		msg.MessageType = MessageTypeORU_R01
	}
	msg.Header = readHeader(seg)
	return msg, nil
}

func readHeader(seg Segment) Header {
	h := Header{
		SendingApplication:   seg.Field(2),
		SendingFacility:      seg.Field(3),
		ReceivingApplication: seg.Field(4),
		ReceivingFacility:    seg.Field(5),
		MessageCode:          component(seg.Field(8), 0),
		TriggerEvent:         component(seg.Field(8), 1),
		ControlID:            seg.Field(9),
		ProcessingID:         seg.Field(10),
		Version:              seg.Field(11),
	}
	if ts := seg.Field(6); ts != "" {
		if t, err := parseTimestamp(ts); err == nil {
			h.Timestamp = &t
		}
	}
	return h
}

const (
	pidPatientID   = 3
	pidName        = 5
	pidDateOfBirth = 7
	pidGender      = 8
	pidAddress     = 11
)

// extractPatient needs PID-3. A shorter PID is skipped as a whole.
func extractPatient(msg Message, seg Segment) (Message, error) {
	if !seg.Has(pidPatientID) {
		return msg, &SkipError{Segment: SegmentPID, Required: pidPatientID + 1, Got: len(seg.Fields)}
	}

	p := msg.Patient
	p.PatientID = seg.Field(pidPatientID)

	if name := seg.Field(pidName); name != "" {
		parts := components(name)
		p.LastName = parts[0]
		if len(parts) > 1 {
			p.FirstName = parts[1]
		}
		if len(parts) > 2 {
			p.MiddleName = parts[2]
		}
	}

	if dob := seg.Field(pidDateOfBirth); dob != "" {
		if t, ok := parseDate(dob); ok {
			p.DateOfBirth = &t
		}
	}

	if g := seg.Field(pidGender); g != "" {
		p.Gender = parseGender(g)
	}

	if seg.Has(pidAddress) {
		p.Address = seg.Field(pidAddress)
	}

	msg.Patient = p
	return msg, nil
}

func parseGender(code string) Gender {
	switch strings.ToUpper(code) {
	case "M":
		return GenderMale
	case "F":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

const (
	obxValueType      = 2
	obxIdentifier     = 3
	obxValue          = 5
	obxUnits          = 6
	obxReferenceRange = 7
	obxAbnormalFlag   = 8
)

// extractObservation needs OBX-6. Once that holds, an observation is
// always appended, even if the other fields are missing.
func extractObservation(msg Message, seg Segment) (Message, error) {
	if !seg.Has(obxUnits) {
		return msg, &SkipError{Segment: SegmentOBX, Required: obxUnits + 1, Got: len(seg.Fields)}
	}

	obs := Observation{
		ValueType:      seg.Field(obxValueType),
		Value:          seg.Field(obxValue),
		Units:          seg.Field(obxUnits),
		ReferenceRange: seg.Field(obxReferenceRange),
		Status:         parseAbnormalFlag(seg.Field(obxAbnormalFlag)),
	}
	if id := seg.Field(obxIdentifier); id != "" {
		parts := components(id)
		obs.ObservationID = parts[0]
		if len(parts) > 1 {
			obs.Description = parts[1]
		}
	}

	// Clip so the append never writes into an array an earlier
	// accumulator still references.
	msg.Observations = append(slices.Clip(msg.Observations), obs)
	return msg, nil
}

func parseAbnormalFlag(flag string) ObservationStatus {
	switch strings.ToUpper(flag) {
	case "N":
		return ObservationStatusNormal
	case "A", "H", "L":
		return ObservationStatusAbnormal
	case "C":
		return ObservationStatusCritical
	default:
		return ObservationStatusUnknown
	}
}
