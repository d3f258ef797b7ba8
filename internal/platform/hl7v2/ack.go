package hl7v2

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AckCode is the MSA-1 acknowledgment code.
type AckCode string

const (
	AckAccept AckCode = "AA"
	AckError  AckCode = "AE"
	AckReject AckCode = "AR"
)

// defaultVersion is used in an ACK when the incoming version is unknown.
const defaultVersion = "2.5"

// BuildACK creates an acknowledgment for the raw incoming message.
//
// The ACK swaps the sending and receiving application/facility of the
// incoming header and references its control ID in MSA-2. Those values
// are copied in wire form. text, if not empty, is escaped into MSA-3.
// When raw has no readable MSH segment the ACK is still produced, with
// empty routing fields.
func BuildACK(raw string, code AckCode, text string) []byte {
	in, _ := ReadHeader(raw)
	return buildACK(in, code, text, time.Now().UTC())
}

func buildACK(in Header, code AckCode, text string, now time.Time) []byte {
	version := in.Version
	if version == "" {
		version = defaultVersion
	}
	msgType := "ACK"
	if in.TriggerEvent != "" {
		msgType += ComponentSeparator + in.TriggerEvent
	}

	msh := []string{
		SegmentMSH,
		`^~\&`,
		in.ReceivingApplication,
		in.ReceivingFacility,
		in.SendingApplication,
		in.SendingFacility,
		now.Format("20060102150405"),
		"",
		msgType,
		"ACK" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		"P",
		version,
	}
	msa := []string{"MSA", string(code), in.ControlID}
	if text != "" {
		msa = append(msa, escape(text))
	}

	return []byte(strings.Join(msh, FieldSeparator) + "\r" + strings.Join(msa, FieldSeparator))
}

// escape applies HL7v2 escape sequences to delimiter characters.
func escape(s string) string {
	if !strings.ContainsAny(s, `|^~\&`) {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\E\`,
		"|", `\F\`,
		"^", `\S\`,
		"~", `\R\`,
		"&", `\T\`,
	)
	return r.Replace(s)
}
