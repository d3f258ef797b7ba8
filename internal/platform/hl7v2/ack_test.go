package hl7v2

import (
	"strings"
	"testing"
	"time"
)

// ackFields splits an ACK into its MSH and MSA field lists.
func ackFields(t *testing.T, ack []byte) (msh, msa []string) {
	t.Helper()
	lines := strings.Split(string(ack), "\r")
	if len(lines) != 2 {
		t.Fatalf("expected 2 segments in ACK, got %d: %q", len(lines), ack)
	}
	return strings.Split(lines[0], "|"), strings.Split(lines[1], "|")
}

func TestBuildACK_Accept(t *testing.T) {
	msh, msa := ackFields(t, BuildACK(sampleORU, AckAccept, ""))

	if msh[0] != "MSH" || msh[1] != `^~\&` {
		t.Errorf("unexpected MSH prefix: %v", msh[:2])
	}
	if msh[2] != "EMR" || msh[3] != "CLINIC" {
		t.Errorf("expected sender to be the original receiver, got %q/%q", msh[2], msh[3])
	}
	if msh[4] != "LAB" || msh[5] != "HOSPITAL" {
		t.Errorf("expected receiver to be the original sender, got %q/%q", msh[4], msh[5])
	}
	if msh[8] != "ACK^R01" {
		t.Errorf("expected MSH-9 'ACK^R01', got %q", msh[8])
	}
	if !strings.HasPrefix(msh[9], "ACK") || len(msh[9]) != 19 {
		t.Errorf("unexpected control ID %q", msh[9])
	}
	if msh[11] != "2.5" {
		t.Errorf("expected version 2.5, got %q", msh[11])
	}

	if len(msa) != 3 {
		t.Fatalf("expected MSA without text, got %v", msa)
	}
	if msa[1] != "AA" || msa[2] != "12345" {
		t.Errorf("unexpected MSA: %v", msa)
	}
}

func TestBuildACK_RejectWithText(t *testing.T) {
	_, msa := ackFields(t, BuildACK(sampleORU, AckReject, "bad | input"))

	if msa[1] != "AR" {
		t.Errorf("expected AR, got %q", msa[1])
	}
	if len(msa) != 4 || msa[3] != `bad \F\ input` {
		t.Errorf("expected escaped MSA-3, got %v", msa)
	}
}

func TestBuildACK_RoutingFieldsKeptInWireForm(t *testing.T) {
	raw := `MSH|^~\&|LAB^LIS01|HOSP\T\CO|EMR|CLINIC|202508291030||ORU^R01|ID\F\42|P|2.5`
	msh, msa := ackFields(t, BuildACK(raw, AckAccept, ""))

	if msa[2] != `ID\F\42` {
		t.Errorf("expected MSA-2 copied unchanged, got %q", msa[2])
	}
	if msh[4] != "LAB^LIS01" || msh[5] != `HOSP\T\CO` {
		t.Errorf("expected receiver copied unchanged, got %q/%q", msh[4], msh[5])
	}
}

func TestBuildACK_WithoutHeader(t *testing.T) {
	msh, msa := ackFields(t, BuildACK("THIS IS NOT HL7", AckReject, ""))

	if msh[8] != "ACK" {
		t.Errorf("expected bare ACK type, got %q", msh[8])
	}
	if msh[11] != defaultVersion {
		t.Errorf("expected default version, got %q", msh[11])
	}
	if msa[1] != "AR" || msa[2] != "" {
		t.Errorf("unexpected MSA: %v", msa)
	}
}

func TestBuildACK_Timestamp(t *testing.T) {
	now := time.Date(2025, time.August, 29, 10, 30, 5, 0, time.UTC)
	h, _ := ReadHeader(sampleORU)
	msh, _ := ackFields(t, buildACK(h, AckError, "", now))
	if msh[6] != "20250829103005" {
		t.Errorf("expected MSH-7 '20250829103005', got %q", msh[6])
	}
}

func TestBuildACK_IsParseable(t *testing.T) {
	h, ok := ReadHeader(string(BuildACK(sampleORU, AckAccept, "")))
	if !ok {
		t.Fatal("expected ACK to start with a readable MSH")
	}
	if h.MessageCode != "ACK" || h.TriggerEvent != "R01" {
		t.Errorf("unexpected ACK type %q^%q", h.MessageCode, h.TriggerEvent)
	}
}

func TestEscape(t *testing.T) {
	tests := map[string]string{
		"plain":    "plain",
		"a|b":      `a\F\b`,
		"a^b&c~d":  `a\S\b\T\c\R\d`,
		`back\sl`:  `back\E\sl`,
		`\F\ kept`: `\E\F\E\ kept`,
	}
	for in, want := range tests {
		if got := escape(in); got != want {
			t.Errorf("escape(%q) = %q, want %q", in, got, want)
		}
	}
}
