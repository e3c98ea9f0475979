package r4

import (
	"strings"
)

// MedicationRequest represents a FHIR R4 MedicationRequest resource.
// In R4 the medication is a choice element: either an inline
// medicationCodeableConcept or a medicationReference pointing at a
// standalone Medication resource. At most one of the two is populated.
type MedicationRequest struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`

	Identifier []Identifier `json:"identifier,omitempty"`

	Status       string           `json:"status"` // active | on-hold | cancelled | completed | entered-in-error | stopped | draft | unknown
	StatusReason *CodeableConcept `json:"statusReason,omitempty"`

	Intent string `json:"intent"` // proposal | plan | order | original-order | reflex-order | filler-order | instance-order | option

	Category []CodeableConcept `json:"category,omitempty"`
	Priority string            `json:"priority,omitempty"` // routine | urgent | asap | stat

	DoNotPerform bool `json:"doNotPerform,omitempty"`

	// medication[x] choice element
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`

	Subject   Reference  `json:"subject"`
	Encounter *Reference `json:"encounter,omitempty"`

	AuthoredOn string     `json:"authoredOn,omitempty"`
	Requester  *Reference `json:"requester,omitempty"`
	Recorder   *Reference `json:"recorder,omitempty"`

	ReasonCode      []CodeableConcept `json:"reasonCode,omitempty"`
	ReasonReference []Reference       `json:"reasonReference,omitempty"`

	Note []Annotation `json:"note,omitempty"`

	DosageInstruction []Dosage         `json:"dosageInstruction,omitempty"`
	DispenseRequest   *DispenseRequest `json:"dispenseRequest,omitempty"`
	Substitution      *Substitution    `json:"substitution,omitempty"`

	PriorPrescription *Reference `json:"priorPrescription,omitempty"`
}

// DispenseRequest contains information about the requested dispensing.
type DispenseRequest struct {
	ValidityPeriod         *Period    `json:"validityPeriod,omitempty"`
	NumberOfRepeatsAllowed int        `json:"numberOfRepeatsAllowed,omitempty"`
	Quantity               *Quantity  `json:"quantity,omitempty"`
	ExpectedSupplyDuration *Quantity  `json:"expectedSupplyDuration,omitempty"`
	Performer              *Reference `json:"performer,omitempty"`
}

// Substitution contains information about medication substitution.
type Substitution struct {
	AllowedBoolean         *bool            `json:"allowedBoolean,omitempty"`
	AllowedCodeableConcept *CodeableConcept `json:"allowedCodeableConcept,omitempty"`
	Reason                 *CodeableConcept `json:"reason,omitempty"`
}

// Dosage contains dosage instructions for the medication.
type Dosage struct {
	Sequence              int               `json:"sequence,omitempty"`
	Text                  string            `json:"text,omitempty"`
	AdditionalInstruction []CodeableConcept `json:"additionalInstruction,omitempty"`
	PatientInstruction    string            `json:"patientInstruction,omitempty"`
	AsNeededBoolean       *bool             `json:"asNeededBoolean,omitempty"`
	Site                  *CodeableConcept  `json:"site,omitempty"`
	Route                 *CodeableConcept  `json:"route,omitempty"`
	Method                *CodeableConcept  `json:"method,omitempty"`
	DoseAndRate           []DoseAndRate     `json:"doseAndRate,omitempty"`
	MaxDosePerPeriod      *Ratio            `json:"maxDosePerPeriod,omitempty"`
}

// DoseAndRate contains dose/rate information.
type DoseAndRate struct {
	Type         *CodeableConcept `json:"type,omitempty"`
	DoseQuantity *Quantity        `json:"doseQuantity,omitempty"`
	RateRatio    *Ratio           `json:"rateRatio,omitempty"`
	RateQuantity *Quantity        `json:"rateQuantity,omitempty"`
}

// GetPatientID extracts the patient ID from the Subject reference.
func (m *MedicationRequest) GetPatientID() string {
	if m.Subject.Reference != "" {
		return ExtractIDFromReference(m.Subject.Reference)
	}
	return ""
}

// HasInlineMedication reports whether the medication is carried inline
// as a CodeableConcept.
func (m *MedicationRequest) HasInlineMedication() bool {
	return m.MedicationCodeableConcept != nil
}

// MedicationRef returns the external medication reference string, or ""
// when the medication is inline or absent.
func (m *MedicationRequest) MedicationRef() string {
	if m.MedicationReference == nil {
		return ""
	}
	return m.MedicationReference.Reference
}

// IsActive reports whether the prescription is in the active status.
func (m *MedicationRequest) IsActive() bool {
	return strings.EqualFold(m.Status, StatusActive)
}
