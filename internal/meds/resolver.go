// Package meds resolves human-readable medication names from
// MedicationRequest resources.
package meds

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eircare/smart-meds/internal/fhir/r4"
)

// Fallback names returned when a prescription carries no usable
// medication details. ResolveName never returns an empty string.
const (
	NameInvalidData = "Invalid prescription data"
	NameUnnamed     = "Unnamed Medication"
	NameNotFound    = "Error: medication details not found"
)

// MedicationReader fetches the coded concept of a standalone Medication
// resource by ID. Implemented by the SMART client; nil disables
// reference resolution.
type MedicationReader interface {
	ReadMedicationCode(ctx context.Context, id string) (*r4.CodeableConcept, error)
}

// ReaderFunc adapts a function to the MedicationReader interface.
type ReaderFunc func(ctx context.Context, id string) (*r4.CodeableConcept, error)

// ReadMedicationCode calls f.
func (f ReaderFunc) ReadMedicationCode(ctx context.Context, id string) (*r4.CodeableConcept, error) {
	return f(ctx, id)
}

// ResolveName maps a prescription to a display string. Precedence:
// inline concept (free text shortcut when it has no codings), then the
// referenced Medication resource, then the fallback sentinels. Fetch
// failures and malformed references are logged and folded into the
// not-found fallback; they never propagate.
func ResolveName(ctx context.Context, rx *r4.MedicationRequest, reader MedicationReader, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rx == nil {
		return NameInvalidData
	}

	var code *r4.CodeableConcept
	switch {
	case rx.MedicationCodeableConcept != nil:
		code = rx.MedicationCodeableConcept
		if len(code.Coding) == 0 && code.Text != "" {
			return code.Text
		}
	case rx.MedicationReference != nil && rx.MedicationReference.Reference != "" && reader != nil:
		code = readByReference(ctx, rx.MedicationReference.Reference, reader, logger)
	}

	if code == nil {
		logger.Warn("could not resolve medication name",
			zap.String("prescription_id", rx.ID))
		return NameNotFound
	}
	return DisplayName(code)
}

// DisplayName selects a label from a coded concept: the first RxNorm
// coding with a display, then the first coding with a display, then the
// concept text, then the unnamed fallback.
func DisplayName(code *r4.CodeableConcept) string {
	if code == nil {
		return NameNotFound
	}
	for _, coding := range code.Coding {
		if coding.System == r4.SystemRxNorm && coding.Display != "" {
			return coding.Display
		}
	}
	for _, coding := range code.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	if code.Text != "" {
		return code.Text
	}
	return NameUnnamed
}

// readByReference fetches the code of a referenced Medication resource.
// Returns nil on a malformed reference or any fetch failure.
func readByReference(ctx context.Context, ref string, reader MedicationReader, logger *zap.Logger) *r4.CodeableConcept {
	if !strings.Contains(ref, "/") {
		logger.Error("invalid medication reference format", zap.String("reference", ref))
		return nil
	}
	medID := r4.ExtractIDFromReference(ref)
	code, err := reader.ReadMedicationCode(ctx, medID)
	if err != nil {
		logger.Error("failed to read referenced medication",
			zap.String("medication_id", medID),
			zap.Error(err))
		return nil
	}
	return code
}
