package r4

// Patient represents a FHIR R4 Patient resource.
type Patient struct {
	ResourceType         string         `json:"resourceType"`
	ID                   string         `json:"id,omitempty"`
	Meta                 *Meta          `json:"meta,omitempty"`
	Identifier           []Identifier   `json:"identifier,omitempty"`
	Active               bool           `json:"active,omitempty"`
	Name                 []HumanName    `json:"name,omitempty"`
	Telecom              []ContactPoint `json:"telecom,omitempty"`
	Gender               string         `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate            string         `json:"birthDate,omitempty"`
	DeceasedBoolean      *bool          `json:"deceasedBoolean,omitempty"`
	Address              []Address      `json:"address,omitempty"`
	MaritalStatus        *CodeableConcept `json:"maritalStatus,omitempty"`
	GeneralPractitioner  []Reference      `json:"generalPractitioner,omitempty"`
	ManagingOrganization *Reference       `json:"managingOrganization,omitempty"`
}

// GetOfficialName returns the patient's official name, or first available.
func (p *Patient) GetOfficialName() *HumanName {
	for i := range p.Name {
		if p.Name[i].Use == "official" {
			return &p.Name[i]
		}
	}
	if len(p.Name) > 0 {
		return &p.Name[0]
	}
	return nil
}

// GetFullName returns the patient's full name as a string, preferring the
// text rendering over assembled name parts.
func (p *Patient) GetFullName() string {
	name := p.GetOfficialName()
	if name == nil {
		return ""
	}
	return FormatHumanName(name)
}

// FormatHumanName renders a HumanName as "Given Family, Suffix".
func FormatHumanName(name *HumanName) string {
	if name == nil {
		return ""
	}
	if name.Text != "" {
		return name.Text
	}
	result := ""
	for _, prefix := range name.Prefix {
		result += prefix + " "
	}
	for _, g := range name.Given {
		if result != "" && result[len(result)-1] != ' ' {
			result += " "
		}
		result += g
	}
	if name.Family != "" {
		if result != "" && result[len(result)-1] != ' ' {
			result += " "
		}
		result += name.Family
	}
	for _, suffix := range name.Suffix {
		result += ", " + suffix
	}
	return result
}

// Medication represents a standalone FHIR R4 Medication resource, the
// target of a MedicationRequest.medicationReference.
type Medication struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Meta         *Meta            `json:"meta,omitempty"`
	Identifier   []Identifier     `json:"identifier,omitempty"`
	Code         *CodeableConcept `json:"code,omitempty"`
	Status       string           `json:"status,omitempty"` // active | inactive | entered-in-error
	Manufacturer *Reference       `json:"manufacturer,omitempty"`
	Form         *CodeableConcept `json:"form,omitempty"`
	Amount       *Ratio           `json:"amount,omitempty"`
	Ingredient   []Ingredient     `json:"ingredient,omitempty"`
}

// Ingredient represents an active or inactive ingredient of a medication.
type Ingredient struct {
	ItemCodeableConcept *CodeableConcept `json:"itemCodeableConcept,omitempty"`
	ItemReference       *Reference       `json:"itemReference,omitempty"`
	IsActive            bool             `json:"isActive,omitempty"`
	Strength            *Ratio           `json:"strength,omitempty"`
}
