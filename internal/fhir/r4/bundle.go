package r4

import "encoding/json"

// Bundle represents a FHIR Bundle, typically a searchset returned from a
// resource search.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"` // searchset | collection | ...
	Total        int           `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink carries paging links for a searchset.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry holds one resource in a bundle. The resource is kept raw so
// callers can decode it by resourceType.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// resourceHeader is used to sniff the resourceType of a raw entry.
type resourceHeader struct {
	ResourceType string `json:"resourceType"`
}

// NextLink returns the URL of the "next" paging link, or "".
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// MedicationRequests decodes every MedicationRequest entry in the bundle.
// Entries of other types (OperationOutcome, included resources) are
// skipped; a malformed entry aborts with an error.
func (b *Bundle) MedicationRequests() ([]*MedicationRequest, error) {
	var out []*MedicationRequest
	for _, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var header resourceHeader
		if err := json.Unmarshal(entry.Resource, &header); err != nil {
			return nil, err
		}
		if header.ResourceType != "MedicationRequest" {
			continue
		}
		mr := &MedicationRequest{}
		if err := json.Unmarshal(entry.Resource, mr); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, nil
}
