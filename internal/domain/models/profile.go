package models

// Keys used for display fields in the local profile cache.
const (
	ProfileFieldFarmName    = "farmName"
	ProfileFieldLocation    = "location"
	ProfileFieldContactInfo = "contactInfo"

	// ProfileFieldRegistered is owned by the ledger and never cached.
	ProfileFieldRegistered = "isRegistered"
)

// ProducerProfile mirrors the farmer entry held by the ledger.
type ProducerProfile struct {
	Address      string `json:"address"`
	Name         string `json:"farmName"`
	ContactInfo  string `json:"contactInfo"`
	Location     string `json:"location"`
	IsRegistered bool   `json:"isRegistered"`
}

// CachedProfile is the display-only copy of a profile kept in the local cache.
// It may hold fields that the ledger does not know about (e.g. phoneNumber).
type CachedProfile map[string]string

// DisplayFields returns the cacheable subset of the profile.
func (p ProducerProfile) DisplayFields() CachedProfile {
	return CachedProfile{
		ProfileFieldFarmName:    p.Name,
		ProfileFieldLocation:    p.Location,
		ProfileFieldContactInfo: p.ContactInfo,
	}
}

// Merge returns a copy of c with every field of update applied on top.
func (c CachedProfile) Merge(update CachedProfile) CachedProfile {
	merged := make(CachedProfile, len(c)+len(update))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// Cacheable returns the fields of c that may be written to the cache.
func (c CachedProfile) Cacheable() CachedProfile {
	out := make(CachedProfile, len(c))
	for k, v := range c {
		if k == "" || k == ProfileFieldRegistered {
			continue
		}
		out[k] = v
	}
	return out
}
