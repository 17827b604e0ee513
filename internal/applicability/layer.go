package applicability

import "ib-compliance/internal/models"

// Entry — итоговая применимость требования к одной организации.
type Entry struct {
	OrganizationID uint               `json:"organizationId"`
	Name           string             `json:"name"`
	AutomaticMatch bool               `json:"automaticMatch"`
	MappingType    models.MappingType `json:"mappingType"`
	Reason         string             `json:"reason,omitempty"`
	IsApplicable   bool               `json:"isApplicable"`
	HasCompliance  bool               `json:"hasCompliance"`
}

// Result — производное представление, не хранится и пересчитывается на каждый запрос.
type Result struct {
	Organizations           []Entry `json:"organizations"`
	AutomaticCount          int     `json:"automaticCount"`
	ManualIncludeCount      int     `json:"manualIncludeCount"`
	ManualExcludeCount      int     `json:"manualExcludeCount"`
	ApplicableOrganizations []uint  `json:"applicableOrganizations"`
	TotalOrganizations      int     `json:"totalOrganizations"`
}

// Layer накладывает ручные решения на автоматический результат.
// Ручное включение/исключение всегда важнее автоматики; без решения и без
// совпадения организация получает none и не считается применимой.
func Layer(orgs []models.Organization, matches map[uint]bool, overrides map[uint]models.OrganizationMapping) *Result {
	res := &Result{
		Organizations:           make([]Entry, 0, len(orgs)),
		ApplicableOrganizations: []uint{},
		TotalOrganizations:      len(orgs),
	}

	for _, org := range orgs {
		e := Entry{
			OrganizationID: org.ID,
			Name:           org.Name,
			AutomaticMatch: matches[org.ID],
		}

		if o, ok := overrides[org.ID]; ok && (o.Kind == models.MappingManualInclude || o.Kind == models.MappingManualExclude) {
			e.MappingType = o.Kind
			e.Reason = o.Reason
		} else if e.AutomaticMatch {
			e.MappingType = models.MappingAutomatic
		} else {
			e.MappingType = models.MappingNone
		}

		switch e.MappingType {
		case models.MappingAutomatic:
			res.AutomaticCount++
			e.IsApplicable = true
		case models.MappingManualInclude:
			res.ManualIncludeCount++
			e.IsApplicable = true
		case models.MappingManualExclude:
			res.ManualExcludeCount++
		}

		if e.IsApplicable {
			res.ApplicableOrganizations = append(res.ApplicableOrganizations, org.ID)
		}
		res.Organizations = append(res.Organizations, e)
	}

	return res
}
