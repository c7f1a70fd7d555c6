package pnr

import "github.com/wardle/xds-mediator/identifiers"

// Rewrite overwrites every DOM site belonging to occ with the CX/XCN/XON
// form of resolved. Patient occurrences are written in CX form; provider
// and facility occurrences keep their original name and qualification
// components and substitute only the identifier value and authority
// carried by resolved.
func Rewrite(occ *IdentifierOccurrence, resolved identifiers.Identifier) {
	var rendered string
	switch occ.Category {
	case Facility:
		rendered = identifiers.FormatXON(identifiers.FacilityIdentifier{
			Name:      occ.FacilityName,
			Authority: resolved.Authority,
			IDNumber:  resolved.Value,
		})
	case Provider:
		prov := occ.ProviderName
		prov.Value = resolved.Value
		prov.Authority = resolved.Authority
		rendered = identifiers.FormatXCN(prov)
	default:
		rendered = identifiers.FormatCX(resolved)
	}
	for _, s := range occ.sites {
		s.write(rendered)
	}
}
