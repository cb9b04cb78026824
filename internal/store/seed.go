package store

import "exchange-service/internal/models"

// SeedDemoCatalog loads a small catalog so STORE_DRIVER=memory is usable
// without the catalog backend.
func SeedDemoCatalog(m *MemoryStore) {
	for _, org := range []models.Organization{
		{ID: "org-vintage", Name: "Vintage Structures Ltd."},
		{ID: "org-buildfast", Name: "BuildFast Infra"},
		{ID: "org-metro", Name: "Metro Developers"},
	} {
		m.PutOrganization(org)
	}

	for _, material := range []models.Material{
		{ID: "mat-oak-beams", SellerOrgID: "org-vintage", Title: "Reclaimed Oak Beams", Quantity: "12 beams", Available: true},
		{ID: "mat-scaffolding", SellerOrgID: "org-buildfast", Title: "Industrial Steel Scaffolding", Quantity: "50 sets", Available: true},
		{ID: "mat-porcelain", SellerOrgID: "org-metro", Title: "Surplus Porcelain Tiles", Quantity: "400 sq ft", Available: true},
	} {
		m.PutMaterial(material)
	}
}
