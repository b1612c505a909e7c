// Package exporters writes a user's records back out as an import bundle.
//
// An export is the inverse of an import: feeding it back to the importer for the
// same owner with the same normalization rules recognizes every record as a
// duplicate.
//
//	exporter := exporters.NewExporter(records.NewRepository(db), settings.NewRepository(db))
//	bundle, err := exporter.Export(userID, importers.Version2)
//	err = exporters.WriteFile(bundle, "out/records.json")
package exporters
