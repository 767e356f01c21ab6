// Package nexus converts instrument geometry from a Mantid instrument
// definition plus the data of a legacy HDF5/NeXus file into a new NeXus
// file using the solid_geometry, grid_pattern and grid_shape groups.
//
// Convert runs the whole pipeline: the definition is parsed, the source
// file opened, the output assembled in memory and written once. Verify
// checks the carried datasets of a written file, ExportOFF flattens its
// geometry into an OFF mesh and Profile reports where its bytes go.
package nexus
