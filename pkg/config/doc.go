// Package config holds the run configuration and the declarative action
// document model.
//
// A single YAML document drives the whole run: execution options shared by
// every host, the inventory filter, and the action tree. The action tree is
// parsed once into tagged nodes (Document, AttributeMatch, IDPriority,
// OnceRule) so that resolution is a typed walk rather than repeated map
// inspection. An alternate action-first file layout is supported through a
// pure structural normalization pass (NormalizeActions).
package config
