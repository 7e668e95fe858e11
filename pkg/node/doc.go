// Package node holds the per-host model of the collection engine: the Node
// state, the document resolver that turns declarative configuration into
// concrete action lists, the once assigner for single-assignment work, the
// inventory filter, and per-host action execution over a transport.
package node
