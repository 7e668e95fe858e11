// Package inventory discovers the raw host inventory of a managed cluster.
//
// The Source interface decouples discovery from the collection engine: the
// Kubernetes implementation lists nodes through the API server, while the
// File implementation replays a pre-captured JSON inventory. Release
// information is looked up per owning cluster; a missing entry degrades to
// the UnknownRelease sentinel rather than failing the run.
package inventory
