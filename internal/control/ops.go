// Package control implements the local unix-domain socket that lets an
// operator reconfigure and inspect a running cache without unmounting,
// grounded on the original project's ipc.hpp operation set (Help,
// InvalidateCache, SetPageSize, GetPageSize, SetCacheSize, GetCacheSize)
// and framed with internal/rpcwire the same way the rest of this codebase
// frames its wire protocols.
package control

// OpKind names one control-socket operation.
type OpKind string

const (
	OpGetPageSize     OpKind = "GetPageSize"
	OpSetPageSize     OpKind = "SetPageSize"
	OpGetCacheSize    OpKind = "GetCacheSize"
	OpSetCacheSize    OpKind = "SetCacheSize"
	OpInvalidateCache OpKind = "InvalidateCache"
	OpStats           OpKind = "Stats"
)

// Request is one control-socket call. Only the field relevant to Kind is
// populated; the others are zero.
type Request struct {
	Kind         OpKind
	PageSizeKiB  int `json:",omitempty"`
	CacheSizeMiB int `json:",omitempty"`
}

// Response carries the result of a Request. Err is a human-readable message;
// the control client does not need to reconstruct a typed error, it is a
// thin inspection/administration surface, not part of the filesystem's
// error path.
type Response struct {
	Err          string `json:",omitempty"`
	PageSizeKiB  int    `json:",omitempty"`
	CacheSizeMiB int    `json:",omitempty"`
	HasOrphans   bool
	ResidentHint int
}
