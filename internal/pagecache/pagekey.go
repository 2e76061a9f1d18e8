package pagecache

// FileID is minted by the directory/entity layer above this package. The
// cache never interprets it beyond equality and hashing.
type FileID uint64

// PageKey identifies one page-aligned range of one file: the byte range it
// represents is [Index*P, (Index+1)*P) for the cache's current page size P.
type PageKey struct {
	ID    FileID
	Index uint64
}
