package sync

import "blsync/pkg/storage"

// Provenance metadata and tag keys written with every uploaded object. The
// tags are what entitle a later deletion-enabled pass to remove the object.
const (
	MetaSourceMD5          = "source_md5"
	MetaSourceLength       = "source_length"
	MetaSourceLastModified = "source_last_modified"
	MetaSourceETag         = "source_etag"
	MetaSourceURL          = "source_url"

	TagSourceKey   = "source"
	TagSourceValue = "blsync"
	TagBaseURLKey  = "source_url_base"
)

// SourceState carries the identity signals known for a remote file at
// decision time. Before download only HEAD-derived fields are set; after
// download MD5 and ContentLength reflect the actual payload.
type SourceState struct {
	URL           string
	MD5           string
	ContentLength string
	LastModified  string
	ETag          string
}

// isCurrent reports whether the destination object already holds the remote
// content, so the transfer can be skipped. Checks run strongest-first and
// the first match wins:
//
//  1. content checksum equality,
//  2. byte length AND last-modified equality (both signals required),
//  3. entity tag equality against either the stored source etag or the
//     object's own native etag.
//
// The second check requires both signals; a matching length or a matching
// last-modified alone never proves currency. A missing object or fully
// empty remote metadata always yields "not current": a redundant transfer
// beats silent staleness.
func isCurrent(obj *storage.ObjectInfo, src *SourceState) bool {
	if obj == nil || !obj.Exists {
		return false
	}

	meta := obj.Metadata

	if src.MD5 != "" && meta[MetaSourceMD5] == src.MD5 {
		return true
	}
	if src.ContentLength != "" && src.LastModified != "" &&
		meta[MetaSourceLength] == src.ContentLength &&
		meta[MetaSourceLastModified] == src.LastModified {
		return true
	}
	if src.ETag != "" && (meta[MetaSourceETag] == src.ETag || obj.ETag == src.ETag) {
		return true
	}

	return false
}
