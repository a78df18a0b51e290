// Package storage persists whisker segment tables.
//
// Two on-disk formats are supported: whiskbin1, length-prefixed
// little-endian records, and whiskpb1, protobuf wire encoded records.
// Both start with an eight-byte magic header so readers can autodetect
// the format. FileStore writes either format through fsutil; the sqlite
// and objectstore subpackages provide database and S3-compatible stores
// behind the same Store interface.
package storage
