// Package blobstore implements the Blob Store Adapter:
// a unified interface over S3-compatible object stores and HTTP sinks,
// with put/get, prefix listing, recursive delete, and time-limited
// presigned URLs.
package blobstore
