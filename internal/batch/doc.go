// Package batch validates and processes an upload of several images.
//
// Every limit (image count, creator, consent, opacity, content type, file
// size) is checked before any file is opened, so an oversized or malformed
// batch is rejected without reading image data. Accepted images are
// watermarked independently, optionally by several workers, and returned in
// input order. A multi-image result is packaged as a zip archive.
package batch
