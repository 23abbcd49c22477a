// Package watermark embeds a provenance marker into raster images.
//
// The robust marker is built from a small JSON payload (creator, timestamp,
// short content hash, protection tag) and written into the pixel buffer by
// four stages run in a fixed order: bit-plane embedding, low-amplitude
// perturbation, 8x8 block DCT coefficient biasing on the luma plane, and a
// periodic tiling pattern. A translucent visible overlay and format-specific
// metadata tags can be layered on top. Everything works in memory on a single
// *image.RGBA owned by the caller; there is no decoder for the marker.
package watermark
