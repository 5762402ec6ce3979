// Package buffer provides buffer implementations for streaming data processing.
//
// Two buffer types remain, each optimized for a different use case:
//
//   - RingBuffer: a thread-safe fixed-size buffer that overwrites the oldest
//     data when full. Implements io.Reader/io.Writer semantics over any
//     element type; used for sliding windows of recent data such as log
//     lines feeding the TUI.
//
//   - Window: a bounded FIFO with no locking and no reader side, owned by a
//     single pipeline stage. The breathing pipeline's history buffers
//     (envelope means, classifier decisions, inhalation records) are Windows.
//
// RingBuffer supports concurrent access and graceful shutdown through
// CloseWrite() (allows reads to continue) or CloseWithError() (immediate
// closure).
package buffer
