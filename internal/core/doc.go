// Package core converts table images and PDF pages into spreadsheets.
//
// The package holds all domain logic independent of any transport. It is
// used by the HTTP server, the CLI and tests without modification.
//
// # Pipeline
//
// A conversion moves through five stages:
//
//  1. [UploadStore.Ingest] streams untrusted bytes into a private directory
//     under the upload root, enforcing the size ceiling while copying.
//  2. [Validator.Classify] decides from the content, not the extension,
//     whether the file is an allowed image or a PDF within the page, pixel
//     and active-content limits. It runs again every time content is used.
//  3. A [LayoutAnalyzer] turns a page image into a [CellSet]. Calls are
//     serialized by the [AnalysisGate] and results are reused through the
//     [AnalysisCache] according to its [CacheScope].
//  4. [Reconstruct] normalizes the cells into a non-overlapping [GridPlan]
//     and a capped [PreviewMatrix].
//  5. [RenderWorkbook] writes the plan into a single-sheet workbook.
//
// [Service] wires these together and tracks each browser [Session].
//
// # Retention
//
// Uploads are temporary. The [RetentionSweeper] removes any upload directory
// idle longer than the TTL; opening an upload counts as an access.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code for support reference:
//
//   - FILE001-FILE005: size, type and readability of the upload
//   - DOC001-DOC003: PDF rules (encryption, page limit, active content)
//   - IMG001, PAGE001: pixel budget and page selection
//   - BUSY001, ANA001, RND001: analysis and rendering
//   - UPL001-UPL004: upload lifecycle
package core
