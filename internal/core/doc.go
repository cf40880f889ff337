// Package core provides the bulk spreadsheet-import pipeline for the
// pharmacy back office.
//
// An operator picks an import kind (doctors, specialties), chooses the
// shared parameters that apply to every row (country, categories, default
// specialty), selects a spreadsheet, previews the mapped records and
// uploads them. The package has no transport dependencies; the web server
// and the command line tool drive the same types.
//
// # Pipeline
//
//   - [Ingest] decodes XLSX (first sheet) or CSV content into [RawRow]s.
//   - A kind's [MapFunc] turns each row plus [SharedParams] into a payload,
//     resolving headers through its [AliasTable]. [MapRecords] keeps order.
//   - [Scheduler] partitions records into batches of [DefaultBatchSize] and
//     submits them one at a time through a [Submitter], pausing
//     [DefaultPacingDelay] between batches.
//   - [Aggregator] folds each batch response into an [AggregateReport],
//     translating batch-local row indexes to 1-based file rows.
//
// # Sessions
//
// A [Session] owns one import and moves through
//
//	idle -> configuring -> parsed -> uploading -> completed
//
// following [Transition]. Inputs are locked while uploading. [Service]
// tracks sessions for the HTTP API, limits concurrent uploads with an
// [UploadLimiter], fans out progress and records finished runs in a
// [HistoryStore].
//
// # Kinds
//
// Kinds are registered at init time with [Register]; see package kinds.
//
//	core.Register(core.Definition{
//	    Key:            "specialties",
//	    Path:           "/specialties/bulk",
//	    Aliases:        specialtyAliases,
//	    RequiredParams: []string{core.ParamCountry},
//	    Map:            mapSpecialty,
//	})
//
// # Error Handling
//
// Step errors ([ParseError], [ConfigurationError], [StateError], [ErrNoData])
// block one action and leave the session usable. Batch transport failures
// are folded into the report and never abort a run. [MapError] turns any of
// them into a user message with a support code.
package core
