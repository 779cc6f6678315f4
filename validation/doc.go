// Package validation checks a run's final answer against canonical ground
// truth and labels its provenance.
//
// Each prompt type has an extractor and a comparator. Extraction failures
// are verdicts (Invalid with a failure reason), while a missing or empty
// canonical entry is Unverified. Validate is a pure function of its
// arguments, so re-validating persisted records reproduces identical
// sidecars.
package validation
