// Package extract reads structured contract fields (amount, subject, dates and
// parties) out of OCR text once extraction has completed.
//
// An Extractor turns text into Fields plus a completeness-based confidence
// score. LLMExtractor asks a chat completion model for the fields; Runner
// drives any Extractor from a bounded worker pool and hands each Result to a
// ResultHandler, normally the lifecycle engine.
package extract
