// Package llm is a small client for OpenAI-compatible chat completion APIs,
// used to read structured contract fields out of OCR text.
//
// Client.CompleteJSON sends one prompt and returns the model's raw answer;
// DecodeJSON tolerates code fences and surrounding prose in that answer.
//
// Requests are retried on HTTP 408, 429 and 5xx, on network timeouts and on
// empty answers, with exponential backoff (1s doubling to 10s, 3 attempts by
// default). A Retry-After header overrides the backoff. Context cancellation
// stops retries immediately.
package llm
