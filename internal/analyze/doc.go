// Package analyze generates meeting notes from a finished transcript by
// streaming a completion from a local LLM endpoint. Output is forwarded
// incrementally with a smoothed progress estimate, and generation can be
// cancelled mid-stream without leaving partial results behind.
package analyze
