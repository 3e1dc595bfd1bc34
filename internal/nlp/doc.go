// Package nlp is the HTTP client for the natural-language classification
// backend. It supports classic single-utterance classification, multi-turn
// smart classification and follow-up completion, with rate limiting, retry of
// idempotent calls and a short-lived cache for classic classifications.
package nlp
