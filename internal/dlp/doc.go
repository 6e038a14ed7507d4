// Package dlp classifies and redacts sensitive substrings such as email
// addresses, government identifiers, payment card numbers, IBANs, phone
// numbers, API keys and private key blocks.
//
// Detection is two-phase: a coarse candidate pattern is followed by a
// validator (Luhn, ISO 7064 mod-97, SSN block rules, boundary checks) where
// pattern matching alone is unreliable. Redaction replaces every validated
// span with a fixed placeholder per kind. Placeholders never match any
// detector, and redaction repeats until the text stops changing, so
// Redact(Redact(x)) == Redact(x).
//
// Classification and redaction never fail on input content. The context-aware
// variants only return cancel.ErrAborted.
package dlp
