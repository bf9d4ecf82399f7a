// Package feature derives the engineered features of a single raw record.
//
// Every function here is pure: the same input always produces the same
// output, nothing is read from disk and nothing is remembered between calls.
// Training and scoring both go through this package, which is what keeps the
// two schemas identical.
package feature
