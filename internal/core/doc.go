// Package core provides the domain models for template-derived file tracking.
//
// # Core Types
//
// Digest: the hex fingerprint of a file's bytes.
// TemplatePair: a fixed template -> destination mapping for one generated file.
// The error taxonomy (IOError, ValidationError, NotFoundError,
// ExternalToolFailure) shared by every package that touches the run-directory.
//
// # Design Principles
//
//  1. Templates are never mutated.
//  2. A destination that exists belongs to the user.
//  3. Every persisted record is written whole, never patched.
package core
