// Package rolefilter trims playbook files down to the roles a set of host
// variable files actually enables.
//
// # Role activation
//
// Each entry of the source requirements list may carry an
// `activation_prefix`. A role is enabled when some top-level key of some
// vars file starts with that prefix. The empty prefix always enables; an
// entry without the key (or with a null value) is never enabled.
//
// # Role-specific blocks
//
// setup.yml and the group-vars file delimit role-only sections with comment
// markers, which may nest:
//
//	# role-specific:miniflux
//	- role: galaxy/miniflux
//	# /role-specific:miniflux
//
// A line survives only when every role on the enclosing marker stack is
// enabled. Markers themselves are always dropped, and runs of blank lines are
// compacted to at most two.
package rolefilter
