package models

import "errors"

// ErrIntegrity indicates a data-integrity invariant was violated, such as an
// account balance going negative or a broken hash chain that a bounded reorg
// check could not resolve. It is escalated, never auto-resolved.
var ErrIntegrity = errors.New("data integrity fault")
