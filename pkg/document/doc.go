// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package document defines the in-memory fiscal document model and its
emission lifecycle.

A FiscalDocument arrives here with all tax amounts already computed;
this package carries the data through the emission states

	Draft -> Signed -> Submitted -> {Authorized | Rejected}

with the alternate contingency branch

	Draft -> Signed -> Contingency -> Submitted -> {Authorized | Rejected}

A document never regresses to an earlier state; invalid transitions
fail with a *TransitionError instead of silently succeeding.
*/
package document
