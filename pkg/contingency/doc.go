// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package contingency drives document submission against an authority
that is allowed to be down.

The Orchestrator submits signed documents, classifies the authority's
answers and, when the cached heartbeat or the submission itself shows
the authority unreachable or in a declared outage, moves the document
into contingency: the signed bytes are retained in a durable Record
and, in EPEC mode, a signed pre-authorization event is filed with the
national environment. A background reconciliation loop resends
unresolved records once the authority is reachable again, polls
outstanding receipts and falls back to a direct situation query when
a submission's outcome was lost; settlements reached there are
carried back onto the submitted document. Rejections, including
recoverable ones, settle the document as rejected; resubmitting is
always the caller's decision.

Resend is exactly-once per reconciliation pass: a per-document lease
keeps concurrent passes and live submissions from double-sending the
same access key. Records that exhaust the retry ceiling are marked
escalated and handed to the escalation callback; the orchestrator
never cancels a document on its own.
*/
package contingency
