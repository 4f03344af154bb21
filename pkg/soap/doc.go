// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package soap implements the SOAP 1.2 transport to the fiscal
authority web services: batch submission, receipt polling, document
situation queries, service status heartbeats and event submission.

Endpoints are resolved per state code and environment through a
Directory. All services use mutual TLS with the emitter's own
certificate; transport failures and 5xx answers surface as
*UnavailableError so the contingency layer can tell an unreachable
authority apart from a rejection.
*/
package soap
