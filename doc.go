// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gonfe implements the emission protocol for Brazilian electronic
fiscal documents (NF-e model 55, NFC-e model 65) against the SEFAZ
authorization web services.

# Overview

go-nfe is the document emission protocol engine: deterministic access
key generation, canonical XML assembly suitable for cryptographic
signing, enveloped XML digital signatures, the two-phase asynchronous
submission protocol (batch + receipt polling), and a contingency state
machine that keeps emission running when the authority is unreachable
and reconciles pending documents once it recovers.

It deliberately excludes invoice CRUD, tax computation, and DANFE
rendering; those are collaborators of this engine, not part of it.

# Package Structure

	github.com/sirosfoundation/go-nfe/pkg/accesskey   - 44-digit access key derivation
	github.com/sirosfoundation/go-nfe/pkg/document    - fiscal document model and lifecycle
	github.com/sirosfoundation/go-nfe/pkg/assembler   - canonical XML assembly
	github.com/sirosfoundation/go-nfe/pkg/security    - enveloped XML signatures
	github.com/sirosfoundation/go-nfe/pkg/soap        - SEFAZ SOAP transport
	github.com/sirosfoundation/go-nfe/pkg/response    - authority status-code classification
	github.com/sirosfoundation/go-nfe/pkg/contingency - emission orchestration and reconciliation

Operational wiring (key providers, configuration, durable stores, the
end-to-end emission service) lives under internal/.

# Quick Start

	import (
	    "github.com/sirosfoundation/go-nfe/pkg/accesskey"
	    "github.com/sirosfoundation/go-nfe/pkg/assembler"
	    "github.com/sirosfoundation/go-nfe/pkg/security"
	)

	key, err := accesskey.Generate(accesskey.Fields{
	    StateCode:    "33",
	    YearMonth:    "2501",
	    IssuerTaxID:  "14200166000187",
	    Model:        "55",
	    Series:       "001",
	    Number:       "000000001",
	    EmissionType: "1",
	    ControlCode:  "00000001",
	})

	xml, err := assembler.Assemble(doc)

	engine := security.NewEngine(capability)
	signed, err := engine.Sign(xml, "NFe"+key.String())

# Signature Profile

Signatures are enveloped XML-DSig with a fixed algorithm suite:
exclusive canonicalization (xml-exc-c14n), SHA-256 digests, and
RSA-SHA256 signature values. The signature covers exactly one element
referenced by its Id attribute and is inserted as the last child of
that element's parent.

# License

BSD-2-Clause License
*/
package gonfe
