// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the enveloped XML digital signature
profile required by the fiscal authority.

The profile is fixed: exclusive canonicalization (xml-exc-c14n)
without comments, SHA-256 digests, RSA-SHA256 signature values, and a
single Reference addressed by the signed element's Id attribute. The
ds:Signature element is appended as the last child of the signed
element's parent, so the referenced subtree never contains its own
signature.

Key material is abstracted behind SigningCapability so that file-based
certificates (A1) and hardware tokens (A3, PKCS#11) are
interchangeable; see internal/keystore for the providers.
*/
package security
