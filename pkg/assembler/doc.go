// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package assembler maps the in-memory fiscal document model to the
exact XML element order and numeric formatting required by the
authority schema.

Assembly is deterministic and whitespace-stable: two assemblies of an
unchanged document produce byte-identical output, because the digital
signature is computed over this output. The serialized form is
compact (no indentation) — whitespace text nodes would change the
canonical form the authority recomputes on its side.

The assembler is pure with respect to its input: it performs no I/O
and never mutates the document.
*/
package assembler
