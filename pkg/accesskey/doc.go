// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package accesskey derives the 44-digit access key (chave de acesso)
that uniquely identifies a fiscal document.

The key concatenates eight header fields in fixed widths and closes
with a modulo-11 check digit:

	cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1)

The check digit is a pure function of the preceding 43 digits: each
digit, read right to left, is multiplied by a weight cycling through
2..9; the digit is 11 minus the sum modulo 11, with results of 10 or
11 collapsing to 0. Generation is fully deterministic.
*/
package accesskey
