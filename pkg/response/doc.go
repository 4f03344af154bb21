// Copyright (c) 2025 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package response classifies authority status codes into the
// outcomes the submission pipeline acts on. The classification is
// total: every code maps to exactly one outcome.
package response
