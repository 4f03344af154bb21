// Package storage provides persistence for submission records and
// the authority response ledger.
//
// The in-memory implementation here serves tests and single-process
// development runs; the mongodb subpackage is the durable backend.
// Both satisfy the contingency.RecordStore and contingency.ResponseLog
// interfaces.
package storage

import (
	"context"
	"sync"

	"github.com/sirosfoundation/go-nfe/pkg/contingency"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Memory is a process-local record store and response log.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]*contingency.Record
	order     []string // access keys in first-save order
	responses map[string][]*soap.AuthorityResponse
}

var (
	_ contingency.RecordStore = (*Memory)(nil)
	_ contingency.ResponseLog = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]*contingency.Record),
		responses: make(map[string][]*soap.AuthorityResponse),
	}
}

// Save inserts or replaces the record keyed by its access key.
func (m *Memory) Save(_ context.Context, rec *contingency.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.AccessKey]; !exists {
		m.order = append(m.order, rec.AccessKey)
	}
	clone := *rec
	m.records[rec.AccessKey] = &clone
	return nil
}

// Get returns a copy of the record for an access key.
func (m *Memory) Get(_ context.Context, accessKey string) (*contingency.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[accessKey]
	if !ok {
		return nil, contingency.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

// Unresolved lists unresolved records in first-save order.
func (m *Memory) Unresolved(_ context.Context) ([]*contingency.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contingency.Record
	for _, key := range m.order {
		if rec := m.records[key]; !rec.Resolved {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Append adds a response to an access key's ledger.
func (m *Memory) Append(_ context.Context, accessKey string, resp *soap.AuthorityResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[accessKey] = append(m.responses[accessKey], resp)
	return nil
}

// History returns the responses recorded for an access key, oldest
// first.
func (m *Memory) History(_ context.Context, accessKey string) ([]*soap.AuthorityResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*soap.AuthorityResponse, len(m.responses[accessKey]))
	copy(out, m.responses[accessKey])
	return out, nil
}
