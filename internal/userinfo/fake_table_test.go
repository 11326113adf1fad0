package userinfo

import (
	"context"

	"github.com/LCOGT/photonranch-userinfo/internal/domain"
)

// memoryTable is an in-memory domain.Table that records every call.
type memoryTable struct {
	records map[domain.Key]domain.UserRecord

	gets    []domain.Key
	latests []string
	deletes []domain.Key
	puts    []domain.UserRecord

	getErr error
	putErr error
}

func newMemoryTable(records ...domain.UserRecord) *memoryTable {
	table := &memoryTable{records: make(map[domain.Key]domain.UserRecord)}
	for _, record := range records {
		table.records[record.Key()] = record.Clone()
	}
	return table
}

func (m *memoryTable) Get(_ context.Context, key domain.Key) (domain.UserRecord, bool, error) {
	m.gets = append(m.gets, key)
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	record, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *memoryTable) Latest(_ context.Context, userID string) (domain.UserRecord, bool, error) {
	m.latests = append(m.latests, userID)
	if m.getErr != nil {
		return nil, false, m.getErr
	}

	var latest domain.UserRecord
	for key, record := range m.records {
		if key.UserID != userID {
			continue
		}
		if latest == nil || key.LastUpdated > latest.Key().LastUpdated {
			latest = record
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	return latest.Clone(), true, nil
}

func (m *memoryTable) Delete(_ context.Context, key domain.Key) (domain.WriteAck, error) {
	m.deletes = append(m.deletes, key)
	delete(m.records, key)
	return domain.NewWriteAck("delete-request"), nil
}

func (m *memoryTable) Put(_ context.Context, record domain.UserRecord) (domain.WriteAck, error) {
	m.puts = append(m.puts, record.Clone())
	if m.putErr != nil {
		return domain.WriteAck{}, m.putErr
	}
	m.records[record.Key()] = record.Clone()
	return domain.NewWriteAck("put-request"), nil
}

func (m *memoryTable) Ping(context.Context) error {
	return nil
}

func (m *memoryTable) writes() int {
	return len(m.deletes) + len(m.puts)
}
