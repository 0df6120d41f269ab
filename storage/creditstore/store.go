package creditstore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"creditline/native/credit"
	"creditline/storage"
)

const (
	configPrefix = "credit/config/"
	recordPrefix = "credit/record/"
	detailPrefix = "credit/detail/"
)

// Store persists the per-credit config, record and detail triple in a
// key-value database. It satisfies the billing engine's state interface:
// lookups for unknown hashes return nil without error.
type Store struct {
	db storage.Database
}

// New wraps a database in a credit store.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

func key(prefix string, hash [32]byte) []byte {
	return []byte(prefix + hex.EncodeToString(hash[:]))
}

func (s *Store) get(prefix string, hash [32]byte, out any) (bool, error) {
	raw, err := s.db.Get(key(prefix, hash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("creditstore: decode %s%x: %w", prefix, hash[:4], err)
	}
	return true, nil
}

func (s *Store) put(prefix string, hash [32]byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("creditstore: encode %s%x: %w", prefix, hash[:4], err)
	}
	return s.db.Put(key(prefix, hash), raw)
}

// GetCreditConfig loads the stored terms for a credit, nil when absent.
func (s *Store) GetCreditConfig(hash [32]byte) (*credit.CreditConfig, error) {
	cfg := new(credit.CreditConfig)
	ok, err := s.get(configPrefix, hash, cfg)
	if err != nil || !ok {
		return nil, err
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// PutCreditConfig stores the terms for a credit.
func (s *Store) PutCreditConfig(hash [32]byte, cfg *credit.CreditConfig) error {
	if cfg == nil {
		return s.db.Delete(key(configPrefix, hash))
	}
	return s.put(configPrefix, hash, cfg)
}

// GetCreditRecord loads the billing ledger entry for a credit, nil when
// absent.
func (s *Store) GetCreditRecord(hash [32]byte) (*credit.CreditRecord, error) {
	record := new(credit.CreditRecord)
	ok, err := s.get(recordPrefix, hash, record)
	if err != nil || !ok {
		return nil, err
	}
	record.EnsureDefaults()
	return record, nil
}

// PutCreditRecord stores the billing ledger entry for a credit.
func (s *Store) PutCreditRecord(hash [32]byte, record *credit.CreditRecord) error {
	if record == nil {
		return s.db.Delete(key(recordPrefix, hash))
	}
	return s.put(recordPrefix, hash, record)
}

// GetDueDetail loads the past-due decomposition for a credit, nil when absent.
func (s *Store) GetDueDetail(hash [32]byte) (*credit.DueDetail, error) {
	detail := new(credit.DueDetail)
	ok, err := s.get(detailPrefix, hash, detail)
	if err != nil || !ok {
		return nil, err
	}
	detail.EnsureDefaults()
	return detail, nil
}

// PutDueDetail stores the past-due decomposition for a credit.
func (s *Store) PutDueDetail(hash [32]byte, detail *credit.DueDetail) error {
	if detail == nil {
		return s.db.Delete(key(detailPrefix, hash))
	}
	return s.put(detailPrefix, hash, detail)
}
