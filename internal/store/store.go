// Package store is the durable, per-tenant file-backed record keeper for
// triggers, their order logs, and tenant identities. Every tenant owns a
// directory under the store root; every mutation inside that directory
// is serialized through a named file lock so two processes (or two
// goroutines) never interleave writes to the same tenant.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/domain"
	"github.com/aristath/trigger-engine/internal/engineerr"
)

const (
	configFileName  = "config.json"
	triggersDirName = "triggers"
	logsDirName     = "trigger_logs"
	locksDirName    = ".locks"
)

// Store is the on-disk record keeper. It is safe for concurrent use by
// many goroutines; cross-process safety comes from the flock-based
// per-tenant locks, not from the in-process mutex alone.
type Store struct {
	root        string
	lockTimeout time.Duration
	log         zerolog.Logger

	idxMu         sync.RWMutex
	indexBuilt    bool
	triggerTenant map[string]string // triggerId -> tenantId
	apiKeyTenant  map[string]string // apiKey -> tenantId
}

// New opens (creating if necessary) the store rooted at root.
func New(root string, lockTimeout time.Duration, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, locksDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	return &Store{
		root:          root,
		lockTimeout:   lockTimeout,
		log:           log.With().Str("component", "store").Logger(),
		triggerTenant: make(map[string]string),
		apiKeyTenant:  make(map[string]string),
	}, nil
}

func (s *Store) tenantDir(tenantID string) string   { return filepath.Join(s.root, tenantID) }
func (s *Store) triggersDir(tenantID string) string { return filepath.Join(s.tenantDir(tenantID), triggersDirName) }
func (s *Store) logsDir(tenantID string) string     { return filepath.Join(s.tenantDir(tenantID), logsDirName) }
func (s *Store) configPath(tenantID string) string  { return filepath.Join(s.tenantDir(tenantID), configFileName) }

func (s *Store) triggerPath(tenantID, triggerID string) string {
	return filepath.Join(s.triggersDir(tenantID), triggerID+".json")
}

func (s *Store) logPath(tenantID, triggerID string) string {
	return filepath.Join(s.logsDir(tenantID), triggerID+".jsonl")
}

// withTenantLock serializes access to everything under one tenant's
// directory via a named flock, timing out after the configured budget.
func (s *Store) withTenantLock(tenantID string, fn func() error) error {
	lockPath := filepath.Join(s.root, locksDirName, tenantID+".lock")
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrStoreBusy, err)
	}
	if !locked {
		return fmt.Errorf("%w: timed out acquiring lock for tenant %s", engineerr.ErrStoreBusy, tenantID)
	}
	defer fl.Unlock()

	return fn()
}

// writeJSONAtomic writes v to path by writing to a sibling temp file and
// renaming it into place, so a crash mid-write never leaves a partially
// written record for a reader to trip over.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return engineerr.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrStoreCorrupt, err)
	}
	return nil
}

// SaveTrigger validates and persists a trigger under its tenant.
func (s *Store) SaveTrigger(t *domain.Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	err := s.withTenantLock(t.TenantID, func() error {
		return writeJSONAtomic(s.triggerPath(t.TenantID, t.ID), t)
	})
	if err != nil {
		return err
	}
	s.idxMu.Lock()
	s.triggerTenant[t.ID] = t.TenantID
	s.idxMu.Unlock()
	return nil
}

// GetTrigger loads a single trigger scoped to a tenant.
func (s *Store) GetTrigger(tenantID, triggerID string) (*domain.Trigger, error) {
	var t domain.Trigger
	if err := readJSON(s.triggerPath(tenantID, triggerID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTriggerByID finds a trigger without the caller already knowing its
// tenant, via the lazily built triggerId -> tenantId index.
func (s *Store) GetTriggerByID(triggerID string) (*domain.Trigger, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	s.idxMu.RLock()
	tenantID, ok := s.triggerTenant[triggerID]
	s.idxMu.RUnlock()
	if !ok {
		return nil, engineerr.ErrNotFound
	}
	return s.GetTrigger(tenantID, triggerID)
}

// DeleteTrigger hard-deletes a trigger record. Used by the janitor's
// sweep and by Registry.Delete for terminal triggers; lifecycle
// transitions are soft (status changes), never deletes.
func (s *Store) DeleteTrigger(tenantID, triggerID string) error {
	err := s.withTenantLock(tenantID, func() error {
		err := os.Remove(s.triggerPath(tenantID, triggerID))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.idxMu.Lock()
	delete(s.triggerTenant, triggerID)
	s.idxMu.Unlock()
	return nil
}

// ListTenantTriggers lists every trigger belonging to one tenant.
// Corrupt records are skipped and logged rather than failing the call.
func (s *Store) ListTenantTriggers(tenantID string) ([]*domain.Trigger, error) {
	entries, err := os.ReadDir(s.triggersDir(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	triggers := make([]*domain.Trigger, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		t, err := s.GetTrigger(tenantID, id)
		if err != nil {
			s.log.Warn().Err(err).Str("tenantId", tenantID).Str("triggerId", id).Msg("skipping unreadable trigger record")
			continue
		}
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].CreatedAt.Before(triggers[j].CreatedAt) })
	return triggers, nil
}

// ListAllTriggers walks every tenant directory. The scheduler's active
// set and the janitor's sweep both build on this rather than maintaining
// their own redundant index.
func (s *Store) ListAllTriggers() ([]*domain.Trigger, error) {
	tenants, err := s.ListTenants()
	if err != nil {
		return nil, err
	}
	var all []*domain.Trigger
	for _, tenantID := range tenants {
		triggers, err := s.ListTenantTriggers(tenantID)
		if err != nil {
			return nil, err
		}
		all = append(all, triggers...)
	}
	return all, nil
}

// ListByStatus filters ListAllTriggers by status.
func (s *Store) ListByStatus(status domain.Status) ([]*domain.Trigger, error) {
	all, err := s.ListAllTriggers()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListTenants returns every tenant directory present under the store root.
func (s *Store) ListTenants() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var tenants []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == locksDirName {
			continue
		}
		tenants = append(tenants, e.Name())
	}
	return tenants, nil
}

// AppendLog appends one order-log entry under the tenant's lock. Logs are
// append-only: no method ever rewrites or truncates an existing line.
func (s *Store) AppendLog(entry *domain.OrderLog) error {
	return s.withTenantLock(entry.TenantID, func() error {
		dir := s.logsDir(entry.TenantID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.logPath(entry.TenantID, entry.TriggerID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()

		line, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = f.Write(append(line, '\n'))
		return err
	})
}

// ListLogsFor reads every log line for one trigger, skipping any
// malformed line rather than failing the whole read.
func (s *Store) ListLogsFor(tenantID, triggerID string) ([]*domain.OrderLog, error) {
	data, err := os.ReadFile(s.logPath(tenantID, triggerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeLogLines(data, s.log)
}

// ListTenantLogs reads every log line across every trigger for a tenant.
func (s *Store) ListTenantLogs(tenantID string) ([]*domain.OrderLog, error) {
	entries, err := os.ReadDir(s.logsDir(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var all []*domain.OrderLog
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.logsDir(tenantID), e.Name()))
		if err != nil {
			continue
		}
		logs, err := decodeLogLines(data, s.log)
		if err != nil {
			continue
		}
		all = append(all, logs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all, nil
}

func decodeLogLines(data []byte, log zerolog.Logger) ([]*domain.OrderLog, error) {
	var out []*domain.OrderLog
	lines := splitLines(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry domain.OrderLog
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn().Err(err).Msg("skipping corrupt order log line")
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// PutIdentity writes a tenant's identity record and indexes its API
// key, atomically rotating out whatever key the tenant held before:
// under the same tenant lock that guards the write, it reads the
// previous config (if any) so the stale key can be evicted from the
// index once the new one is in place.
func (s *Store) PutIdentity(identity *domain.TenantIdentity) error {
	var oldKey string
	err := s.withTenantLock(identity.TenantID, func() error {
		var existing domain.TenantIdentity
		if err := readJSON(s.configPath(identity.TenantID), &existing); err == nil {
			oldKey = existing.APIKey
		}
		return writeJSONAtomic(s.configPath(identity.TenantID), identity)
	})
	if err != nil {
		return err
	}
	s.idxMu.Lock()
	if oldKey != "" && oldKey != identity.APIKey {
		delete(s.apiKeyTenant, oldKey)
	}
	s.apiKeyTenant[identity.APIKey] = identity.TenantID
	s.idxMu.Unlock()
	return nil
}

// GetIdentity loads a tenant's identity record.
func (s *Store) GetIdentity(tenantID string) (*domain.TenantIdentity, error) {
	var identity domain.TenantIdentity
	if err := readJSON(s.configPath(tenantID), &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// TenantByAPIKey resolves an API key to its owning tenant via the
// lazily built apiKey -> tenantId index.
func (s *Store) TenantByAPIKey(apiKey string) (string, error) {
	if err := s.ensureIndex(); err != nil {
		return "", err
	}
	s.idxMu.RLock()
	tenantID, ok := s.apiKeyTenant[apiKey]
	s.idxMu.RUnlock()
	if !ok {
		return "", engineerr.ErrNotFound
	}
	return tenantID, nil
}

// ensureIndex builds the triggerId/apiKey indices on first use by
// scanning the store root. Subsequent saves keep the index up to date
// incrementally; only the very first lookup pays the full-scan cost.
func (s *Store) ensureIndex() error {
	s.idxMu.RLock()
	built := s.indexBuilt
	s.idxMu.RUnlock()
	if built {
		return nil
	}

	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	if s.indexBuilt {
		return nil
	}

	tenants, err := s.ListTenants()
	if err != nil {
		return err
	}
	for _, tenantID := range tenants {
		if identity, err := s.GetIdentity(tenantID); err == nil {
			s.apiKeyTenant[identity.APIKey] = tenantID
		}
		entries, err := os.ReadDir(s.triggersDir(tenantID))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			id := e.Name()[:len(e.Name())-len(".json")]
			s.triggerTenant[id] = tenantID
		}
	}
	s.indexBuilt = true
	return nil
}
