package tenant

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/lexical"
	"github.com/flapjack/flapjack/internal/lww"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/oplog"
	"github.com/flapjack/flapjack/internal/vectorindex"
	"github.com/flapjack/flapjack/internal/writequeue"
)

// Resources bundles the live, in-memory state for one tenant: its oplog,
// LWW table, lexical index, per-embedder vector indexes, write-queue
// consumer, settings, and facet cache. Exactly one Resources exists per
// tenant for the process lifetime (spec §5's "exactly one write queue task
// per tenant" invariant).
type Resources struct {
	TenantID string
	root     string

	Oplog   *oplog.Oplog
	LWW     *lww.Table
	Lexical *lexical.Index
	Vectors writequeue.VectorIndexes
	Queue   *writequeue.Queue

	settingsMu sync.RWMutex
	settings   model.Settings

	FacetCache *facetCache

	rulesMu   sync.RWMutex
	rules     []model.Rule
	synonyms  []model.SynonymSet

	paused atomic.Bool
}

// Rules returns the tenant's current rule set. The slice is shared, not
// copied; SetRules replaces it rather than mutating it.
func (r *Resources) Rules() []model.Rule {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	return r.rules
}

// Synonyms returns the tenant's current synonym sets. The slice is shared,
// not copied; SetSynonyms replaces it rather than mutating it.
func (r *Resources) Synonyms() []model.SynonymSet {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	return r.synonyms
}

// SetRules updates and persists the tenant's rule set.
func (r *Resources) SetRules(rules []model.Rule) error {
	r.rulesMu.Lock()
	r.rules = rules
	r.rulesMu.Unlock()
	return writeRules(r.root, rules)
}

// SetSynonyms updates and persists the tenant's synonym sets.
func (r *Resources) SetSynonyms(synonyms []model.SynonymSet) error {
	r.rulesMu.Lock()
	r.synonyms = synonyms
	r.rulesMu.Unlock()
	return writeSynonyms(r.root, synonyms)
}

// Settings returns a copy of the tenant's current settings snapshot.
func (r *Resources) Settings() model.Settings {
	r.settingsMu.RLock()
	defer r.settingsMu.RUnlock()
	return r.settings
}

// SetSettings updates and persists the tenant's settings snapshot.
func (r *Resources) SetSettings(s model.Settings) error {
	r.settingsMu.Lock()
	r.settings = s
	r.settingsMu.Unlock()
	return writeSettings(r.root, s)
}

// Pause/Resume toggle the write-pause bit checked by the API layer (spec §6.2
// pause/resume endpoints). Reads are never gated by this flag.
func (r *Resources) Pause()       { r.paused.Store(true) }
func (r *Resources) Resume()      { r.paused.Store(false) }
func (r *Resources) IsPaused() bool { return r.paused.Load() }

// Manager lazily loads and owns every tenant's Resources for the process.
type Manager struct {
	mu      sync.RWMutex
	tenants map[string]*Resources

	dataDir            string
	localNodeID        string
	writeQueueCapacity int
	batchMaxOps        int
	batchWait          time.Duration
	facetCacheSize     int
	providerFactory    func(embeddings.Config) (embeddings.Provider, error)
	replicator         writequeue.Replicator
	logger             zerolog.Logger
}

// Config configures a Manager.
type Config struct {
	DataDir            string
	LocalNodeID        string
	WriteQueueCapacity int
	BatchMaxOps        int
	BatchWait          time.Duration
	FacetCacheSize     int
	ProviderFactory    func(embeddings.Config) (embeddings.Provider, error)
	// Replicator fans out this node's committed ops to peers. Nil on a
	// single-node deployment (spec §4.5 is a no-op with no configured peers).
	Replicator writequeue.Replicator
	Logger     zerolog.Logger
}

// NewManager returns an empty Manager; tenants are loaded lazily on first
// access via GetOrLoad.
func NewManager(cfg Config) *Manager {
	if cfg.ProviderFactory == nil {
		cfg.ProviderFactory = embeddings.New
	}
	return &Manager{
		tenants:            make(map[string]*Resources),
		dataDir:            cfg.DataDir,
		localNodeID:        cfg.LocalNodeID,
		writeQueueCapacity: cfg.WriteQueueCapacity,
		batchMaxOps:        cfg.BatchMaxOps,
		batchWait:          cfg.BatchWait,
		facetCacheSize:     cfg.FacetCacheSize,
		providerFactory:    cfg.ProviderFactory,
		replicator:         cfg.Replicator,
		logger:             cfg.Logger,
	}
}

// GetOrLoad returns the tenant's Resources, performing first-access
// recovery (spec §4.4) if this process has not yet opened the tenant.
func (m *Manager) GetOrLoad(tenantID string) (*Resources, error) {
	m.mu.RLock()
	r, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if ok {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.tenants[tenantID]; ok {
		return r, nil
	}

	r, err := m.recover(tenantID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	m.tenants[tenantID] = r
	return r, nil
}

// Peek returns a tenant's Resources without triggering recovery, for
// callers (replication status, cluster status) that only need to know
// whether a tenant is already resident.
func (m *Manager) Peek(tenantID string) (*Resources, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tenants[tenantID]
	return r, ok
}

// TenantIDs returns every tenant currently resident in memory.
func (m *Manager) TenantIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown drains and stops every tenant's write queue, per spec §5's
// graceful-shutdown discipline (drop senders, await every consumer).
func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var wg sync.WaitGroup
	for _, r := range m.tenants {
		wg.Add(1)
		go func(r *Resources) {
			defer wg.Done()
			r.Queue.Shutdown()
			r.Oplog.Close()
			r.Lexical.Close()
		}(r)
	}
	wg.Wait()
}
