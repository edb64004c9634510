// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/changelog"
	"github.com/fluxgate/experiment/hashing"
	"github.com/fluxgate/experiment/internal/logging"
	"github.com/fluxgate/experiment/internal/metrics"
)

// Publisher is implemented by subscribe.Hub. Manager depends only on this
// narrow interface so it never needs to know about subscriber queues or
// transport (§4.8).
type Publisher interface {
	Publish(ConfigChange)
}

// Config holds the State Manager's tunable knobs (§5 "bounded timeout",
// §7 "retried up to K times", §6 "hash_slots").
type Config struct {
	ReloadTimeout    time.Duration
	MaxReloadRetries uint64

	// HashSlots is the hash_slots value (§6) every Snapshot this Manager
	// builds is validated and bucketed against. Zero means
	// hashing.DefaultSlots.
	HashSlots uint32
}

// DefaultConfig returns conservative defaults: a half-second reload
// deadline, retried up to 3 times with exponential backoff, and the
// standard 10000-slot hash space.
func DefaultConfig() Config {
	return Config{ReloadTimeout: 500 * time.Millisecond, MaxReloadRetries: 3, HashSlots: hashing.DefaultSlots}
}

// Manager is the State Manager (C7). It satisfies changelog.Handler so a
// changelog.Poller can drive it directly.
//
// The current Snapshot lives behind an atomic.Pointer: readers load it with
// a single atomic read and hold the resulting pointer for the life of their
// request. No reader ever takes a lock. Go's garbage collector is what
// realizes the "shared-ownership handle, released when the last reader
// drops it" language of §9 — there is no manual refcounting to get wrong,
// since the runtime already keeps an old Snapshot alive for exactly as long
// as some goroutine still references it.
//
// mu serializes writers only (the Poller delivers entries one at a time,
// so in practice there is rarely contention); it is never held by a reader.
type Manager struct {
	current atomic.Pointer[catalog.Snapshot]
	mu      sync.Mutex

	layerStore      LayerStore
	experimentStore ExperimentStore
	fieldTypes      catalog.FieldTypes

	cfg       Config
	log       logging.Logger
	metrics   *metrics.Metrics
	publisher Publisher // may be nil if no fan-out is configured

	// version generates §3's monotonically non-decreasing version. It is
	// distinct from wall-clock time so two changes applied within the same
	// second still advance the version (§4.7 "version advances
	// monotonically").
	version int64
}

// NewManager constructs a Manager. Start must be called before Current
// returns a non-nil Snapshot.
func NewManager(
	layerStore LayerStore,
	experimentStore ExperimentStore,
	fieldTypes catalog.FieldTypes,
	cfg Config,
	log logging.Logger,
	m *metrics.Metrics,
	publisher Publisher,
) *Manager {
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = 500 * time.Millisecond
	}
	if cfg.MaxReloadRetries == 0 {
		cfg.MaxReloadRetries = 3
	}
	if cfg.HashSlots == 0 {
		cfg.HashSlots = hashing.DefaultSlots
	}
	if log == nil {
		log = logging.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Manager{
		layerStore:      layerStore,
		experimentStore: experimentStore,
		fieldTypes:      fieldTypes,
		cfg:             cfg,
		log:             log,
		metrics:         m,
		publisher:       publisher,
	}
}

// Start loads every layer and experiment from the authoritative store,
// builds the initial Snapshot, and records version = current_time_seconds()
// (§4.7 "Startup"). The caller is expected to start a changelog.Poller
// against this Manager immediately afterward.
func (m *Manager) Start(ctx context.Context) error {
	layers, err := m.layerStore.ListLayers(ctx)
	if err != nil {
		return errors.Wrap(err, "state: initial layer load")
	}
	experiments, err := m.experimentStore.ListExperiments(ctx)
	if err != nil {
		return errors.Wrap(err, "state: initial experiment load")
	}

	initialVersion := time.Now().Unix()
	result := catalog.Build(layers, experiments, m.fieldTypes, initialVersion, m.cfg.HashSlots)
	m.logLoadErrors(result)

	m.mu.Lock()
	m.version = initialVersion
	m.mu.Unlock()

	m.current.Store(result.Snapshot)
	m.metrics.SnapshotSwaps.Inc()
	m.metrics.SnapshotVersion.Set(float64(initialVersion))
	m.log.Info("initial snapshot built",
		zap.Int64("version", initialVersion),
		zap.Int("layers", len(layers)),
		zap.Int("experiments", len(experiments)))
	return nil
}

// Current returns the currently published Snapshot in O(1): a single
// atomic load, no copy (§4.5, §5 O3).
func (m *Manager) Current() *catalog.Snapshot {
	return m.current.Load()
}

// Handle applies one change-log Entry, satisfying changelog.Handler
// (§4.7). It is always called from the Poller's single goroutine, but mu
// still guards the read-modify-write of m.version and the prior Snapshot
// against a concurrent SetFieldTypes call.
func (m *Manager) Handle(ctx context.Context, entry changelog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior := m.current.Load()
	version := m.nextVersionLocked()

	switch entry.EntityType {
	case changelog.EntityLayer:
		return m.handleLayer(ctx, entry, prior, version)
	case changelog.EntityExperiment:
		return m.handleExperiment(ctx, entry, prior, version)
	default:
		m.log.Warn("unknown entity_type in change log, entry consumed and ignored",
			zap.String("entity_type", string(entry.EntityType)), zap.Int64("id", entry.ID))
		return nil
	}
}

func (m *Manager) handleLayer(ctx context.Context, entry changelog.Entry, prior *catalog.Snapshot, version int64) error {
	if entry.Operation == changelog.OpDelete {
		result := catalog.RemoveLayer(prior, entry.EntityID, version)
		m.publish(result, LayerDeleted, entry.EntityID, nil)
		return nil
	}

	layer, err := m.reloadLayer(ctx, entry.EntityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.log.Warn("layer reload: entity no longer exists, entry consumed",
				zap.String("entity_id", entry.EntityID))
			return nil
		}
		return errors.Wrapf(err, "state: reload layer %q", entry.EntityID)
	}

	result := catalog.ApplyLayer(prior, layer, version)
	kind := LayerUpdated
	if entry.Operation == changelog.OpCreate {
		kind = LayerCreated
	}
	m.publish(result, kind, entry.EntityID, layer)
	return nil
}

func (m *Manager) handleExperiment(ctx context.Context, entry changelog.Entry, prior *catalog.Snapshot, version int64) error {
	if entry.Operation == changelog.OpDelete {
		eid, err := parseEID(entry.EntityID)
		if err != nil {
			m.log.Warn("experiment delete: malformed entity_id, entry consumed", zap.String("entity_id", entry.EntityID))
			return nil
		}
		result := catalog.RemoveExperiment(prior, eid, version)
		m.publish(result, ExperimentDeleted, entry.EntityID, nil)
		return nil
	}

	eid, err := parseEID(entry.EntityID)
	if err != nil {
		m.log.Warn("experiment reload: malformed entity_id, entry consumed", zap.String("entity_id", entry.EntityID))
		return nil
	}

	exp, err := m.reloadExperiment(ctx, eid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.log.Warn("experiment reload: entity no longer exists, entry consumed", zap.Int64("eid", eid))
			return nil
		}
		return errors.Wrapf(err, "state: reload experiment %d", eid)
	}

	result := catalog.ApplyExperiment(prior, exp, version)
	kind := ExperimentUpdated
	if entry.Operation == changelog.OpCreate {
		kind = ExperimentCreated
	}
	m.publish(result, kind, entry.EntityID, exp)
	return nil
}

// SetFieldTypes applies a field-type change (§6 set_field_types). An
// experiment whose rule the change invalidates is rejected at rebuild (a
// LoadError) and is absent from the new Snapshot; its prior version is not
// kept. Layers are not rejected for it: a layer whose ranges name that
// experiment's vids stays in the Snapshot, but those vids no longer resolve,
// so the layer stops matching. The rest of the catalog carries over
// unchanged.
func (m *Manager) SetFieldTypes(fieldTypes catalog.FieldTypes) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior := m.current.Load()
	version := m.nextVersionLocked()
	m.fieldTypes = fieldTypes
	result := catalog.WithFieldTypes(prior, fieldTypes, version)
	m.logLoadErrors(result)
	m.current.Store(result.Snapshot)
	m.metrics.SnapshotSwaps.Inc()
	m.metrics.SnapshotVersion.Set(float64(version))
}

// GetFieldTypes returns the currently active field-type mapping (§6
// get_field_types).
func (m *Manager) GetFieldTypes() catalog.FieldTypes {
	return m.current.Load().FieldTypes()
}

func (m *Manager) publish(result *catalog.BuildResult, kind ConfigChangeKind, entityID string, payload any) {
	m.logLoadErrors(result)
	m.current.Store(result.Snapshot)
	m.metrics.SnapshotSwaps.Inc()
	m.metrics.SnapshotVersion.Set(float64(result.Snapshot.Version()))

	if m.publisher != nil {
		m.publisher.Publish(ConfigChange{
			Kind:      kind,
			Version:   result.Snapshot.Version(),
			Timestamp: time.Now(),
			EntityID:  entityID,
			Payload:   payload,
		})
	}
}

// nextVersionLocked returns a version strictly greater than the prior one,
// called with mu held. It prefers wall-clock seconds but never regresses,
// satisfying §3's "monotonically non-decreasing" even when multiple changes
// land within the same second.
func (m *Manager) nextVersionLocked() int64 {
	now := time.Now().Unix()
	if now > m.version {
		m.version = now
	} else {
		m.version++
	}
	return m.version
}

func (m *Manager) logLoadErrors(result *catalog.BuildResult) {
	for _, err := range result.Errs.All() {
		var le *catalog.LoadError
		kind := "unknown"
		if errors.As(err, &le) {
			kind = string(le.Kind)
		}
		m.metrics.LoadErrors.WithLabelValues(kind).Inc()
		m.log.Warn("rejected entity while building snapshot", zap.Error(err))
	}
}

// reloadLayer fetches a layer with a bounded timeout, retried up to
// MaxReloadRetries times on transient failure (§5 "authoritative-store
// reload has a bounded timeout... retried up to K times").
func (m *Manager) reloadLayer(ctx context.Context, id string) (*catalog.Layer, error) {
	var layer *catalog.Layer
	op := func() error {
		reloadCtx, cancel := context.WithTimeout(ctx, m.cfg.ReloadTimeout)
		defer cancel()
		l, err := m.layerStore.GetLayer(reloadCtx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		layer = l
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.cfg.MaxReloadRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.metrics.ReloadTimeouts.Inc()
		}
		return nil, err
	}
	return layer, nil
}

func (m *Manager) reloadExperiment(ctx context.Context, eid int64) (*catalog.Experiment, error) {
	var exp *catalog.Experiment
	op := func() error {
		reloadCtx, cancel := context.WithTimeout(ctx, m.cfg.ReloadTimeout)
		defer cancel()
		e, err := m.experimentStore.GetExperiment(reloadCtx, eid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		exp = e
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.cfg.MaxReloadRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.metrics.ReloadTimeouts.Inc()
		}
		return nil, err
	}
	return exp, nil
}

// parseEID converts an experiment change-log entity_id (decimal string) to
// the EID catalog.Experiment keys on.
func parseEID(entityID string) (int64, error) {
	return strconv.ParseInt(entityID, 10, 64)
}
