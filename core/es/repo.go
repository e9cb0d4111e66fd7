package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/streamwright/eventfold/core/cache"
	"github.com/streamwright/eventfold/core/perkey"
)

type Repository interface {
	Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error
	Save(ctx context.Context, agg Aggregate, opts ...SaveOption) error
	CreateSnapshot(ctx context.Context, agg Aggregate, opts SnapshotSaveOpts) (*Snapshot, error)
}

// repository rehydrates aggregates through the Projector and persists new
// events with optimistic concurrency.
type repository struct {
	log         *slog.Logger
	store       EventStore
	registry    *EventRegistry
	projector   *Projector
	snapshotter Snapshotter
	cache       cache.Cache
	idGenerator IDGenerator
	metrics     ESMetrics
	optimistic  bool
	saveOpts    []SaveOption
	loadOpts    []LoadOption
}

func NewRepository(
	log *slog.Logger,
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := newRepoOpts(opts...)

	r := &repository{
		log:         log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:       store,
		registry:    registry,
		projector:   NewProjector(log, registry),
		snapshotter: options.snapshotter.s,
		cache:       options.cache,
		idGenerator: options.idGenerator,
		metrics:     options.metrics,
		optimistic:  options.optimistic,
		saveOpts:    options.saveOpts,
		loadOpts:    options.loadOpts,
	}

	return r
}

func (r *repository) cacheKey(aggType, aggID string) string {
	return fmt.Sprintf("%s/%s", aggType, aggID)
}

// Load rehydrates agg from the store. When a snapshot or cached state is
// available the fold starts there; otherwise it starts from the zero value.
func (r *repository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) (err error) {
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events (dirty=true)")
	}

	loadOptions := newLoadOptions(r.loadOpts, opts)

	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	log := r.log.With(
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
		),
	)

	// restore from cache first, then snapshot
	restored := false
	if loadOptions.useCache {
		if v, ok := r.cache.Get(r.cacheKey(aggType, aggID)); ok {
			if ss, ok := v.(*Snapshot); ok {
				if err := restoreFromSnapshot(agg, ss); err == nil {
					restored = true
					r.metrics.CacheHit(aggType)
					log.Debug("cache hit", agg.GetVersion().SlogAttr())
				}
			}
		}
		if !restored {
			r.metrics.CacheMiss(aggType)
		}
	}

	if !restored && loadOptions.snapshot {
		if r.snapshotter == nil {
			return ErrSnapshotterUnconfigured
		}
		err = ApplySnapshot(ctx, r.snapshotter, agg)
		if err != nil {
			if !errors.Is(err, ErrSnapshotNotFound) {
				return fmt.Errorf("failed to apply snapshot: %w", err)
			}
		} else {
			log.Debug(
				"snapshot applied",
				slog.Uint64("seq", agg.GetSeq()),
				agg.GetVersion().SlogAttr(),
			)
		}
	}

	var (
		curVersion = agg.GetVersion()
		curSeq     = agg.GetSeq()
		minVersion = curVersion + 1
		minSeq     = curSeq + 1
	)

	log.Debug(
		"load",
		slog.Group("opts",
			slog.Uint64("min_seq", minSeq),
			minVersion.SlogAttrWithKey("min_version"),
			slog.Bool("snapshot", loadOptions.snapshot),
		),
	)

	loaded, err := r.store.Load(
		ctx,
		aggType,
		aggID,
		WithStartAtVersion(minVersion),
		WithStartAtSeq(minSeq),
	)
	if err != nil {
		if errors.Is(err, ErrAggregateNotFound) && curVersion > 0 {
			// snapshot state exists but the backing stream is gone; treat the
			// restored state as authoritative
			return nil
		}
		return err
	}

	if err := r.projector.Project(agg, loaded); err != nil {
		return err
	}

	if agg.GetVersion() == 0 {
		return ErrAggregateNotFound
	}

	return nil
}

func restoreFromSnapshot(agg Aggregate, ss *Snapshot) (err error) {
	if sss, ok := any(agg).(Snapshottable); ok {
		err = sss.RestoreSnapshot(ss.Data)
	} else {
		err = json.Unmarshal(ss.Data, agg)
	}
	if err != nil {
		return err
	}
	agg.setVersion(ss.ObjVersion)
	agg.setSeq(ss.StreamSeq)
	for agg.GetGeneration() < ss.ObjVersion {
		agg.bumpGeneration()
	}
	return nil
}

func (r *repository) Save(ctx context.Context, agg Aggregate, saveOpts ...SaveOption) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}

	saveOptions := newSaveOptions(r.saveOpts, saveOpts)

	defer r.metrics.RepoSaveDuration(aggType).ObserveDuration()

	expectVersion := agg.GetVersion()
	newEnvs := make([]Envelope, 0, len(uncommitted))
	v := expectVersion

	for _, ev := range uncommitted {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}

		v++

		env := Envelope{
			ID:            r.idGenerator(),
			Type:          getEventTypeOf(ev),
			AggregateID:   aggID,
			AggregateType: aggType,
			Version:       v,
			OccurredAt:    time.Now(),
			Data:          data,
		}
		if c, ok := ev.(CorrelatedEvent); ok {
			env.Correlation = c.EventCorrelation()
		}

		err = env.Validate()
		if err != nil {
			return err
		}

		newEnvs = append(newEnvs, env)
	}

	if !r.optimistic {
		expectVersion = VersionAny
	}

	res, err := r.store.Append(
		ctx,
		aggType,
		aggID,
		expectVersion,
		newEnvs,
	)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if res == nil {
		return errors.New("append returned nil result")
	}

	agg.setSeq(res.LastSeq)
	agg.setVersion(res.LastVersion)
	agg.ClearUncommitted()

	r.metrics.EventsAppended(aggType, len(newEnvs))

	// state is only snapshot/cache safe when every committed event has been
	// applied; under snapshot isolation the in-memory state can trail the
	// committed version
	stateCurrent := agg.GetGeneration() == agg.GetVersion()

	if saveOptions.snapshot && stateCurrent {
		if _, snapshotErr := r.CreateSnapshot(ctx, agg, SnapshotSaveOpts{TTL: saveOptions.snapshotTTL}); snapshotErr != nil {
			return snapshotErr
		}
	}

	if saveOptions.useCache && stateCurrent {
		if ss, err := CreateSnapshot(agg); err == nil {
			r.cache.Put(r.cacheKey(aggType, aggID), ss)
		}
	}

	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("id", aggID),
			slog.String("type", aggType),
			slog.Uint64("seq", agg.GetSeq()),
			agg.GetVersion().SlogAttr(),
		),
		slog.Int("num_events", len(newEnvs)),
	)

	return nil
}

func (r *repository) CreateSnapshot(ctx context.Context, agg Aggregate, opts SnapshotSaveOpts) (ss *Snapshot, err error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	defer r.metrics.SnapshotSaveDuration(agg.GetAggType()).ObserveDuration()
	ss, err = CreateSnapshot(agg)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	err = r.snapshotter.SaveSnapshot(ctx, ss, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return
}

var _ Repository = &repository{}

// === TypedRepository ===

type (
	TypedRepository[T Aggregate] interface {
		GetAggType() string
		New() T
		NewWithID(id string) T
		Load(ctx context.Context, a T, opts ...LoadOption) error
		Create(ctx context.Context, aggID string, opts ...SaveOption) (T, error)
		GetOrCreate(ctx context.Context, aggID string, opts ...LoadAndSaveOption) (T, error)
		GetByID(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
		Save(ctx context.Context, agg T, opts ...SaveOption) error
		// WithTransaction loads the aggregate, runs fn against it and saves,
		// all serialized per aggregate ID.
		WithTransaction(ctx context.Context, aggID string, fn func(T) error, opts ...WithTransactionOption) (T, error)
		Close()
	}
)

type typedRepo[T Aggregate] struct {
	r     Repository
	log   *slog.Logger
	sched *perkey.Scheduler[string]
}

func (t *typedRepo[T]) New() T { return t.NewWithID("") }

func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	if c, ok := any(a).(interface{ Create() T }); ok {
		a = c.Create()
	} else {
		rt := reflect.TypeOf((*T)(nil)).Elem()
		if rt.Kind() == reflect.Pointer {
			a = reflect.New(rt.Elem()).Interface().(T)
		} else {
			a = *new(T)
		}
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) Load(ctx context.Context, a T, opts ...LoadOption) error {
	return t.r.Load(ctx, a, opts...)
}

func (t *typedRepo[T]) Create(ctx context.Context, aggID string, opts ...SaveOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = a.Create(aggID); err != nil {
		return a, err
	}
	if err = t.Save(ctx, a, opts...); err != nil {
		return a, err
	}
	t.log.Debug("created", slog.String("id", aggID))
	return a, nil
}

func (t *typedRepo[T]) GetOrCreate(ctx context.Context, aggID string, opts ...LoadAndSaveOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	options := newLoadAndSaveOptions(opts...)
	a = t.NewWithID(aggID)
	err = t.r.Load(ctx, a, options.loadOpts...)
	if err != nil {
		if errors.Is(err, ErrAggregateNotFound) {
			err = a.Create(aggID)
			if err != nil {
				return a, err
			}
			err = t.Save(ctx, a, options.saveOpts...)
			if err != nil {
				return a, err
			}

			t.log.Debug("created", slog.String("id", aggID))
		} else {
			return a, err
		}
	}
	return a, nil
}

func (t *typedRepo[T]) GetByID(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	err = t.r.Load(ctx, a, opts...)
	if err != nil {
		return
	}
	return a, nil
}

func (t *typedRepo[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return t.r.Save(ctx, agg, opts...)
}

func (t *typedRepo[T]) WithTransaction(
	ctx context.Context,
	aggID string,
	fn func(T) error,
	opts ...WithTransactionOption,
) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	options := newWithTransactionOptions(opts...)

	err = t.sched.DoContext(ctx, aggID, func() error {
		var txErr error
		if options.create {
			a, txErr = t.GetOrCreate(
				ctx,
				aggID,
				WithLoadOpts(options.loadOpts...),
				WithSaveOpts(options.saveOpts...),
			)
		} else {
			a, txErr = t.GetByID(ctx, aggID, options.loadOpts...)
		}
		if txErr != nil {
			return txErr
		}
		if txErr = fn(a); txErr != nil {
			return txErr
		}
		return t.Save(ctx, a, options.saveOpts...)
	})
	return a, err
}

func (t *typedRepo[T]) GetAggType() string {
	a := t.New()
	return a.GetAggType()
}

func (t *typedRepo[T]) Close() { t.sched.Close() }

func NewTypedRepository[T Aggregate](log *slog.Logger, s EventStore, reg *EventRegistry, opts ...RepositoryOption) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, s, reg, opts...))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{
		r:     r,
		log:   log.With(slog.String("repo", fmt.Sprintf("%T", *new(T)))),
		sched: perkey.New[string](),
	}
}
