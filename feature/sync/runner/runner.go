package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/retry"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/storage"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/vault"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/metafields"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/resources"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrRunInFlight is returned when a run for the connection is already
	// executing. Two concurrent runs would race on the mapping registry.
	ErrRunInFlight = errors.New("a sync run for this connection is already in flight")
	// ErrConnectionNotFound is returned for an unknown connection id.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrConnectionInactive is returned for a disabled connection.
	ErrConnectionInactive = errors.New("connection is not active")
)

// metafieldOwnerTypes are the owner categories whose definitions are synced.
var metafieldOwnerTypes = []string{"PRODUCT", "PRODUCTVARIANT", "COLLECTION", "PAGE"}

// resourceOrder is the stage order for resource sync. Files go first so that
// media references resolve; menus go last because their items reference
// everything else.
var resourceOrder = []models.ResourceType{
	models.ResourceFiles,
	models.ResourceProducts,
	models.ResourceCollections,
	models.ResourcePages,
	models.ResourceMenus,
}

// Runner executes the full pipeline for one connection: location matching,
// definitions, then resources, all sharing the connection's mapping
// registry. One run per connection at a time.
type Runner struct {
	db        *gorm.DB
	targetCfg remote.Config
	vault     *vault.Vault
	store     storage.Client
	archive   storage.Config
	logger    *zap.Logger
	cfg       Config

	// clients builds the source and target clients for a run; tests
	// substitute scripted ones.
	clients func(conn models.Connection, token string) (remote.Client, remote.Client)

	mu       sync.Mutex
	inFlight map[uint]bool
}

// New creates a runner. store may be nil when archival is disabled.
func New(db *gorm.DB, targetCfg remote.Config, v *vault.Vault, store storage.Client, archive storage.Config, cfg Config, logger *zap.Logger) *Runner {
	r := &Runner{
		db:        db,
		targetCfg: targetCfg,
		vault:     v,
		store:     store,
		archive:   archive,
		logger:    logger,
		cfg:       cfg,
		inFlight:  make(map[uint]bool),
	}
	r.clients = func(conn models.Connection, token string) (remote.Client, remote.Client) {
		return remote.NewForShop(conn.SourceDomain, token, r.targetCfg), remote.New(r.targetCfg)
	}
	return r
}

// runState accumulates one run's summary and log.
type runState struct {
	run     *models.SyncRun
	partial bool
}

func (s *runState) log(level, format string, args ...any) {
	s.run.Logs = append(s.run.Logs, models.LogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

// prepared is a validated run waiting to execute. The in-flight lock is held
// from prepare until finish releases it.
type prepared struct {
	conn  models.Connection
	token string
	run   *models.SyncRun
}

// prepare validates the connection, creates the run record and takes the
// in-flight lock. On error the lock is not held.
func (r *Runner) prepare(ctx context.Context, connectionID uint) (*prepared, error) {
	if err := r.acquire(connectionID); err != nil {
		return nil, err
	}

	var conn models.Connection
	if err := r.db.WithContext(ctx).First(&conn, connectionID).Error; err != nil {
		r.release(connectionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	if !conn.IsActive {
		r.release(connectionID)
		return nil, ErrConnectionInactive
	}

	token, err := r.vault.Decrypt(conn.Credential)
	if err != nil {
		r.release(connectionID)
		return nil, fmt.Errorf("failed to decrypt connection credential: %w", err)
	}

	run := &models.SyncRun{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Status:       models.StatusRunning,
		StartedAt:    time.Now().UTC(),
		Summary:      models.RunSummary{},
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		r.release(connectionID)
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	return &prepared{conn: conn, token: token, run: run}, nil
}

// Run executes one synchronous sync run. resourceTypes filters the resource
// stages; empty means all. The returned SyncRun is persisted in its terminal
// state before Run returns.
func (r *Runner) Run(ctx context.Context, connectionID uint, resourceTypes []string) (*models.SyncRun, error) {
	prep, err := r.prepare(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, prep, resourceTypes)
}

// Start begins a run in the background and returns it while still running.
// Callers poll Get for the terminal state.
func (r *Runner) Start(connectionID uint, resourceTypes []string) (*models.SyncRun, error) {
	ctx := context.Background()
	prep, err := r.prepare(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	go func() {
		if _, err := r.finish(ctx, prep, resourceTypes); err != nil {
			r.logger.Error("Background sync run failed",
				zap.Uint("connection_id", connectionID),
				zap.String("run_id", prep.run.ID),
				zap.Error(err))
		}
	}()
	return prep.run, nil
}

// finish executes the prepared run to its terminal state and releases the
// in-flight lock.
func (r *Runner) finish(ctx context.Context, prep *prepared, resourceTypes []string) (*models.SyncRun, error) {
	connectionID := prep.conn.ID
	defer r.release(connectionID)

	run := prep.run
	state := &runState{run: run}
	log := r.logger.With(zap.Uint("connection_id", connectionID), zap.String("run_id", run.ID))

	src, tgt := r.clients(prep.conn, prep.token)

	fatal := r.execute(ctx, src, tgt, connectionID, resourceTypes, state, log)

	now := time.Now().UTC()
	run.CompletedAt = &now
	switch {
	case fatal != nil:
		run.Status = models.StatusFailed
		state.log("error", "run aborted: %v", fatal)
		log.Error("Sync run failed", zap.Error(fatal))
	case state.partial:
		run.Status = models.StatusPartial
		log.Warn("Sync run finished with entity failures")
	default:
		run.Status = models.StatusSuccess
		log.Info("Sync run finished")
	}

	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return run, fmt.Errorf("failed to persist sync run: %w", err)
	}

	r.archiveRun(ctx, run, log)
	return run, fatal
}

// Get loads a run by id.
func (r *Runner) Get(ctx context.Context, runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Runner) acquire(connectionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[connectionID] {
		return ErrRunInFlight
	}
	r.inFlight[connectionID] = true
	return nil
}

func (r *Runner) release(connectionID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, connectionID)
}

func (r *Runner) engineOptions() engine.Options {
	policy := retry.Policy{
		Attempts: r.cfg.RetryAttempts,
		Base:     time.Duration(r.cfg.RetryBaseMS) * time.Millisecond,
	}
	if policy.Attempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return engine.Options{
		Retry:     policy,
		PageDelay: time.Duration(r.cfg.PageDelayMS) * time.Millisecond,
		ItemDelay: time.Duration(r.cfg.ItemDelayMS) * time.Millisecond,
	}
}

// execute runs the stages in order. The returned error is the fatal one that
// aborted the run, if any; entity-level failures only mark the run partial.
func (r *Runner) execute(ctx context.Context, src, tgt remote.Client, connectionID uint, resourceTypes []string, state *runState, log *zap.Logger) error {
	registry := mapping.NewRegistry(r.db, connectionID, log)
	deps := resources.Deps{
		Src:      src,
		Tgt:      tgt,
		Registry: registry,
		Logger:   log,
		PageSize: r.cfg.PageSize,
	}

	// Stage 1: locations. Everything downstream needs the location map.
	locations, locReport, err := resources.BuildLocationMap(ctx, deps)
	if err != nil {
		return err
	}
	state.run.Summary["locations"] = models.Counts{Updated: locReport.Matched, Skipped: len(locReport.Unmatched)}
	for _, name := range locReport.Unmatched {
		state.log("warn", "location %q has no target counterpart; its inventory will be skipped", name)
	}

	// Stage 2: definitions before any resource that may reference them.
	defSyncer := metafields.NewDefinitionSyncer(src, tgt, registry, log, r.cfg.PageSize)
	report, err := defSyncer.SyncMetaobjectDefinitions(ctx)
	r.recordReport(state, "metaobject_definitions", report)
	if err != nil {
		return err
	}
	report, err = defSyncer.SyncMetafieldDefinitions(ctx, metafieldOwnerTypes)
	r.recordReport(state, "metafield_definitions", report)
	if err != nil {
		return err
	}

	// Stage 3: resources in dependency order.
	wanted := make(map[models.ResourceType]bool, len(resourceTypes))
	for _, t := range resourceTypes {
		wanted[models.ResourceType(t)] = true
	}

	eng := engine.New(registry, log, r.engineOptions())
	for _, resourceType := range resourceOrder {
		if len(wanted) > 0 && !wanted[resourceType] {
			continue
		}

		adapter := r.adapterFor(resourceType, deps, locations)
		outcome, err := eng.Run(ctx, adapter)
		if outcome != nil {
			state.run.Summary[string(resourceType)] = outcome.Counts
			if outcome.Counts.Failed > 0 {
				state.partial = true
			}
			for _, e := range outcome.Errors {
				state.log("error", "%s %q: %s", adapter.Name(), e.Key, e.Detail)
			}
			for _, note := range outcome.Notes {
				state.log("info", "%s: %s", adapter.Name(), note)
			}
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) adapterFor(resourceType models.ResourceType, deps resources.Deps, locations map[string]string) engine.Adapter {
	switch resourceType {
	case models.ResourceFiles:
		return resources.NewFileAdapter(deps)
	case models.ResourceProducts:
		return resources.NewProductAdapter(deps, locations)
	case models.ResourceCollections:
		return resources.NewCollectionAdapter(deps)
	case models.ResourcePages:
		return resources.NewPageAdapter(deps)
	case models.ResourceMenus:
		return resources.NewMenuAdapter(deps)
	}
	panic(fmt.Sprintf("no adapter for resource type %q", resourceType))
}

func (r *Runner) recordReport(state *runState, stage string, report *metafields.Report) {
	if report == nil {
		return
	}
	state.run.Summary[stage] = report.Counts
	if report.Counts.Failed > 0 {
		state.partial = true
	}
	if report.Reserved > 0 {
		state.log("info", "%s: %d reserved-namespace entries skipped", stage, report.Reserved)
	}
	for _, f := range report.Failures {
		state.log("error", "%s %q: %s", stage, f.Key, f.Detail)
	}
	for _, note := range report.Notes {
		state.log("info", "%s: %s", stage, note)
	}
}

// archiveRun writes the terminal run report to object storage. Archival is
// best effort; a storage failure never changes the run outcome.
func (r *Runner) archiveRun(ctx context.Context, run *models.SyncRun, log *zap.Logger) {
	if r.store == nil || !r.archive.Enabled {
		return
	}

	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		log.Warn("Failed to encode run report", zap.Error(err))
		return
	}

	exists, err := r.store.BucketExists(ctx, r.archive.Bucket)
	if err != nil {
		log.Warn("Failed to check archive bucket", zap.Error(err))
		return
	}
	if !exists {
		if err := r.store.MakeBucket(ctx, r.archive.Bucket, minio.MakeBucketOptions{Region: r.archive.Region}); err != nil {
			log.Warn("Failed to create archive bucket", zap.Error(err))
			return
		}
	}

	objectName := fmt.Sprintf("runs/%d/%s.json", run.ConnectionID, run.ID)
	_, err = r.store.PutObject(ctx, r.archive.Bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		log.Warn("Failed to archive run report", zap.String("object", objectName), zap.Error(err))
		return
	}
	log.Info("Run report archived", zap.String("object", objectName))
}
