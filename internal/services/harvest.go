package services

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/scraper"
	"github.com/nexconsult/quote-harvester/internal/storage"
	"github.com/nexconsult/quote-harvester/internal/worker"
)

var (
	// ErrRunInProgress is returned by Start while another run holds the lock
	ErrRunInProgress = errors.New("a harvesting run is already in progress")
	// ErrNoRun is returned by LastSummary when no run of that kind finished yet
	ErrNoRun = errors.New("no run recorded")
)

const (
	runLockKey = "lock:run"
	runLockTTL = 2 * time.Hour
	alertTTL   = 15 * time.Second
)

func lastRunKey(kind models.RunKind) string {
	return "last:" + string(kind)
}

// HarvestDeps are the collaborators of a HarvestService
type HarvestDeps struct {
	Config      *config.Config
	Events      EventStore
	Links       TenantEventStore
	Items       ItemStore
	Credentials CredentialStore
	Vault       Decrypter
	Browser     BrowserServiceInterface
	Gateway     Authenticator
	Notifier    Notifier
	Cache       CacheServiceInterface
	Metrics     *Metrics
	Selectors   portal.Selectors
	Logger      *logrus.Logger
}

// HarvestService runs the discovery, items and reconcile passes over every
// tenant credential.
type HarvestService struct {
	HarvestDeps

	listing *scraper.ListingExtractor
	detail  *scraper.DetailExtractor
	pool    *worker.Pool
	log     *logrus.Entry
	now     func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	running sync.WaitGroup
}

func NewHarvestService(d HarvestDeps) *HarvestService {
	cfg := d.Config
	baseCtx, stop := context.WithCancel(context.Background())

	return &HarvestService{
		HarvestDeps: d,
		listing:     scraper.NewListingExtractor(d.Selectors, cfg.Portal.DetailURL, logger.Component(d.Logger, "listing")),
		detail:      scraper.NewDetailExtractor(d.Selectors, cfg.Timeouts, logger.Component(d.Logger, "detail")),
		pool:        worker.NewPool(cfg.Portal.Workers, logger.Component(d.Logger, "worker")),
		log:         logger.Component(d.Logger, "harvest"),
		now:         time.Now,
		baseCtx:     baseCtx,
		stop:        stop,
	}
}

// DiscoverEvents walks the listing of every tenant and stores new events and
// tenant links. tenant restricts the pass to one tenant when non-nil.
func (s *HarvestService) DiscoverEvents(ctx context.Context, tenant *int64) (*models.RunSummary, error) {
	return s.Run(ctx, models.RunDiscover, tenant)
}

// HarvestItems extracts line items of pending events inside the lookback window
func (s *HarvestService) HarvestItems(ctx context.Context, tenant *int64) (*models.RunSummary, error) {
	return s.Run(ctx, models.RunItems, tenant)
}

// Run executes one pass, or all three in order for RunFull. The summary is
// always returned, also on failure.
func (s *HarvestService) Run(ctx context.Context, kind models.RunKind, tenant *int64) (*models.RunSummary, error) {
	return s.run(ctx, uuid.New().String(), kind, tenant)
}

// RunExclusive executes Run while holding the run lock, so it never overlaps
// a run started through the API or another process sharing the cache.
func (s *HarvestService) RunExclusive(ctx context.Context, kind models.RunKind, tenant *int64) (*models.RunSummary, error) {
	runID := uuid.New().String()
	if err := s.acquire(ctx, runID); err != nil {
		return nil, err
	}
	defer s.release(ctx, runID)

	return s.run(ctx, runID, kind, tenant)
}

// Start launches Run in the background under the run lock and returns the run id
func (s *HarvestService) Start(kind models.RunKind, tenant *int64) (string, error) {
	runID := uuid.New().String()
	if err := s.acquire(s.baseCtx, runID); err != nil {
		return "", err
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.release(s.baseCtx, runID)
		_, _ = s.run(s.baseCtx, runID, kind, tenant)
	}()

	return runID, nil
}

func (s *HarvestService) acquire(ctx context.Context, runID string) error {
	acquired, err := s.Cache.SetIfAbsent(ctx, runLockKey, runID, runLockTTL)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return ErrRunInProgress
	}
	return nil
}

// release drops the run lock if runID still owns it. A lock that lapsed and
// was taken by another run stays with that run.
func (s *HarvestService) release(ctx context.Context, runID string) {
	released, err := s.Cache.DeleteIfValue(context.WithoutCancel(ctx), runLockKey, runID)
	if err != nil {
		s.log.WithError(err).Warn("Failed to release run lock")
		return
	}
	if !released {
		s.log.WithField("run_id", runID).Warn("Run lock was taken over by another run, leaving it in place")
	}
}

// LastSummary returns the most recent finished run of kind
func (s *HarvestService) LastSummary(ctx context.Context, kind models.RunKind) (*models.RunSummary, error) {
	raw, err := s.Cache.Get(ctx, lastRunKey(kind))
	if errors.Is(err, ErrCacheMiss) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}

	var summary models.RunSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	return &summary, nil
}

// PoolStats returns the counters of the tenant worker pool
func (s *HarvestService) PoolStats() worker.PoolStats {
	return s.pool.Stats()
}

// Close cancels background runs and waits for them
func (s *HarvestService) Close() {
	s.stop()
	s.running.Wait()
}

func (s *HarvestService) run(ctx context.Context, runID string, kind models.RunKind, tenant *int64) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     runID,
		Kind:      kind,
		StartedAt: s.now(),
	}
	log := s.log.WithFields(logrus.Fields{"run_id": runID, "kind": kind})
	log.Info("Run started")

	var err error
	switch kind {
	case models.RunDiscover:
		summary.Tenants, err = s.discoverPass(ctx, log, tenant)
	case models.RunItems:
		summary.Tenants, err = s.itemsPass(ctx, log, tenant)
	case models.RunReconcile:
		summary.EventsChecked, summary.EventsMarked, err = s.MarkCompleted(ctx)
	case models.RunFull:
		err = s.fullPass(ctx, log, summary, tenant)
	default:
		err = fmt.Errorf("unknown run kind %q", kind)
	}

	summary.FinishedAt = s.now()
	if err != nil {
		summary.Error = err.Error()
	}
	s.finish(ctx, log, summary)

	return summary, err
}

func (s *HarvestService) fullPass(ctx context.Context, log *logrus.Entry, summary *models.RunSummary, tenant *int64) error {
	discovered, err := s.discoverPass(ctx, log, tenant)
	summary.Tenants = append(summary.Tenants, discovered...)
	if err != nil {
		return err
	}

	items, err := s.itemsPass(ctx, log, tenant)
	summary.Tenants = append(summary.Tenants, items...)
	if err != nil {
		return err
	}

	summary.EventsChecked, summary.EventsMarked, err = s.MarkCompleted(ctx)
	return err
}

func (s *HarvestService) finish(ctx context.Context, log *logrus.Entry, summary *models.RunSummary) {
	totals := summary.Totals()
	if s.Metrics != nil {
		s.Metrics.ObserveRun(summary)
	}

	fields := logrus.Fields{
		"duration":        summary.Duration().String(),
		"tenants":         len(summary.Tenants),
		"events_inserted": totals.EventsInserted,
		"links_inserted":  totals.LinksInserted,
		"items_inserted":  totals.ItemsInserted,
		"events_marked":   summary.EventsMarked,
	}

	if raw, err := json.Marshal(summary); err == nil {
		if err := s.Cache.Set(context.WithoutCancel(ctx), lastRunKey(summary.Kind), string(raw)); err != nil {
			log.WithError(err).Warn("Failed to cache run summary")
		}
	}

	if summary.Error != "" {
		log.WithFields(fields).WithField("error", summary.Error).Error("Run failed")
		s.alert(ctx, fmt.Sprintf("quote-harvester: %s run %s failed: %s", summary.Kind, summary.RunID, summary.Error))
		return
	}

	log.WithFields(fields).Info("Run finished")
	if s.Config.Portal.NotifyOnFinish {
		s.alert(ctx, fmt.Sprintf("quote-harvester: %s run finished in %s: %d new events, %d new links, %d new items, %d events completed",
			summary.Kind, summary.Duration().Round(time.Second), totals.EventsInserted, totals.LinksInserted, totals.ItemsInserted, summary.EventsMarked))
	}
}

// alert never fails the caller
func (s *HarvestService) alert(ctx context.Context, message string) {
	if s.Notifier == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTTL)
	defer cancel()

	if err := s.Notifier.Notify(actx, message); err != nil {
		s.log.WithError(err).Warn("Failed to deliver alert")
	}
}

// MarkCompleted flags pending events that already have line items as
// included. It returns how many events were checked and marked.
func (s *HarvestService) MarkCompleted(ctx context.Context) (int, int, error) {
	pending, err := s.Events.ListPending(ctx, s.Config.Portal.ID)
	if err != nil {
		return 0, 0, err
	}

	marked := 0
	for i, ev := range pending {
		if err := ctx.Err(); err != nil {
			return i, marked, err
		}

		exists, err := s.Items.ExistsForEvent(ctx, ev.EventID)
		if err != nil {
			return i, marked, err
		}
		if !exists {
			continue
		}

		ok, err := s.Events.MarkIncluded(ctx, ev.EventID)
		if err != nil {
			return i, marked, err
		}
		if ok {
			marked++
			s.log.WithField("event_id", ev.EventID).Debug("Event marked included")
		}
	}

	s.log.WithFields(logrus.Fields{"checked": len(pending), "marked": marked}).Info("Completion sweep finished")
	return len(pending), marked, nil
}

// tenantFunc does one pass for a tenant on an authenticated page
type tenantFunc func(ctx context.Context, page portal.Page, login models.PortalLogin, res *models.TenantResult) error

func (s *HarvestService) discoverPass(ctx context.Context, log *logrus.Entry, tenant *int64) ([]models.TenantResult, error) {
	return s.forEachTenant(ctx, log, models.RunDiscover, tenant, s.discoverTenant)
}

func (s *HarvestService) itemsPass(ctx context.Context, log *logrus.Entry, tenant *int64) ([]models.TenantResult, error) {
	claimed := &eventSet{ids: make(map[int64]struct{})}
	return s.forEachTenant(ctx, log, models.RunItems, tenant, func(ctx context.Context, page portal.Page, login models.PortalLogin, res *models.TenantResult) error {
		return s.itemsTenant(ctx, page, login, res, claimed)
	})
}

// forEachTenant runs fn for every active login on the worker pool. A tenant
// failure is recorded in its result; a storage failure cancels the remaining
// tenants and is returned.
func (s *HarvestService) forEachTenant(ctx context.Context, log *logrus.Entry, pass models.RunKind, tenant *int64, fn tenantFunc) ([]models.TenantResult, error) {
	logins, results, err := s.logins(ctx, tenant)
	if err != nil {
		return results, err
	}
	for i := range results {
		results[i].Pass = pass
	}
	if len(logins) == 0 {
		log.Warn("No active portal credentials")
		return results, nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	tenantResults := make([]models.TenantResult, len(logins))
	jobs := make([]worker.Job, len(logins))
	for i, login := range logins {
		res := &tenantResults[i]
		res.TenantID = login.TenantID
		res.Pass = pass
		jobs[i] = worker.NewJob(login.TenantID, func(ctx context.Context) error {
			err := s.tenantSession(ctx, login, res, fn)
			if isStorageError(err) {
				cancel(err)
			}
			return err
		})
	}

	for i, r := range s.pool.Run(runCtx, jobs) {
		if r.Err != nil && tenantResults[i].Error == "" {
			tenantResults[i].Error = r.Err.Error()
		}
		if s.Metrics != nil {
			s.Metrics.ObserveTenant(tenantResults[i])
		}
	}
	results = append(results, tenantResults...)
	slices.SortStableFunc(results, func(a, b models.TenantResult) int { return cmp.Compare(a.TenantID, b.TenantID) })

	if err := ctx.Err(); err != nil {
		return results, err
	}
	if cause := context.Cause(runCtx); isStorageError(cause) {
		return results, cause
	}
	return results, nil
}

func (s *HarvestService) tenantSession(ctx context.Context, login models.PortalLogin, res *models.TenantResult, fn tenantFunc) error {
	page, release, err := s.Browser.OpenSession(ctx, login.TenantID)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer release()

	if err := s.Gateway.Login(ctx, page, login); err != nil {
		var authErr *portal.AuthenticationError
		if errors.As(err, &authErr) && s.Metrics != nil {
			s.Metrics.AuthFailed()
		}
		return err
	}

	return fn(ctx, page, login, res)
}

// logins decrypts the active credentials and adds the environment account.
// Credentials that fail to decrypt become failed tenant results.
func (s *HarvestService) logins(ctx context.Context, tenant *int64) ([]models.PortalLogin, []models.TenantResult, error) {
	creds, err := s.Credentials.ListActive(ctx, s.Config.Portal.ID)
	if err != nil {
		return nil, nil, err
	}

	var (
		logins []models.PortalLogin
		failed []models.TenantResult
		seen   = make(map[int64]bool)
	)
	for _, c := range creds {
		if tenant != nil && c.TenantID != *tenant {
			continue
		}
		secret, err := s.Vault.Decrypt(c.EncryptedSecret)
		if err != nil {
			s.log.WithError(err).WithField("tenant_id", c.TenantID).Error("Failed to decrypt portal credential")
			failed = append(failed, models.TenantResult{
				TenantID: c.TenantID,
				Error:    fmt.Sprintf("decrypt credential: %v", err),
			})
			continue
		}
		seen[c.TenantID] = true
		logins = append(logins, models.PortalLogin{TenantID: c.TenantID, Login: c.Login, Password: secret})
	}

	p := s.Config.Portal
	if p.HasEnvAccount() && (tenant == nil || *tenant == p.TenantID) {
		if seen[p.TenantID] {
			s.log.WithField("tenant_id", p.TenantID).Debug("Environment account shadowed by stored credential")
		} else {
			logins = append(logins, models.PortalLogin{TenantID: p.TenantID, Login: p.Login, Password: p.Password})
		}
	}

	return logins, failed, nil
}

func (s *HarvestService) discoverTenant(ctx context.Context, page portal.Page, login models.PortalLogin, res *models.TenantResult) error {
	cfg := s.Config
	log := s.log.WithField("tenant_id", login.TenantID)

	navCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Page)
	err := page.Navigate(navCtx, cfg.Portal.EventsURL())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("open event listing: %w", err)
	}
	if err := page.WaitNetworkIdle(ctx, cfg.Timeouts.NetworkIdle); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("Listing did not go idle, reading anyway")
	}

	cursor := scraper.NewCursor(page, scraper.CursorOptions{
		Next:         portal.Query(s.Selectors.NextPage),
		Ready:        portal.Query(s.Selectors.ListingAnchor),
		MaxAdvances:  cfg.Portal.MaxNextClicks,
		Timeout:      cfg.Timeouts.NextPage,
		ClickTimeout: cfg.Timeouts.Click,
	}, log)

	var harvested []models.EventSummary
	trav, err := scraper.Traverse(ctx, cursor, func(ctx context.Context, n int) error {
		events, err := s.listing.ExtractPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).WithField("page", n).Warn("Failed to read listing page")
			return nil
		}
		harvested = append(harvested, events...)
		return nil
	})
	res.Pages = trav.Pages
	res.LimitReached = trav.LimitReached
	if err != nil {
		return err
	}

	res.Discovered = len(harvested)
	unique := scraper.DedupeEvents(harvested)

	tenantID := login.TenantID
	events := make([]models.Event, len(unique))
	ids := make([]int64, len(unique))
	for i, summary := range unique {
		events[i] = summary.Event(&tenantID, cfg.Portal.ID)
		ids[i] = summary.EventID
	}

	if res.EventsInserted, err = s.Events.InsertIgnore(ctx, events); err != nil {
		return err
	}

	existing, err := s.Links.ListEventIDs(ctx, tenantID, cfg.Portal.ID)
	if err != nil {
		return err
	}
	if res.LinksInserted, err = s.Links.InsertIgnore(ctx, tenantID, cfg.Portal.ID, NewIdentifiers(existing, ids)); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"pages":           res.Pages,
		"limit_reached":   res.LimitReached,
		"discovered":      res.Discovered,
		"unique":          len(unique),
		"events_inserted": res.EventsInserted,
		"links_inserted":  res.LinksInserted,
	}).Info("Listing harvested")
	return nil
}

func (s *HarvestService) itemsTenant(ctx context.Context, page portal.Page, login models.PortalLogin, res *models.TenantResult, claimed *eventSet) error {
	cfg := s.Config
	log := s.log.WithField("tenant_id", login.TenantID)

	since := s.now().AddDate(0, 0, -cfg.Portal.ItemsLookback)
	pending, err := s.Events.ListPendingForTenant(ctx, login.TenantID, cfg.Portal.ID, since)
	if err != nil {
		return err
	}
	log.WithField("pending", len(pending)).Info("Extracting line items")

	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !claimed.claim(ev.EventID) {
			continue
		}

		detail, err := s.detail.ExtractEvent(ctx, page, ev)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.EventsFailed++
			log.WithError(err).WithField("event_id", ev.EventID).Warn("Failed to extract event")
			continue
		}

		res.EventsProcessed++
		res.ItemsExtracted += len(detail.Items)
		res.RowsSkipped += len(detail.Skipped)
		for _, skip := range detail.Skipped {
			if s.Metrics != nil {
				s.Metrics.RowSkipped(skip.Reason)
			}
		}

		for _, item := range detail.Items {
			inserted, err := s.Items.InsertIgnore(ctx, item)
			if err != nil {
				return err
			}
			if inserted {
				res.ItemsInserted++
			}
		}
	}
	return nil
}

// eventSet holds the events claimed by some tenant during one items pass
type eventSet struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func (e *eventSet) claim(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ids[id]; ok {
		return false
	}
	e.ids[id] = struct{}{}
	return true
}

func isStorageError(err error) bool {
	var serr *storage.Error
	return errors.As(err, &serr)
}
