package pipeline

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

// DefaultTimeout bounds total orchestration wall-clock time.
const DefaultTimeout = 2 * time.Minute

// Crawler fetches and distills a business website.
type Crawler interface {
	Crawl(ctx context.Context, rawURL string) (*model.CrawlData, error)
}

// Fingerprinter produces a visibility fingerprint for one business.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, biz model.BusinessContext) (*model.FingerprintAnalysis, error)
}

// Publisher builds and publishes knowledge-base entities.
type Publisher interface {
	BuildEntity(biz *model.Business, crawl *model.CrawlData) *model.Entity
	CheckNotability(ctx context.Context, name, location string) (*model.NotabilityResult, error)
	PublishEntity(ctx context.Context, entity *model.Entity, toProduction bool) *model.PublishResult
}

// Options controls optional stages and orchestration limits.
type Options struct {
	// Timeout caps total wall-clock time for one run. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	// Publish enables the EntityBuild and Publish stages.
	Publish bool
	// Production targets the production knowledge base instead of staging.
	Production bool
	// RequireFingerprint fails the run when the fingerprint stage fails,
	// instead of continuing degraded on crawl data alone.
	RequireFingerprint bool
	// CrawlCacheTTL is how long crawl results stay fresh. Zero disables
	// the crawl cache.
	CrawlCacheTTL time.Duration
	// CrawlRetry wraps the crawl stage. Zero value means the default
	// crawl retry policy.
	CrawlRetry resilience.RetryConfig
}

// Pipeline sequences Crawl, Fingerprint, EntityBuild and Publish for one
// business run. Execute always returns a CFPResult; failures are carried
// in the result, never raised past the orchestrator boundary.
type Pipeline struct {
	store         store.Store
	crawler       Crawler
	fingerprinter Fingerprinter
	publisher     Publisher
	opts          Options
	progress      ProgressSink
}

// New creates a Pipeline. publisher may be nil when Options.Publish is
// false.
func New(st store.Store, cr Crawler, fp Fingerprinter, pub Publisher, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CrawlRetry.MaxAttempts == 0 {
		opts.CrawlRetry = resilience.DefaultCrawlRetryConfig()
	}
	return &Pipeline{
		store:         st,
		crawler:       cr,
		fingerprinter: fp,
		publisher:     pub,
		opts:          opts,
		progress:      nopSink{},
	}
}

// WithProgress sets the sink notified at stage boundaries.
func (p *Pipeline) WithProgress(sink ProgressSink) *Pipeline {
	if sink != nil {
		p.progress = sink
	}
	return p
}

// Execute runs the pipeline for one business URL. trigger records what
// started the run (manual, scheduled, webhook).
func (p *Pipeline) Execute(ctx context.Context, rawURL, trigger string) *model.CFPResult {
	return p.execute(ctx, rawURL, trigger, nil)
}

// Submit registers a run and executes it in the background, returning the
// run ID immediately. The run outlives the caller's context.
func (p *Pipeline) Submit(ctx context.Context, rawURL, trigger string) (string, error) {
	biz := p.resolveBusiness(ctx, rawURL, zap.L().With(zap.String("url", rawURL)))
	run, err := p.store.CreateRun(ctx, rawURL, biz.ID, trigger)
	if err != nil {
		return "", err
	}
	go p.execute(context.WithoutCancel(ctx), rawURL, trigger, run)
	return run.ID, nil
}

func (p *Pipeline) execute(ctx context.Context, rawURL, trigger string, run *model.Run) *model.CFPResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	log := zap.L().With(zap.String("url", rawURL), zap.String("trigger", trigger))
	log.Info("pipeline: starting run")

	result := &model.CFPResult{URL: rawURL}
	defer func() {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	biz := p.resolveBusiness(ctx, rawURL, log)
	result.Business = biz

	if run == nil {
		created, err := p.store.CreateRun(ctx, rawURL, biz.ID, trigger)
		if err != nil {
			// The ledger is best-effort; the run itself proceeds.
			log.Warn("pipeline: create run", zap.Error(err))
		} else {
			run = created
		}
	}
	if run != nil {
		result.RunID = run.ID
	}

	setStatus := func(status model.RunStatus) {
		if run == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: update run status", zap.Error(statusErr))
		}
	}
	saveResult := func() {
		if run == nil {
			return
		}
		// Run record writes survive the orchestration deadline.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer saveCancel()
		if saveErr := p.store.UpdateRunResult(saveCtx, run.ID, result); saveErr != nil {
			log.Warn("pipeline: save run result", zap.Error(saveErr))
		}
	}

	// Stage 1: Crawl. A crawl failure halts the run; everything
	// downstream needs business context.
	setStatus(model.RunStatusCrawling)
	p.progress.OnStageTransition(model.StageCrawl, 10, "crawling website")

	crawl, crawlErr := p.runCrawl(ctx, run, biz, rawURL, &result.Stages)
	if decision := resilience.HandleParallelProcessingError(crawlErr, nil, resilience.ErrorContext{
		Operation:  "pipeline.crawl",
		BusinessID: biz.ID,
	}); !decision.ShouldContinue {
		result.Error = resilience.Sanitize(crawlErr.Error())
		p.markBusinessFailed(ctx, biz, log)
		saveResult()
		log.Error("pipeline: crawl failed, halting", zap.Error(crawlErr))
		return result
	}
	result.Partial.CrawlSuccess = true
	p.recordCrawl(ctx, biz, crawl, log)

	// Stage 2: Fingerprint.
	setStatus(model.RunStatusFingerprinting)
	p.progress.OnStageTransition(model.StageFingerprint, 40, "querying models")

	fp, fpErr := p.runFingerprint(ctx, run, biz, crawl, &result.Stages)
	if fpErr != nil {
		decision := resilience.HandleParallelProcessingError(nil, fpErr, resilience.ErrorContext{
			Operation:  "pipeline.fingerprint",
			BusinessID: biz.ID,
		})
		result.Degraded = decision.Degraded
		result.Error = resilience.Sanitize(fpErr.Error())
		log.Warn("pipeline: fingerprint failed, continuing degraded", zap.Error(fpErr))
		if p.opts.RequireFingerprint {
			saveResult()
			return result
		}
	} else {
		result.Partial.FingerprintSuccess = true
		result.Fingerprint = fp
	}

	// Stages 3-4: EntityBuild and Publish, only when enabled.
	if p.opts.Publish && p.publisher != nil {
		setStatus(model.RunStatusPublishing)
		p.progress.OnStageTransition(model.StageEntity, 70, "building entity")
		p.runEntityBuild(ctx, run, biz, crawl, result)

		if result.Partial.EntityCreationSuccess {
			p.progress.OnStageTransition(model.StagePublish, 85, "publishing entity")
			p.runPublish(ctx, run, biz, result)
		}
	}

	result.Success = true
	p.progress.OnStageTransition(model.StagePublish, 100, "run complete")
	saveResult()

	log.Info("pipeline: run complete",
		zap.String("run_id", result.RunID),
		zap.Bool("degraded", result.Degraded),
		zap.Bool("published", result.Partial.PublishSuccess),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return result
}

// resolveBusiness finds or registers the business for a URL. Registration
// failures fall back to an unpersisted record so the run can proceed.
func (p *Pipeline) resolveBusiness(ctx context.Context, rawURL string, log *zap.Logger) *model.Business {
	existing, err := p.store.GetBusinessByURL(ctx, rawURL)
	if err != nil {
		log.Warn("pipeline: look up business", zap.Error(err))
	}
	if existing != nil {
		return existing
	}

	created, err := p.store.CreateBusiness(ctx, model.Business{
		Name: nameFromURL(rawURL),
		URL:  rawURL,
	})
	if err != nil {
		log.Warn("pipeline: register business", zap.Error(err))
		return &model.Business{Name: nameFromURL(rawURL), URL: rawURL, Tier: model.TierFree}
	}
	return created
}

// recordCrawl persists crawl-derived business updates, best effort.
func (p *Pipeline) recordCrawl(ctx context.Context, biz *model.Business, crawl *model.CrawlData, log *zap.Logger) {
	if biz.ID == "" {
		return
	}
	now := time.Now().UTC()
	status := model.BusinessStatusActive
	patch := store.BusinessPatch{Status: &status, LastCrawledAt: &now}
	if crawl != nil && crawl.Title != "" && biz.Name == nameFromURL(biz.URL) {
		patch.Name = &crawl.Title
		biz.Name = crawl.Title
	}
	if err := p.store.UpdateBusiness(ctx, biz.ID, patch); err != nil {
		log.Warn("pipeline: record crawl on business", zap.Error(err))
	}
	biz.Status = status
	biz.LastCrawledAt = &now
}

func (p *Pipeline) markBusinessFailed(ctx context.Context, biz *model.Business, log *zap.Logger) {
	if biz.ID == "" {
		return
	}
	status := model.BusinessStatusFailed
	if err := p.store.UpdateBusiness(ctx, biz.ID, store.BusinessPatch{Status: &status}); err != nil {
		log.Warn("pipeline: mark business failed", zap.Error(err))
	}
	biz.Status = status
}

// nameFromURL derives a provisional business name from the URL host,
// used until the crawl yields a real title.
func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.Index(host, "."); i > 0 {
		host = host[:i]
	}
	host = strings.NewReplacer("-", " ", "_", " ").Replace(host)
	return cases.Title(language.English).String(host)
}
