package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

// trackStage runs one stage body, persisting a stage record best-effort
// and appending the outcome to the run's stage list.
func (p *Pipeline) trackStage(ctx context.Context, run *model.Run, name model.Stage, stages *[]model.StageResult, fn func() (map[string]any, error)) error {
	var record *model.RunStage
	if run != nil {
		var err error
		record, err = p.store.CreateStage(ctx, run.ID, name)
		if err != nil {
			zap.L().Warn("pipeline: create stage record", zap.String("stage", string(name)), zap.Error(err))
		}
	}

	start := time.Now()
	meta, err := fn()
	elapsed := time.Since(start).Milliseconds()

	sr := model.StageResult{
		Name:     name,
		Status:   model.StageStatusComplete,
		Duration: elapsed,
		Metadata: meta,
	}
	if err != nil {
		sr.Status = model.StageStatusFailed
		sr.Error = resilience.Sanitize(err.Error())
		zap.L().Error("pipeline: stage failed",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", elapsed),
			zap.Error(err),
		)
	} else {
		zap.L().Info("pipeline: stage complete",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", elapsed),
		)
	}

	if record != nil {
		if completeErr := p.store.CompleteStage(ctx, record.ID, &sr); completeErr != nil {
			zap.L().Warn("pipeline: complete stage record", zap.Error(completeErr))
		}
	}
	*stages = append(*stages, sr)
	return err
}

// runCrawl serves from the crawl cache when fresh, otherwise fetches with
// retry and refreshes the cache. A crawl job row tracks each real fetch.
func (p *Pipeline) runCrawl(ctx context.Context, run *model.Run, biz *model.Business, rawURL string, stages *[]model.StageResult) (*model.CrawlData, error) {
	var crawl *model.CrawlData

	err := p.trackStage(ctx, run, model.StageCrawl, stages, func() (map[string]any, error) {
		if p.opts.CrawlCacheTTL > 0 {
			cached, cacheErr := p.store.GetCachedCrawl(ctx, rawURL)
			if cacheErr != nil {
				zap.L().Warn("pipeline: read crawl cache", zap.Error(cacheErr))
			}
			if cached != nil {
				crawl = &cached.Data
				return map[string]any{"from_cache": true}, nil
			}
		}

		job, jobErr := p.store.CreateCrawlJob(ctx, biz.ID, rawURL)
		if jobErr != nil {
			zap.L().Warn("pipeline: create crawl job", zap.Error(jobErr))
		}

		data, crawlErr := resilience.DoVal(ctx, p.opts.CrawlRetry, resilience.ErrorContext{
			Operation:  "pipeline.crawl",
			BusinessID: biz.ID,
		}, func(ctx context.Context) (*model.CrawlData, error) {
			return p.crawler.Crawl(ctx, rawURL)
		})

		if job != nil {
			status := model.CrawlJobStatusComplete
			errMsg := ""
			if crawlErr != nil {
				status = model.CrawlJobStatusFailed
				errMsg = resilience.Sanitize(crawlErr.Error())
			}
			if updateErr := p.store.UpdateCrawlJob(ctx, job.ID, status, errMsg); updateErr != nil {
				zap.L().Warn("pipeline: update crawl job", zap.Error(updateErr))
			}
		}
		if crawlErr != nil {
			return nil, crawlErr
		}

		crawl = data
		if p.opts.CrawlCacheTTL > 0 {
			if cacheErr := p.store.SetCachedCrawl(ctx, rawURL, data, p.opts.CrawlCacheTTL); cacheErr != nil {
				zap.L().Warn("pipeline: write crawl cache", zap.Error(cacheErr))
			}
		}
		return map[string]any{
			"source":   data.Source,
			"services": len(data.Services),
		}, nil
	})
	return crawl, err
}

// runFingerprint fans the query matrix out and persists the analysis.
func (p *Pipeline) runFingerprint(ctx context.Context, run *model.Run, biz *model.Business, crawl *model.CrawlData, stages *[]model.StageResult) (*model.FingerprintAnalysis, error) {
	var analysis *model.FingerprintAnalysis

	err := p.trackStage(ctx, run, model.StageFingerprint, stages, func() (map[string]any, error) {
		fp, fpErr := p.fingerprinter.Fingerprint(ctx, model.BusinessContext{
			Name:     biz.Name,
			URL:      biz.URL,
			Category: biz.Category,
			Location: biz.Location,
			Crawl:    crawl,
		})
		if fpErr != nil {
			return nil, fpErr
		}

		fp.BusinessID = biz.ID
		stored, storeErr := p.store.CreateFingerprint(ctx, fp)
		if storeErr != nil {
			zap.L().Warn("pipeline: persist fingerprint", zap.Error(storeErr))
			stored = fp
		}
		analysis = stored
		return map[string]any{
			"visibility_score":   stored.VisibilityScore,
			"successful_queries": stored.SuccessfulQueries,
			"total_queries":      stored.TotalQueries,
		}, nil
	})
	return analysis, err
}

// runEntityBuild builds the knowledge-base entity from business context
// and crawl data.
func (p *Pipeline) runEntityBuild(ctx context.Context, run *model.Run, biz *model.Business, crawl *model.CrawlData, result *model.CFPResult) {
	_ = p.trackStage(ctx, run, model.StageEntity, &result.Stages, func() (map[string]any, error) {
		entity := p.publisher.BuildEntity(biz, crawl)
		if entity == nil {
			return nil, eris.New("pipeline: entity build produced nothing")
		}
		result.Entity = entity
		result.Partial.EntityCreationSuccess = true
		return map[string]any{"references": len(entity.References)}, nil
	})
}

// runPublish gates on notability, then writes to the knowledge base. A
// publish failure never rolls back earlier stages.
func (p *Pipeline) runPublish(ctx context.Context, run *model.Run, biz *model.Business, result *model.CFPResult) {
	_ = p.trackStage(ctx, run, model.StagePublish, &result.Stages, func() (map[string]any, error) {
		notability, err := p.publisher.CheckNotability(ctx, biz.Name, biz.Location)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: notability check")
		}
		result.Notability = notability
		if !notability.IsNotable {
			zap.L().Info("pipeline: entity not notable, skipping publish",
				zap.String("business", biz.Name),
				zap.Float64("confidence", notability.Confidence),
			)
			return map[string]any{"skipped": "not notable"}, nil
		}

		pr := p.publisher.PublishEntity(ctx, result.Entity, p.opts.Production)
		result.PublishResult = pr
		result.Partial.PublishSuccess = pr.Success
		if !pr.Success {
			return nil, eris.New("pipeline: publish: " + pr.Error)
		}
		return map[string]any{"qid": pr.QID, "production": pr.Production}, nil
	})
}
