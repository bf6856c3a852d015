package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 触发来源
const (
	TriggerAPI  = "api"
	TriggerCron = "cron"
	TriggerCLI  = "cli"
)

// RunReport 单次运行结果
type RunReport struct {
	RunID      string         `json:"run_id"`
	Trigger    string         `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stats      model.RunStats `json:"stats"`
	Aborted    bool           `json:"aborted"`
	Reason     string         `json:"reason,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// Err 合并所有阶段错误
func (r *RunReport) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = errors.New(e)
	}
	return errors.Join(errs...)
}

// PipelineOptions 流水线参数
type PipelineOptions struct {
	DescriptionLimit int
	Location         *time.Location
	Clock            Clock
}

// Pipeline 编排全部阶段；同一时刻只允许一次运行（唯一写入者）
type Pipeline struct {
	mu sync.Mutex

	archiver   *Archiver
	orphans    *OrphanReconciler
	intra      *IntraTableDeduper
	cross      *CrossTableDeduper
	window     *FutureWindowFilter
	newFilter  *NewEntityFilter
	reclassify *SubReclassifier
	linker     *Linker

	repo    repository.EventRepository
	runs    interfaces.RunRecorder
	metrics *Metrics
	opts    PipelineOptions
	logger  *logrus.Logger
}

func NewPipeline(repo repository.EventRepository, runs interfaces.RunRecorder, oracle interfaces.Oracle, metrics *Metrics, opts PipelineOptions, logger *logrus.Logger) *Pipeline {
	if opts.DescriptionLimit <= 0 {
		opts.DescriptionLimit = 200
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		archiver:   NewArchiver(repo, logger),
		orphans:    NewOrphanReconciler(repo, logger),
		intra:      NewIntraTableDeduper(repo, oracle, opts.DescriptionLimit, metrics, logger),
		cross:      NewCrossTableDeduper(repo, oracle, opts.DescriptionLimit, metrics, logger),
		window:     NewFutureWindowFilter(logger),
		newFilter:  NewNewEntityFilter(repo, oracle, opts.DescriptionLimit, metrics, logger),
		reclassify: NewSubReclassifier(repo, oracle, opts.DescriptionLimit, metrics, logger),
		linker:     NewLinker(repo, logger),
		repo:       repo,
		runs:       runs,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
	}
}

// RunMaintenance 只做存量维护，不处理新批次
func (p *Pipeline) RunMaintenance(ctx context.Context, trigger string) (*RunReport, error) {
	return p.Run(ctx, trigger, nil)
}

// Run 先维护存量（表内去重 → 跨表去重 → 归档 → 孤儿清理），batch 非空时再入库新批次。
// 阶段失败只记录，不影响后续阶段；主候选判重失败时放弃整个入库部分。
func (p *Pipeline) Run(ctx context.Context, trigger string, batch []model.Candidate) (*RunReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	log := p.logger.WithFields(logrus.Fields{"run_id": report.RunID, "trigger": trigger})
	log.WithField("candidates", len(batch)).Info("流水线开始")

	p.maintain(ctx, report, log)
	if batch != nil {
		p.ingest(ctx, report, batch, log)
	}

	report.FinishedAt = time.Now()
	p.metrics.observeRun(trigger, report, report.FinishedAt.Sub(report.StartedAt))
	if err := p.record(ctx, report); err != nil {
		log.WithError(err).Error("保存运行记录失败")
	}

	fields := logrus.Fields{"stats": report.Stats, "duration": report.FinishedAt.Sub(report.StartedAt).String()}
	switch {
	case report.Aborted:
		log.WithFields(fields).WithField("reason", report.Reason).Warn("流水线完成（入库已放弃）")
	case len(report.Errors) > 0:
		log.WithFields(fields).WithField("errors", report.Errors).Warn("流水线完成（部分阶段失败）")
	default:
		log.WithFields(fields).Info("流水线完成")
	}
	return report, ctx.Err()
}

func (p *Pipeline) fail(report *RunReport, log *logrus.Entry, phase string, err error) {
	log.WithError(err).WithField("phase", phase).Error("阶段失败")
	report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", phase, err))
}

func (p *Pipeline) maintain(ctx context.Context, report *RunReport, log *logrus.Entry) {
	intra, err := p.intra.Run(ctx)
	if err != nil {
		p.fail(report, log, PhaseIntraDedup, err)
	}
	report.Stats.IntraMainDeleted = intra.MainsDeleted
	report.Stats.IntraSubDeleted = intra.SubsDeleted
	report.Stats.IntraCascaded = intra.Cascaded

	if report.Stats.CrossDeleted, report.Stats.CrossCascaded, err = p.cross.Run(ctx); err != nil {
		p.fail(report, log, PhaseCrossDedup, err)
	}
	if report.Stats.Archived, err = p.archiver.Run(ctx, p.today()); err != nil {
		p.fail(report, log, PhaseArchive, err)
	}
	if report.Stats.OrphansDeleted, err = p.orphans.Run(ctx); err != nil {
		p.fail(report, log, PhaseOrphans, err)
	}
}

func (p *Pipeline) ingest(ctx context.Context, report *RunReport, batch []model.Candidate, log *logrus.Entry) {
	report.Stats.CandidatesReceived = len(batch)
	window := p.window.Apply(batch, p.today())
	report.Stats.DroppedInvalid = window.DroppedInvalid
	report.Stats.DroppedPast = window.DroppedPast

	keys := NewKeyMap()
	mains, dup, err := p.newFilter.FilterMains(ctx, window.Mains, keys)
	if err != nil {
		report.Aborted = true
		report.Reason = err.Error()
		p.fail(report, log, PhaseNewMains, err)
		return
	}
	report.Stats.MainsDuplicate = dup

	subs, dup, err := p.newFilter.FilterSubs(ctx, window.Subs)
	if err != nil {
		p.fail(report, log, PhaseNewSubs, err)
		subs = window.Subs
	}
	report.Stats.SubsDuplicate = dup

	corrected, queued, err := p.reclassify.Run(ctx, subs, keys)
	if err != nil {
		p.fail(report, log, PhaseReclassify, err)
		corrected, queued = subs, nil
	}

	if len(queued) > 0 {
		var deleted, cascaded int64
		err := p.repo.Transaction(ctx, func(tx repository.EventRepository) error {
			var err error
			deleted, cascaded, err = tx.DeleteMainEvents(ctx, queued)
			return err
		})
		if err != nil {
			p.fail(report, log, PhaseCorrections, err)
			// 误分类主事件仍在库中：撤销 temp_key 改写，子候选按原 key 入库
			for i := range corrected {
				if corrected[i].TempKey != subs[i].TempKey {
					keys.ClearRedirected(corrected[i].TempKey)
				}
			}
			corrected = subs
		} else {
			for _, id := range queued {
				keys.UnbindID(id)
			}
			report.Stats.Corrections = int(deleted)
			report.Stats.CorrectionCascaded = cascaded
			log.WithFields(logrus.Fields{"phase": PhaseCorrections, "ids": queued, "cascaded": cascaded}).Info("已删除误分类主事件")
		}
	}

	linked, err := p.linker.Run(ctx, mains, corrected, keys)
	if err != nil {
		p.fail(report, log, PhaseLink, err)
		return
	}
	report.Stats.MainsInserted = linked.MainsInserted
	report.Stats.SubsInserted = linked.SubsInserted
}

func (p *Pipeline) today() time.Time {
	return Today(p.opts.Clock, p.opts.Location)
}

func (p *Pipeline) record(ctx context.Context, report *RunReport) error {
	if p.runs == nil {
		return nil
	}
	stats, err := json.Marshal(report.Stats)
	if err != nil {
		return err
	}
	run := &model.PipelineRun{
		RunUUID:    report.RunID,
		Trigger:    report.Trigger,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Stats:      stats,
		Aborted:    report.Aborted,
		Reason:     report.Reason,
	}
	if err := report.Err(); err != nil {
		run.Errors = err.Error()
	}
	// 运行被取消时仍保存记录
	return p.runs.SaveRun(context.WithoutCancel(ctx), run)
}
