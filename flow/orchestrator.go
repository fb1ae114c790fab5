package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
	"github.com/goliatone/go-automation/cron"
	"github.com/goliatone/go-automation/dispatcher"
	"github.com/goliatone/go-automation/interceptor"
	"github.com/goliatone/go-automation/registry"
	"github.com/goliatone/go-automation/template"
)

// Orchestrator owns the registered automations, dispatches events to them
// and manages paused runs.
//
// The automation set and the paused state store are the only shared mutable
// resources. Locks guard the maps only; no lock is held while unit logic
// runs.
type Orchestrator struct {
	mu          sync.RWMutex
	automations map[string]*Automation
	order       []string
	// owners maps paused execution ids to the automation that paused, so a
	// resume runs against the same compiled automation.
	owners   map[string]*Automation
	resuming map[string]struct{}

	registry  *registry.Registry
	store     StateStore
	logger    automation.Logger
	metrics   automation.MetricsRecorder
	tracer    oteltrace.Tracer
	scheduler *cron.Scheduler
	// deferResume schedules a delayed resume; nil uses the scheduler.
	deferResume func(after time.Duration, job func(context.Context) error) error
	bus       *dispatcher.Dispatcher
	renderer  template.Renderer
	decode    automation.EventDecoder
	now       func() time.Time

	interceptors        []chain.Set
	skipDefaults        bool
	chains              chain.Chains
	defaultPauseTimeout time.Duration

	sweepMu sync.Mutex
	sweeper cron.Handle
}

// NewOrchestrator builds an orchestrator resolving resume triggers from reg.
func NewOrchestrator(reg *registry.Registry, opts ...Option) *Orchestrator {
	if reg == nil {
		reg = registry.New()
	}
	o := &Orchestrator{
		automations: make(map[string]*Automation),
		owners:      make(map[string]*Automation),
		resuming:    make(map[string]struct{}),
		registry:    reg,
		store:       NewInMemoryStateStore(),
		logger:      automation.NewFmtLogger(nil),
		metrics:     automation.NopMetrics{},
		renderer:    template.NewGoRenderer(),
		decode:      automation.DecodeGenericEvent,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.bus == nil {
		o.bus = dispatcher.NewDispatcher()
	}
	if o.scheduler == nil {
		o.scheduler = cron.NewScheduler(
			cron.WithLogger(o.logger),
			cron.WithErrorHandler(func(err error) {
				o.logger.Error("scheduled job failed: %v", err)
			}),
		)
	}

	set := chain.Set{}
	if !o.skipDefaults {
		set = interceptor.Defaults(o.logger, o.renderer)
	}
	if _, nop := o.metrics.(automation.NopMetrics); !nop {
		set = set.Merge(interceptor.MetricsSet(o.metrics))
	}
	if o.tracer != nil {
		set = set.Merge(interceptor.TracingSet(o.tracer))
	}
	for _, s := range o.interceptors {
		set = set.Merge(s)
	}
	o.chains = set.Build()
	return o
}

// Registry returns the unit registry.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Bus returns the dispatcher published events are forwarded to.
func (o *Orchestrator) Bus() *dispatcher.Dispatcher { return o.bus }

// Builder returns a builder bound to the orchestrator registry.
func (o *Orchestrator) Builder() *Builder { return NewBuilder(o.registry) }

// Register adds automations. An automation replaces a registered one with
// the same alias and keeps its position.
func (o *Orchestrator) Register(automations ...*Automation) error {
	for _, a := range automations {
		if a == nil || strings.TrimSpace(a.alias) == "" {
			return automation.NewInvalidAutomationError("", "automation with alias required")
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range automations {
		if _, ok := o.automations[a.alias]; !ok {
			o.order = append(o.order, a.alias)
		}
		o.automations[a.alias] = a
	}
	return nil
}

// Remove unregisters the automation with alias. Unknown aliases are ignored.
func (o *Orchestrator) Remove(alias string) {
	alias = strings.TrimSpace(alias)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.automations[alias]; !ok {
		return
	}
	delete(o.automations, alias)
	for i, name := range o.order {
		if name == alias {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
}

// RemoveAll unregisters every automation.
func (o *Orchestrator) RemoveAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.automations = make(map[string]*Automation)
	o.order = nil
}

// Automation returns the registered automation with alias.
func (o *Orchestrator) Automation(alias string) (*Automation, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.automations[strings.TrimSpace(alias)]
	return a, ok
}

// Automations returns the registered automations in registration order.
func (o *Orchestrator) Automations() []*Automation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Automation, 0, len(o.order))
	for _, alias := range o.order {
		out = append(out, o.automations[alias])
	}
	return out
}

// LoadDocument builds and registers every automation in doc and applies the
// document options.
func (o *Orchestrator) LoadDocument(ctx context.Context, doc Document) ([]*Automation, error) {
	automations, err := o.Builder().BuildDocument(doc)
	if err != nil {
		return nil, err
	}
	if doc.Options.DefaultPauseTimeout > 0 {
		o.mu.Lock()
		o.defaultPauseTimeout = doc.Options.DefaultPauseTimeout
		o.mu.Unlock()
	}
	if err := o.Register(automations...); err != nil {
		return nil, err
	}
	if expr := strings.TrimSpace(doc.Options.SweepSchedule); expr != "" {
		if _, err := o.StartSweeper(ctx, expr); err != nil {
			return nil, err
		}
	}
	return automations, nil
}

// Publish wraps evt in a new EventContext and dispatches it.
func (o *Orchestrator) Publish(ctx context.Context, evt automation.Event) {
	o.HandleEvent(ctx, automation.NewEventContext(evt))
}

// HandleEvent dispatches ec: listeners on the bus are notified, paused runs
// waiting on a matching resume trigger are resumed, and every registered
// automation is evaluated against its own fork of ec. Failures are isolated
// per automation and reported through the logger. The result of every run
// whose triggers matched is returned, carrying the forked execution id.
func (o *Orchestrator) HandleEvent(ctx context.Context, ec *automation.EventContext) []AutomationResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if ec == nil {
		return nil
	}
	log := automation.WithLoggerFields(o.logger.WithContext(ctx), map[string]any{
		"event_type": ec.EventType(),
	})

	if err := o.bus.Dispatch(ctx, ec); err != nil {
		log.Warn("event listeners failed: %v", err)
	}

	o.resumeMatching(ctx, ec)

	var runs []AutomationResult
	for _, a := range o.Automations() {
		if len(a.triggers) == 0 {
			continue
		}
		run := ec.Fork()
		res, err := o.run(ctx, a, run, func() (AutomationResult, error) {
			return o.evaluate(ctx, a, run, true)
		})
		runLog := automation.WithLoggerFields(log, runFields(a, run))
		switch {
		case err != nil:
			runLog.Error("automation failed: %v", err)
		case res.Status == StatusSkipped:
			runLog.Trace("automation skipped: %s", res.Reason)
			if res.Reason == reasonNoTrigger {
				continue
			}
		default:
			runLog.Info("automation %s %s", res.Status, res.Reason)
		}
		runs = append(runs, res)
	}
	return runs
}

// ExecuteAutomation runs a directly, bypassing trigger matching but honoring
// conditions. Unit failures are returned to the caller.
func (o *Orchestrator) ExecuteAutomation(ctx context.Context, a *Automation, ec *automation.EventContext) (AutomationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a == nil {
		return AutomationResult{}, automation.NewInvalidAutomationError("", "automation is required")
	}
	if ec == nil {
		ec = automation.NewEventContext(nil)
	}
	return o.run(ctx, a, ec, func() (AutomationResult, error) {
		return o.evaluate(ctx, a, ec, false)
	})
}

// Resume continues a paused run at its stored cursor. Unknown, expired or
// concurrently resumed ids yield StatusNotResumable without error. The
// paused state is removed before the remaining actions run.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) (AutomationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := strings.TrimSpace(executionID)
	res := AutomationResult{ExecutionID: id, Status: StatusNotResumable}

	if !o.claim(id) {
		res.Reason = "resume already in progress"
		return res, nil
	}
	defer o.release(id)

	paused, err := o.store.FindByID(ctx, id)
	if err != nil {
		return res, err
	}
	if paused == nil {
		res.Reason = "unknown execution"
		return res, nil
	}
	res.Automation = paused.Automation

	if paused.Expired(o.now()) {
		res.Reason = "paused execution expired"
		return res, o.discard(ctx, id)
	}

	a := o.owner(*paused)
	if a == nil {
		res.Reason = "automation not registered"
		return res, nil
	}
	if paused.Cursor < 0 || paused.Cursor > len(a.actions) {
		res.Reason = "cursor out of range"
		return res, o.discard(ctx, id)
	}

	ec, err := paused.Context.Restore(o.decode)
	if err != nil {
		return res, automation.WrapStateStoreError("restore", id, err)
	}
	if err := o.discard(ctx, id); err != nil {
		return res, err
	}

	o.logger.Debug("resuming %s at action %d", id, paused.Cursor)
	return o.run(ctx, a, ec, func() (AutomationResult, error) {
		return o.runActions(ctx, a, ec, paused.Cursor)
	})
}

// Cancel drops a paused run. Unknown ids are ignored.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return o.discard(ctx, strings.TrimSpace(executionID))
}

// Paused lists outstanding paused runs.
func (o *Orchestrator) Paused(ctx context.Context) ([]PausedExecution, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return o.store.FindAll(ctx)
}

// EvictExpired removes paused runs whose deadline passed and returns how
// many were removed.
func (o *Orchestrator) EvictExpired(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	known := o.ownerIDs()
	paused, err := o.store.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()
	evicted := 0
	live := make(map[string]struct{}, len(paused))
	for _, p := range paused {
		if !p.Expired(now) {
			live[p.ExecutionID] = struct{}{}
			continue
		}
		if err := o.discard(ctx, p.ExecutionID); err != nil {
			return evicted, err
		}
		evicted++
	}
	o.pruneOwners(known, live)
	return evicted, nil
}

func (o *Orchestrator) ownerIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.owners))
	for id := range o.owners {
		ids = append(ids, id)
	}
	return ids
}

// pruneOwners drops owner entries, known before the store was listed, whose
// state left the store another way, such as a store-side expiry. Owners are
// recorded after Save, so every known id was already persisted.
func (o *Orchestrator) pruneOwners(known []string, live map[string]struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range known {
		if _, ok := live[id]; ok {
			continue
		}
		if _, busy := o.resuming[id]; busy {
			continue
		}
		delete(o.owners, id)
	}
}

// StartSweeper schedules EvictExpired with a cron expression and starts the
// scheduler. Starting again replaces the previous sweep.
func (o *Orchestrator) StartSweeper(ctx context.Context, expression string) (cron.Handle, error) {
	handle, err := o.scheduler.ScheduleCron(cron.JobConfig{Expression: expression}, func(ctx context.Context) error {
		n, err := o.EvictExpired(ctx)
		if n > 0 {
			o.logger.Info("evicted %d expired paused executions", n)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	o.sweepMu.Lock()
	if o.sweeper != nil {
		o.sweeper.Cancel()
	}
	o.sweeper = handle
	o.sweepMu.Unlock()

	return handle, o.scheduler.Start(ctx)
}

// Close stops the sweep and the scheduler.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.sweepMu.Lock()
	if o.sweeper != nil {
		o.sweeper.Cancel()
		o.sweeper = nil
	}
	o.sweepMu.Unlock()
	return o.scheduler.Stop(ctx)
}

func (o *Orchestrator) run(ctx context.Context, a *Automation, ec *automation.EventContext, fn func() (AutomationResult, error)) (AutomationResult, error) {
	start := o.now()
	res, err := contain(a, fn)
	res.Duration = o.now().Sub(start)
	res.Automation, res.ExecutionID = a.alias, ec.ExecutionID()

	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		automation.WithLoggerFields(o.logger.WithContext(ctx), runFields(a, ec)).Debug("run failed: %v", err)
	}
	o.metrics.RecordRun(a.alias, string(res.Status), res.Duration)
	return res, err
}

// contain turns a panic that escaped the unit boundaries, such as one raised
// by an interceptor, into an error for this run alone.
func contain(a *Automation, fn func() (AutomationResult, error)) (res AutomationResult, err error) {
	defer func() {
		if pe := automation.RecoverPanic(recover()); pe != nil {
			res, err = AutomationResult{}, automation.NewAutomationPanicError(a.alias, pe)
		}
	}()
	return fn()
}

// pause persists the run so it can resume at cursor.
func (o *Orchestrator) pause(ctx context.Context, a *Automation, ec *automation.EventContext, cursor int, req *automation.PauseRequest) (AutomationResult, error) {
	id := ec.ExecutionID()
	res := AutomationResult{Automation: a.alias, ExecutionID: id}

	var pr automation.PauseRequest
	if req != nil {
		pr = *req
	}
	now := o.now()
	paused := PausedExecution{
		ExecutionID: id,
		Automation:  a.alias,
		Cursor:      cursor,
		Context:     ec.Snapshot(),
		PausedAt:    now,
	}

	timeout := pr.Timeout
	if timeout <= 0 && pr.ResumeAfter <= 0 {
		o.mu.RLock()
		timeout = o.defaultPauseTimeout
		o.mu.RUnlock()
	}
	if timeout > 0 {
		paused.Deadline = now.Add(timeout)
	}
	if pr.ResumeTrigger != nil {
		if _, err := o.registry.Trigger(strings.TrimSpace(pr.ResumeTrigger.Unit)); err != nil {
			return res, err
		}
		step := pr.ResumeTrigger.Clone()
		paused.ResumeTrigger = &step
	}

	if err := o.store.Save(ctx, paused); err != nil {
		return res, err
	}
	o.mu.Lock()
	o.owners[id] = a
	o.mu.Unlock()
	o.reportPaused(ctx)

	if pr.ResumeAfter > 0 {
		if err := o.scheduleResume(id, pr.ResumeAfter); err != nil {
			if derr := o.discard(ctx, id); derr != nil {
				o.logger.Warn("discard %s after failed scheduling: %v", id, derr)
			}
			return res, err
		}
	}

	res.Status = StatusPaused
	res.Cursor = cursor
	res.Deadline = paused.Deadline
	return res, nil
}

func (o *Orchestrator) scheduleResume(id string, after time.Duration) error {
	job := func(ctx context.Context) error {
		res, err := o.Resume(ctx, id)
		if err != nil {
			return err
		}
		o.logger.Debug("delayed resume of %s: %s", id, res.Status)
		return nil
	}
	if o.deferResume != nil {
		return o.deferResume(after, job)
	}
	_, err := o.scheduler.ScheduleAfter(after, cron.JobConfig{}, job)
	return err
}

// resumeMatching resumes paused runs whose resume trigger matches ec.
func (o *Orchestrator) resumeMatching(ctx context.Context, ec *automation.EventContext) {
	paused, err := o.store.FindAll(ctx)
	if err != nil {
		o.logger.Error("list paused executions: %v", err)
		return
	}
	now := o.now()
	for _, p := range paused {
		if p.ResumeTrigger == nil || p.Expired(now) {
			continue
		}
		trigger, err := o.registry.Trigger(strings.TrimSpace(p.ResumeTrigger.Unit))
		if err != nil {
			o.logger.Warn("resume trigger for %s: %v", p.ExecutionID, err)
			continue
		}
		ok, err := o.invokeTrigger(ctx, binding[automation.Trigger]{unit: trigger, step: *p.ResumeTrigger}, ec)
		if err != nil {
			o.logger.Warn("resume trigger for %s failed: %v", p.ExecutionID, err)
			continue
		}
		if !ok {
			continue
		}
		res, err := o.Resume(ctx, p.ExecutionID)
		if err != nil {
			o.logger.Error("resume %s failed: %v", p.ExecutionID, err)
			continue
		}
		o.logger.Info("resumed %s (%s): %s", p.ExecutionID, p.Automation, res.Status)
	}
}

// owner returns the automation that paused, falling back to the registered
// automation with the same alias, as after a restart.
func (o *Orchestrator) owner(p PausedExecution) *Automation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if a, ok := o.owners[p.ExecutionID]; ok {
		return a
	}
	return o.automations[p.Automation]
}

func (o *Orchestrator) discard(ctx context.Context, id string) error {
	if err := o.store.Remove(ctx, id); err != nil {
		return err
	}
	o.forget(id)
	o.reportPaused(ctx)
	return nil
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.owners, id)
}

func (o *Orchestrator) claim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.resuming[id]; busy {
		return false
	}
	o.resuming[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.resuming, id)
}

func (o *Orchestrator) reportPaused(ctx context.Context) {
	if _, nop := o.metrics.(automation.NopMetrics); nop {
		return
	}
	paused, err := o.store.FindAll(ctx)
	if err != nil {
		return
	}
	o.metrics.RecordPaused(len(paused))
}

func runFields(a *Automation, ec *automation.EventContext) map[string]any {
	return map[string]any{
		"automation":   a.Alias(),
		"execution_id": ec.ExecutionID(),
		"event_type":   ec.EventType(),
	}
}
