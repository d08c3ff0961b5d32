package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/clock"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/ratelimit"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/retry"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// ApplyOptions controls a single Apply call.
type ApplyOptions struct {
	// DryRun plans every operation without calling the platform.
	DryRun bool

	// ContinueOnError runs the remaining operations after a failure.
	ContinueOnError bool

	// OnProgress is called synchronously after each operation.
	OnProgress func(ApplyResult)
}

// StateWriter applies a ServerDiff one operation at a time. Every remote
// call passes through the rate limiter and the retry handler.
type StateWriter struct {
	client   discord.Client
	limiter  *ratelimit.Limiter
	retrier  *retry.Handler
	clock    clock.Clock
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	recorder RunRecorder
}

// WriterOption configures a StateWriter.
type WriterOption func(*StateWriter)

// WithLogger sets the writer's logger.
func WithLogger(logger zerolog.Logger) WriterOption {
	return func(w *StateWriter) { w.logger = logger }
}

// WithMetrics records operation metrics.
func WithMetrics(m *telemetry.Metrics) WriterOption {
	return func(w *StateWriter) { w.metrics = m }
}

// WithTracer wraps applies and operations in spans.
func WithTracer(t *telemetry.Tracer) WriterOption {
	return func(w *StateWriter) { w.tracer = t }
}

// WithRecorder persists every run.
func WithRecorder(r RunRecorder) WriterOption {
	return func(w *StateWriter) { w.recorder = r }
}

// WithClock sets the clock used for durations.
func WithClock(c clock.Clock) WriterOption {
	return func(w *StateWriter) { w.clock = c }
}

// NewStateWriter creates a writer. A nil limiter or retrier is replaced by
// one built with default options. client may be nil for dry runs.
func NewStateWriter(client discord.Client, limiter *ratelimit.Limiter, retrier *retry.Handler, opts ...WriterOption) *StateWriter {
	w := &StateWriter{
		client:  client,
		limiter: limiter,
		retrier: retrier,
		clock:   clock.Real(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "state-writer").Logger()

	if w.limiter == nil {
		lo := ratelimit.DefaultOptions()
		lo.Logger = w.logger
		lo.Metrics = w.metrics
		w.limiter = ratelimit.New(lo)
	}
	if w.retrier == nil {
		ro := retry.DefaultOptions()
		ro.Logger = w.logger
		ro.Metrics = w.metrics
		w.retrier = retry.New(ro)
	}
	return w
}

// Limiter returns the writer's rate limiter.
func (w *StateWriter) Limiter() *ratelimit.Limiter {
	return w.limiter
}

// WriterSettings are the knobs NewWriterFromEnv reads.
type WriterSettings struct {
	Token       string
	APIBase     string
	AuditReason string

	MaxTokens          int
	RefillRate         float64
	CreateCooldown     time.Duration
	MinRequestInterval time.Duration

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewWriterFromEnv builds a REST-backed writer with its own limiter and
// retry handler.
func NewWriterFromEnv(s WriterSettings, opts ...WriterOption) (*StateWriter, error) {
	if s.Token == "" {
		return nil, NewValidationError("bot token is not set")
	}

	// Options are applied twice so the limiter and retrier see the logger
	// and metrics.
	probe := &StateWriter{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(probe)
	}

	restOpts := []discord.RESTOption{discord.WithLogger(probe.logger)}
	if s.APIBase != "" {
		restOpts = append(restOpts, discord.WithBaseURL(s.APIBase))
	}
	if s.AuditReason != "" {
		restOpts = append(restOpts, discord.WithAuditReason(s.AuditReason))
	}
	client := discord.NewRESTClient(s.Token, restOpts...)

	lo := ratelimit.DefaultOptions()
	if s.MaxTokens > 0 {
		lo.MaxTokens = s.MaxTokens
		lo.RefillRate = float64(s.MaxTokens)
	}
	if s.RefillRate > 0 {
		lo.RefillRate = s.RefillRate
	}
	if s.CreateCooldown > 0 {
		lo.CreateCooldown = s.CreateCooldown
	}
	lo.MinRequestInterval = s.MinRequestInterval
	lo.Logger = probe.logger
	lo.Metrics = probe.metrics
	if probe.clock != nil {
		lo.Clock = probe.clock
	}

	ro := retry.DefaultOptions()
	if s.MaxAttempts > 0 {
		ro.MaxAttempts = s.MaxAttempts
	}
	if s.BaseDelay > 0 {
		ro.BaseDelay = s.BaseDelay
	}
	if s.MaxDelay > 0 {
		ro.MaxDelay = s.MaxDelay
	}
	ro.Logger = probe.logger
	ro.Metrics = probe.metrics
	if probe.clock != nil {
		ro.Clock = probe.clock
	}

	return NewStateWriter(client, ratelimit.New(lo), retry.New(ro), opts...), nil
}

// plannedOp is one step of an apply. Exactly one of the diff pointers is set.
type plannedOp struct {
	operation OperationType
	resource  ResourceType
	name      string

	role     *RoleDiff
	category *CategoryDiff
	channel  *ChannelDiff
	perm     *PermissionDiff
}

func (p plannedOp) currentID() string {
	switch {
	case p.role != nil && p.role.Current != nil:
		return p.role.Current.ID
	case p.category != nil && p.category.Current != nil:
		return p.category.Current.ID
	case p.channel != nil && p.channel.Current != nil:
		return p.channel.Current.ID
	case p.perm != nil:
		return p.perm.TargetID
	}
	return ""
}

func (p plannedOp) limiterKind() ratelimit.Kind {
	switch {
	case p.operation == OperationDelete:
		return ratelimit.KindDelete
	case p.operation == OperationCreate:
		return ratelimit.KindCreate
	default:
		return ratelimit.KindUpdate
	}
}

func mutating(op OperationType) bool {
	return op == OperationCreate || op == OperationUpdate
}

// buildPlan orders the diff: role, category and channel writes, then
// overwrites, then deletions from the leaves up.
func buildPlan(diff *ServerDiff) []plannedOp {
	var plan []plannedOp

	for i := range diff.Roles {
		r := &diff.Roles[i]
		if mutating(r.Operation) {
			plan = append(plan, plannedOp{operation: r.Operation, resource: ResourceRole, name: r.Name, role: r})
		}
	}
	for i := range diff.Categories {
		c := &diff.Categories[i]
		if mutating(c.Operation) {
			plan = append(plan, plannedOp{operation: c.Operation, resource: ResourceCategory, name: c.Name, category: c})
		}
	}
	for i := range diff.Channels {
		c := &diff.Channels[i]
		if mutating(c.Operation) {
			plan = append(plan, plannedOp{operation: c.Operation, resource: ResourceChannel, name: c.Name, channel: c})
		}
	}
	for i := range diff.Permissions {
		p := &diff.Permissions[i]
		if p.Operation.IsMutating() {
			plan = append(plan, plannedOp{operation: p.Operation, resource: ResourcePermission, name: permissionName(p), perm: p})
		}
	}
	for i := range diff.Channels {
		c := &diff.Channels[i]
		if c.Operation == OperationDelete {
			plan = append(plan, plannedOp{operation: c.Operation, resource: ResourceChannel, name: c.Name, channel: c})
		}
	}
	for i := range diff.Categories {
		c := &diff.Categories[i]
		if c.Operation == OperationDelete {
			plan = append(plan, plannedOp{operation: c.Operation, resource: ResourceCategory, name: c.Name, category: c})
		}
	}
	for i := range diff.Roles {
		r := &diff.Roles[i]
		if r.Operation == OperationDelete {
			plan = append(plan, plannedOp{operation: r.Operation, resource: ResourceRole, name: r.Name, role: r})
		}
	}
	return plan
}

func permissionName(p *PermissionDiff) string {
	subject := p.SubjectName
	if subject == "" {
		subject = p.SubjectID
	}
	return fmt.Sprintf("%s/%s", p.TargetName, subject)
}

// idIndex resolves names to remote ids, including objects created earlier
// in the same apply.
type idIndex struct {
	roles      map[string]string
	categories map[string]string
	channels   map[string]string
}

func newIDIndex(diff *ServerDiff, guildID string) *idIndex {
	idx := &idIndex{
		roles:      map[string]string{EveryoneRole: guildID},
		categories: make(map[string]string),
		channels:   make(map[string]string),
	}
	for _, r := range diff.Roles {
		if r.Current != nil && r.Operation != OperationDelete {
			idx.roles[r.Name] = r.Current.ID
		}
	}
	for _, c := range diff.Categories {
		if c.Current != nil && c.Operation != OperationDelete {
			idx.categories[c.Name] = c.Current.ID
		}
	}
	for _, c := range diff.Channels {
		if c.Current != nil && c.Operation != OperationDelete {
			idx.channels[c.Name] = c.Current.ID
		}
	}
	for _, p := range diff.Permissions {
		if p.SubjectID != "" && p.SubjectName != "" {
			if _, ok := idx.roles[p.SubjectName]; !ok {
				idx.roles[p.SubjectName] = p.SubjectID
			}
		}
	}
	return idx
}

// Apply executes diff against guildID. Per-operation failures are reported
// in the result; the error return is reserved for unusable arguments.
func (w *StateWriter) Apply(ctx context.Context, diff *ServerDiff, guildID string, opts ApplyOptions) (*ApplyBatchResult, error) {
	if diff == nil {
		return nil, NewValidationError("diff is nil")
	}
	if guildID == "" {
		guildID = diff.GuildID
	}
	if guildID == "" {
		return nil, NewValidationError("guild id is required")
	}
	if !opts.DryRun && w.client == nil {
		return nil, NewPermanentError("no platform client configured", nil).WithCode(ErrCodeInternal)
	}

	plan := buildPlan(diff)
	batch := &ApplyBatchResult{
		RunID:   uuid.New().String(),
		GuildID: guildID,
		DryRun:  opts.DryRun,
		Results: make([]ApplyResult, 0, len(plan)),
	}
	logger := w.logger.With().Str("run_id", batch.RunID).Str("guild_id", guildID).Logger()

	ctx, span := w.tracer.StartApplySpan(ctx, guildID, len(plan), opts.DryRun)
	defer span.End()
	span.SetAttributes(telemetry.AttrRunID.String(batch.RunID))

	start := w.clock.Now()
	w.metrics.RecordApplyStarted()
	run := &ApplyRun{
		ID:        batch.RunID,
		GuildID:   guildID,
		Status:    RunStatusRunning,
		DryRun:    opts.DryRun,
		StartedAt: start,
		Planned:   len(plan),
	}
	w.startRun(ctx, logger, run)

	logger.Info().Int("operations", len(plan)).Bool("dry_run", opts.DryRun).Msg("Starting apply")

	ids := newIDIndex(diff, guildID)
	for i, p := range plan {
		if ctx.Err() != nil {
			batch.Cancelled = true
			batch.Truncated = true
			break
		}

		var result ApplyResult
		if opts.DryRun {
			result = ApplyResult{
				Success:      true,
				Operation:    p.operation,
				ResourceType: p.resource,
				ResourceName: p.name,
				ResourceID:   p.currentID(),
			}
		} else {
			result = w.execute(ctx, guildID, ids, p)
		}

		batch.Results = append(batch.Results, result)
		batch.Summary.Total++
		status := "succeeded"
		if result.Success {
			batch.Summary.Succeeded++
		} else {
			batch.Summary.Failed++
			status = "failed"
			logger.Warn().
				Str("operation", string(result.Operation)).
				Str("resource_type", string(result.ResourceType)).
				Str("resource", result.ResourceName).
				Str("error_code", result.ErrorCode).
				Msg(result.Error)
		}
		if !opts.DryRun {
			w.metrics.RecordOperation(string(p.operation), string(p.resource), status, result.Duration)
		}
		w.recordResult(ctx, logger, batch.RunID, i, result)

		if opts.OnProgress != nil {
			opts.OnProgress(result)
		}

		if !result.Success && !opts.ContinueOnError {
			if ctx.Err() != nil {
				batch.Cancelled = true
			}
			batch.Truncated = i < len(plan)-1
			break
		}
	}

	batch.TotalDuration = w.clock.Now().Sub(start)
	batch.Success = batch.Summary.Failed == 0 && !batch.Truncated && !batch.Cancelled

	runStatus := batch.Status()
	w.metrics.RecordApplyCompleted(string(runStatus), batch.TotalDuration)
	if batch.Success {
		telemetry.RecordSuccess(span)
	} else {
		span.SetAttributes(attribute.String("guildform.run_status", string(runStatus)))
	}

	completed := w.clock.Now()
	run.Status = runStatus
	run.CompletedAt = &completed
	run.Duration = batch.TotalDuration
	run.Summary = batch.Summary
	run.Truncated = batch.Truncated
	w.finishRun(ctx, logger, run)

	logger.Info().
		Str("status", string(runStatus)).
		Int("succeeded", batch.Summary.Succeeded).
		Int("failed", batch.Summary.Failed).
		Bool("truncated", batch.Truncated).
		Dur("duration", batch.TotalDuration).
		Msg("Apply finished")

	return batch, nil
}

// execute runs one operation and never returns an error; failures are
// carried in the result.
func (w *StateWriter) execute(ctx context.Context, guildID string, ids *idIndex, p plannedOp) ApplyResult {
	ctx, span := w.tracer.StartOperationSpan(ctx, string(p.operation), string(p.resource), p.name)
	defer span.End()

	start := w.clock.Now()
	result := ApplyResult{
		Operation:    p.operation,
		ResourceType: p.resource,
		ResourceName: p.name,
	}

	id, attempts, err := w.dispatch(ctx, span, guildID, ids, p)
	result.Duration = w.clock.Now().Sub(start)
	result.Attempts = attempts
	result.ResourceID = id

	if err != nil {
		classified := FromAPIError(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			classified = NewPermanentError("apply interrupted", err).WithCode(ErrCodeCancelled)
		}
		result.Error = err.Error()
		result.ErrorCode = classified.Code
		telemetry.RecordError(span, err)
		span.SetAttributes(telemetry.AttrErrorCode.String(classified.Code))
		w.metrics.RecordError(string(classified.Class), classified.Code)
		return result
	}

	result.Success = true
	if id != "" {
		span.SetAttributes(telemetry.AttrResourceID.String(id))
	}
	telemetry.RecordSuccess(span)
	return result
}

func (w *StateWriter) dispatch(ctx context.Context, span trace.Span, guildID string, ids *idIndex, p plannedOp) (string, int, error) {
	kind := p.limiterKind()

	switch {
	case p.role != nil:
		return w.applyRole(ctx, span, kind, guildID, ids, p.role)
	case p.category != nil:
		return w.applyCategory(ctx, span, kind, guildID, ids, p.category)
	case p.channel != nil:
		return w.applyChannel(ctx, span, kind, guildID, ids, p.channel)
	case p.perm != nil:
		return w.applyPermission(ctx, span, kind, ids, p.perm)
	}
	return "", 0, NewPermanentError("empty operation", nil).WithCode(ErrCodeInternal)
}

func (w *StateWriter) applyRole(ctx context.Context, span trace.Span, kind ratelimit.Kind, guildID string, ids *idIndex, d *RoleDiff) (string, int, error) {
	if d.Operation == OperationDelete {
		id := d.Current.ID
		res := call(ctx, w, span, kind, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.client.DeleteRole(ctx, guildID, id)
		})
		return id, res.Attempts, res.Err
	}

	if d.Desired == nil {
		return "", 0, NewValidationError("role %q has no desired state", d.Name)
	}
	want, err := normalizeRole(d.Desired)
	if err != nil {
		return "", 0, err
	}
	params := discord.RoleParams{
		Name:        d.Desired.Name,
		Color:       want.color,
		Permissions: want.perms.Bitfield(),
		Hoist:       d.Desired.Hoist,
		Mentionable: d.Desired.Mentionable,
	}

	var (
		id  string
		res retry.Result[*discord.Role]
	)
	if d.Operation == OperationCreate {
		res = call(ctx, w, span, kind, func(ctx context.Context) (*discord.Role, error) {
			return w.client.CreateRole(ctx, guildID, params)
		})
		if res.Err != nil {
			return "", res.Attempts, res.Err
		}
		id = res.Value.ID
		ids.roles[d.Name] = id
	} else {
		id = d.Current.ID
		if d.Current.IsEveryone {
			params.Name = EveryoneRole
		}
		res = call(ctx, w, span, kind, func(ctx context.Context) (*discord.Role, error) {
			return w.client.UpdateRole(ctx, guildID, id, params)
		})
		if res.Err != nil {
			return id, res.Attempts, res.Err
		}
	}

	// Position is a separate request, retried on its own so a failed move
	// never repeats the create.
	attempts := res.Attempts
	if pos := d.Desired.Position; pos != nil && *pos != res.Value.Position {
		moved := call(ctx, w, span, ratelimit.KindUpdate, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.client.SetRolePosition(ctx, guildID, id, *pos)
		})
		attempts += moved.Attempts
		if moved.Err != nil {
			return id, attempts, moved.Err
		}
	}
	return id, attempts, nil
}

func (w *StateWriter) applyCategory(ctx context.Context, span trace.Span, kind ratelimit.Kind, guildID string, ids *idIndex, d *CategoryDiff) (string, int, error) {
	if d.Operation == OperationDelete {
		id := d.Current.ID
		res := call(ctx, w, span, kind, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.client.DeleteChannel(ctx, id)
		})
		return id, res.Attempts, res.Err
	}

	if d.Desired == nil {
		return "", 0, NewValidationError("category %q has no desired state", d.Name)
	}
	params := discord.ChannelParams{
		Name:     d.Desired.Name,
		Type:     discord.ChannelTypeCategory,
		Position: d.Desired.Position,
	}

	if d.Operation == OperationCreate {
		res := call(ctx, w, span, kind, func(ctx context.Context) (*discord.Channel, error) {
			return w.client.CreateChannel(ctx, guildID, params)
		})
		if res.Err != nil {
			return "", res.Attempts, res.Err
		}
		ids.categories[d.Name] = res.Value.ID
		return res.Value.ID, res.Attempts, nil
	}

	id := d.Current.ID
	res := call(ctx, w, span, kind, func(ctx context.Context) (*discord.Channel, error) {
		return w.client.UpdateChannel(ctx, id, params)
	})
	return id, res.Attempts, res.Err
}

func (w *StateWriter) applyChannel(ctx context.Context, span trace.Span, kind ratelimit.Kind, guildID string, ids *idIndex, d *ChannelDiff) (string, int, error) {
	if d.Operation == OperationDelete {
		id := d.Current.ID
		res := call(ctx, w, span, kind, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.client.DeleteChannel(ctx, id)
		})
		return id, res.Attempts, res.Err
	}

	if d.Desired == nil {
		return "", 0, NewValidationError("channel %q has no desired state", d.Name)
	}
	channelType, err := d.Desired.ChannelType()
	if err != nil {
		return "", 0, err
	}

	var parentID string
	if d.Desired.Parent != "" {
		id, ok := ids.categories[d.Desired.Parent]
		if !ok {
			return "", 0, NewPermanentError(fmt.Sprintf("parent category %q is not available", d.Desired.Parent), nil).
				WithCode(ErrCodeDependencyFailed).WithResource(d.Name)
		}
		parentID = id
	}

	params := discord.ChannelParams{
		Name:             d.Desired.Name,
		Type:             channelType,
		Topic:            d.Desired.Topic,
		ParentID:         parentID,
		Position:         d.Desired.Position,
		NSFW:             d.Desired.NSFW,
		RateLimitPerUser: d.Desired.Slowmode,
		Bitrate:          d.Desired.Bitrate,
		UserLimit:        d.Desired.UserLimit,
	}

	if d.Operation == OperationCreate {
		res := call(ctx, w, span, kind, func(ctx context.Context) (*discord.Channel, error) {
			return w.client.CreateChannel(ctx, guildID, params)
		})
		if res.Err != nil {
			return "", res.Attempts, res.Err
		}
		ids.channels[d.Name] = res.Value.ID
		return res.Value.ID, res.Attempts, nil
	}

	id := d.Current.ID
	res := call(ctx, w, span, kind, func(ctx context.Context) (*discord.Channel, error) {
		return w.client.UpdateChannel(ctx, id, params)
	})
	return id, res.Attempts, res.Err
}

func (w *StateWriter) applyPermission(ctx context.Context, span trace.Span, kind ratelimit.Kind, ids *idIndex, d *PermissionDiff) (string, int, error) {
	targetID := d.TargetID
	if targetID == "" {
		switch d.TargetType {
		case ResourceCategory:
			targetID = ids.categories[d.TargetName]
		default:
			targetID = ids.channels[d.TargetName]
		}
	}
	if targetID == "" {
		return "", 0, NewPermanentError(fmt.Sprintf("%s %q is not available", d.TargetType, d.TargetName), nil).
			WithCode(ErrCodeDependencyFailed).WithResource(d.TargetName)
	}

	subjectID := d.SubjectID
	if subjectID == "" {
		subjectID = ids.roles[d.SubjectName]
	}
	if subjectID == "" {
		return targetID, 0, NewPermanentError(fmt.Sprintf("role %q is not available", d.SubjectName), nil).
			WithCode(ErrCodeDependencyFailed).WithResource(d.TargetName)
	}

	if d.Operation == OperationDelete {
		res := call(ctx, w, span, kind, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.client.DeleteChannelPermission(ctx, targetID, subjectID)
		})
		return targetID, res.Attempts, res.Err
	}

	params := discord.OverwriteParams{
		ID:    subjectID,
		Type:  d.SubjectType,
		Allow: d.Allow.Bitfield(),
		Deny:  d.Deny.Bitfield(),
	}
	res := call(ctx, w, span, kind, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.client.SetChannelPermission(ctx, targetID, params)
	})
	return targetID, res.Attempts, res.Err
}

// call runs fn under the retry handler. Each attempt waits for the rate
// limiter first, and a rate-limit response closes the limiter for the
// advertised window.
func call[T any](ctx context.Context, w *StateWriter, span trace.Span, kind ratelimit.Kind, fn func(context.Context) (T, error)) retry.Result[T] {
	var (
		attempt  int
		lastErr  error
		failedAt time.Time
	)
	return retry.Execute(ctx, w.retrier, func(ctx context.Context) (T, error) {
		attempt++
		if lastErr != nil {
			telemetry.AddRetryEvent(span, attempt-1, lastErr, w.clock.Now().Sub(failedAt))
		}

		if err := w.limiter.Wait(ctx, kind); err != nil {
			var zero T
			return zero, err
		}
		v, err := fn(ctx)
		if err != nil {
			if apiErr, ok := discord.AsAPIError(err); ok && apiErr.Kind == discord.KindRateLimited {
				w.limiter.HandleRateLimit(apiErr.RetryAfter)
			}
			lastErr, failedAt = err, w.clock.Now()
		}
		return v, err
	})
}

func (w *StateWriter) startRun(ctx context.Context, logger zerolog.Logger, run *ApplyRun) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.StartRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run start")
	}
}

func (w *StateWriter) recordResult(ctx context.Context, logger zerolog.Logger, runID string, seq int, result ApplyResult) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.RecordResult(context.WithoutCancel(ctx), runID, seq, result); err != nil {
		logger.Warn().Err(err).Int("seq", seq).Msg("Failed to record operation result")
	}
}

func (w *StateWriter) finishRun(ctx context.Context, logger zerolog.Logger, run *ApplyRun) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run completion")
	}
}
