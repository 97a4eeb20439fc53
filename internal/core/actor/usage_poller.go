package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/glow2mqtt/internal/core/domain"
	"github.com/berfenger/glow2mqtt/internal/core/events"
	"github.com/berfenger/glow2mqtt/internal/util/actorutil"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	usagePollJobKey = "glow_current_usage"
)

// UsagePollerActor polls /resource/{id}/current for every account resource
// while the session is active and publishes the latest values.
type UsagePollerActor struct {
	behavior     actor.Behavior
	session      *actor.PID
	haDiscovery  *actor.PID
	eventStream  *eventstream.EventStream
	interval     time.Duration
	timeout      time.Duration
	quartz       quartz.Scheduler
	cancelQuartz context.CancelFunc
	hardwareId   string
	resources    []glowmarkt.Resource

	logger *zap.Logger
}

type usagePollTick struct {
}

type usageResult struct {
	resource glowmarkt.Resource
	usage    *glowmarkt.CurrentUsage
	err      error
}

func NewUsagePollerActor(interval time.Duration, session *actor.PID, haDiscovery *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *UsagePollerActor {
	act := &UsagePollerActor{
		behavior:    actor.NewBehavior(),
		session:     session,
		haDiscovery: haDiscovery,
		eventStream: eventStream,
		interval:    interval,
		timeout:     DEFAULT_REQUEST_TIMEOUT,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_USAGE_POLLER, logger),
	}
	act.behavior.Become(act.IdleReceive)
	return act
}

func (state *UsagePollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *UsagePollerActor) IdleReceive(ctx actor.Context) {
	if state.handleCommon(ctx, "idle") {
		return
	}
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("usage_poller@idle started", zap.Duration("interval", state.interval))
		if err := state.startQuartz(ctx); err != nil {
			panic(err)
		}
	case domain.SessionActiveNotification:
		state.logger.Debug("usage_poller@idle SessionActiveNotification", zap.String("hardwareId", msg.HardwareId))
		state.hardwareId = msg.HardwareId
		state.requestResources(ctx)
	case domain.ListResourcesResponse:
		if msg.HasResponseError() {
			state.logger.Warn("usage_poller@idle could not list resources", zap.Error(msg.GetResponseError()))
			return
		}
		state.logger.Info("usage_poller@idle resources discovered", zap.Int("count", len(msg.Resources)))
		state.resources = msg.Resources
		if state.haDiscovery != nil {
			ctx.Send(state.haDiscovery, domain.AnnounceUsageSensorsRequest{
				HardwareId: state.hardwareId,
				Resources:  msg.Resources,
			})
		}
		state.behavior.Become(state.PollingReceive)
		state.poll(ctx)
	case usagePollTick:
		// retry resource discovery on the next tick after a failure
		if state.hardwareId != "" {
			state.requestResources(ctx)
		}
	default:
		state.logger.Debug("usage_poller@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *UsagePollerActor) PollingReceive(ctx actor.Context) {
	if state.handleCommon(ctx, "polling") {
		return
	}
	switch msg := ctx.Message().(type) {
	case usagePollTick:
		state.poll(ctx)
	case usageResult:
		if msg.err != nil {
			state.logger.Warn("usage_poller@polling current usage failed", zap.String("resource", msg.resource.ResourceId), zap.Error(msg.err))
			return
		}
		if evt, ok := events.CurrentUsageUpdateEvent(msg.resource, msg.usage); ok {
			state.eventStream.Publish(evt)
		}
	case domain.SessionActiveNotification:
		// new session, rediscover in case the account changed
		state.hardwareId = msg.HardwareId
		state.behavior.Become(state.IdleReceive)
		state.requestResources(ctx)
	default:
		state.logger.Debug("usage_poller@polling: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *UsagePollerActor) handleCommon(ctx actor.Context, stateName string) bool {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_USAGE_POLLER,
			Healthy: true,
			State:   stateName,
		})
	case *actor.Stopping:
		state.logger.Debug(fmt.Sprintf("usage_poller@%s stopping", stateName))
		state.stopQuartz()
	case *actor.Restarting:
		state.stopQuartz()
	default:
		return false
	}
	return true
}

func (state *UsagePollerActor) requestResources(ctx actor.Context) {
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.session, domain.ListResourcesRequest{}, state.timeout), func(err error) any {
		return domain.ListResourcesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *UsagePollerActor) poll(ctx actor.Context) {
	for _, resource := range state.resources {
		r := resource
		future := ctx.RequestFuture(state.session, domain.CurrentUsageRequest{ResourceId: r.ResourceId}, state.timeout)
		ctx.ReenterAfter(future, func(res any, err error) {
			if err = domain.ResponseErrorOf(res, err); err != nil {
				ctx.Send(ctx.Self(), usageResult{resource: r, err: err})
				return
			}
			ctx.Send(ctx.Self(), usageResult{resource: r, usage: res.(domain.CurrentUsageResponse).Usage})
		})
	}
}

func (state *UsagePollerActor) startQuartz(ctx actor.Context) error {
	sched := quartz.NewStdScheduler()
	quartzCtx, cancel := context.WithCancel(context.Background())
	sched.Start(quartzCtx)

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	tickJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, usagePollTick{})
		return true, nil
	})
	err := sched.ScheduleJob(quartz.NewJobDetail(tickJob, quartz.NewJobKey(usagePollJobKey)), quartz.NewSimpleTrigger(state.interval))
	if err != nil {
		cancel()
		return err
	}
	state.quartz = sched
	state.cancelQuartz = cancel
	return nil
}

func (state *UsagePollerActor) stopQuartz() {
	if state.quartz == nil {
		return
	}
	state.quartz.Stop()
	state.cancelQuartz()
	state.quartz = nil
}
