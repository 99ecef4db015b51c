// Package lambda runs the relay as an AWS Lambda function subscribed to the
// EventBridge "ECS Task State Change" rule.
package lambda

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/relay"
	logx "ecsrelay/pkg/logx"
)

// Relay is the part of *relay.Relay the handler needs.
type Relay interface {
	Handle(ctx context.Context, ev ecsevent.TaskEvent) (relay.Outcome, error)
}

// Handler returns the invocation function. A non-nil error fails the
// invocation so it shows up in the function's error metrics; malformed
// events fail too since EventBridge only retries on throttling.
func Handler(r Relay, log logx.Logger) func(ctx context.Context, ev events.CloudWatchEvent) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context, ev events.CloudWatchEvent) error {
		te, err := ecsevent.FromDetail(ev.Region, ev.Detail)
		if err != nil {
			log.Warn("event rejected", logx.String("id", ev.ID), logx.String("detail_type", ev.DetailType), logx.Err(err))
			return err
		}
		out, err := r.Handle(ctx, te)
		if err != nil {
			log.Error("event failed", logx.String("id", ev.ID), logx.String("task", te.Task), logx.Err(err))
			return err
		}
		log.Debug("event handled",
			logx.String("id", ev.ID),
			logx.String("task", out.Task),
			logx.String("action", out.Action),
			logx.String("rule", out.Rule),
			logx.Bool("delivered", out.Delivered),
		)
		return nil
	}
}

// Start hands control to the Lambda runtime. It does not return.
func Start(r Relay, log logx.Logger) {
	awslambda.Start(Handler(r, log))
}
