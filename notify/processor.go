package notify

import (
	"context"
	"time"
)

// deliveryProcessor implements worker.JobProcessor over *Delivery jobs,
// dispatching to the email or webhook channel and handling the
// requeue-up-to-maxRetries policy itself (worker.Worker always calls
// FailJob with requeue=false and expects the processor to have already
// handled retries, per its own doc comment).
type deliveryProcessor struct {
	dispatcher *Dispatcher
}

func (p *deliveryProcessor) GetJobID(job interface{}) string {
	return job.(*Delivery).ID
}

func (p *deliveryProcessor) GetTimeout(job interface{}) time.Duration {
	return p.dispatcher.deliveryTimeout
}

func (p *deliveryProcessor) Process(ctx context.Context, job interface{}) error {
	d := job.(*Delivery)

	var err error
	switch d.Kind {
	case "email":
		err = p.dispatcher.email.send(d.Email)
	case "webhook":
		err = p.dispatcher.webhook.send(d.Webhook)
	}

	if err == nil {
		p.dispatcher.record(d, "sent", "")
		return nil
	}

	if d.RetryCount < maxRetries {
		d.RetryCount++
		p.dispatcher.record(d, "retrying", err.Error())
		_ = p.dispatcher.queue.Enqueue(d)
		return nil
	}

	p.dispatcher.record(d, "failed", err.Error())
	return nil
}
