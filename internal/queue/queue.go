package queue

import "context"

// Delivery is one handout of a job id. Token identifies this handout for
// Ack/Nack; a redelivered job arrives with a new or reclaimed token.
type Delivery struct {
	JobID       string
	Token       string
	Redelivered bool
}

// Queue is an at-least-once channel of job ids. A delivery that is neither
// acked nor nacked within the visibility window is handed out again.
type Queue interface {
	Publish(ctx context.Context, jobID string) error
	// Receive returns (nil, nil) when nothing arrived within the block timeout.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Nack makes the job available for redelivery right away.
	Nack(ctx context.Context, d *Delivery) error
}
