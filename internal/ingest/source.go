/*
Event sources feeding the pipeline. Two shapes exist: a push source
subscribed to a NATS subject and a poll source walking an HTTP cursor.
Both hand every raw payload to the sink and never block ingest on the
outcome, bad payloads are the sink's problem.
*/
package ingest

import "context"

// Sink consumes one raw swap payload. Satisfied by service.Pipeline.
type Sink interface {
	HandleRaw(ctx context.Context, data []byte)
}

// Source runs until ctx cancel. Run returns nil on a clean stop.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}
