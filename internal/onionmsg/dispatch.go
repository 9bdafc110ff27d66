package onionmsg

import (
	"context"
	"time"

	logs "github.com/danmuck/onionoffers/internal/logging"
	"golang.org/x/sync/errgroup"
)

// OffersMessageHandler consumes decoded offers messages and may answer with
// a reply to send back along the reply path.
type OffersMessageHandler interface {
	HandleMessage(m OffersMessage) (OffersMessage, bool)
}

type HandlerFunc func(m OffersMessage) (OffersMessage, bool)

func (f HandlerFunc) HandleMessage(m OffersMessage) (OffersMessage, bool) {
	return f(m)
}

// Observer receives per-envelope dispatch events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDecode(kind, outcome string, elapsed time.Duration)
	ObserveReply(kind string)
}

// Envelope is one onion message TLV entry as delivered by the transport.
type Envelope struct {
	Type    uint64 `json:"type"`
	Payload []byte `json:"payload"`
}

// Result reports what happened to the envelope at the same index.
type Result struct {
	Type    uint64
	Outcome Outcome
	Message OffersMessage
	Reply   OffersMessage
	Err     error
}

// ReplyEnvelope frames the reply, if any, for the transport.
func (r Result) ReplyEnvelope() (Envelope, bool) {
	if r.Reply == nil {
		return Envelope{}, false
	}
	return Envelope{Type: TypeOf(r.Reply), Payload: r.Reply.payload()}, true
}

const DefaultWorkers = 4

// Dispatcher decodes envelopes concurrently and hands them to Handler.
type Dispatcher struct {
	Codec    Codec
	Handler  OffersMessageHandler
	Workers  int
	Observer Observer
}

// Dispatch processes envs and returns one Result per envelope in input order.
// Unknown types are skipped without decoding. Envelopes not started before ctx
// is done are reported as canceled, and ctx.Err() is returned with the results.
func (d *Dispatcher) Dispatch(ctx context.Context, envs []Envelope) ([]Result, error) {
	results := make([]Result, len(envs))
	workers := d.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, env := range envs {
		results[i] = Result{Type: env.Type, Outcome: OutcomeCanceled, Err: context.Canceled}
		if gctx.Err() != nil {
			results[i].Err = gctx.Err()
			continue
		}
		i, env := i, env
		g.Go(func() error {
			results[i] = d.dispatchOne(env)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		logs.Warnf("onionmsg.Dispatch canceled envelopes=%d err=%v", len(envs), err)
		return results, err
	}
	return results, nil
}

func (d *Dispatcher) dispatchOne(env Envelope) Result {
	res := Result{Type: env.Type}
	kind, ok := LookupKind(env.Type)
	if !ok {
		res.Outcome = OutcomeUnknownType
		d.observeDecode("unknown", res.Outcome, 0)
		logs.Debugf("onionmsg.Dispatch skip type=%d", env.Type)
		return res
	}

	start := time.Now()
	msg, err := d.Codec.DecodeBytes(env.Type, env.Payload)
	res.Outcome = Classify(err)
	d.observeDecode(kind.Name, res.Outcome, time.Since(start))
	if err != nil {
		res.Err = err
		logs.Debugf("onionmsg.Dispatch type=%d outcome=%s err=%v", env.Type, res.Outcome, err)
		return res
	}
	res.Message = msg

	if d.Handler == nil {
		return res
	}
	if reply, ok := d.Handler.HandleMessage(msg); ok && reply != nil {
		res.Reply = reply
		if d.Observer != nil {
			kind, _ := LookupKind(TypeOf(reply))
			d.Observer.ObserveReply(kind.Name)
		}
	}
	return res
}

func (d *Dispatcher) observeDecode(kind string, outcome Outcome, elapsed time.Duration) {
	if d.Observer != nil {
		d.Observer.ObserveDecode(kind, outcome.String(), elapsed)
	}
}
