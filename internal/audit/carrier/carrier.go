// Package carrier defines the per-operation identity and request metadata
// stamped on every captured mutation.
//
// A Carrier is built once at the edge (HTTP handler, job runner) and handed to
// the unit of work explicitly. It is immutable: getters only, and
// WithCompletion returns a modified copy.
package carrier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"alumni/internal/audit"
	dErrors "alumni/pkg/domain-errors"
)

// Params are the inputs to New.
type Params struct {
	ActorID    string
	ActorLabel string
	RequestID  string
	ClientIP   string
	UserAgent  string
	HTTPMethod string
	HTTPPath   string
}

// Carrier is the immutable context of one operation.
type Carrier struct {
	actor      audit.Actor
	requestID  string
	clientIP   string
	userAgent  string
	httpMethod string
	httpPath   string

	completed  bool
	httpStatus int
	latency    time.Duration
}

const maxUserAgent = 512

// New validates p and returns a carrier. An actor and a request id are mandatory.
func New(p Params) (Carrier, error) {
	actorID := strings.TrimSpace(p.ActorID)
	if actorID == "" {
		return Carrier{}, dErrors.New(dErrors.CodeValidation, "carrier requires an actor id")
	}
	requestID := strings.TrimSpace(p.RequestID)
	if requestID == "" {
		return Carrier{}, dErrors.New(dErrors.CodeValidation, "carrier requires a request id")
	}
	label := strings.TrimSpace(p.ActorLabel)
	if label == "" {
		label = actorID
	}
	ua := p.UserAgent
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return Carrier{
		actor:      audit.Actor{ID: actorID, Label: label},
		requestID:  requestID,
		clientIP:   strings.TrimSpace(p.ClientIP),
		userAgent:  ua,
		httpMethod: strings.ToUpper(strings.TrimSpace(p.HTTPMethod)),
		httpPath:   p.HTTPPath,
	}, nil
}

// MustNew is New for fixed inputs in jobs and tests.
func MustNew(p Params) Carrier {
	c, err := New(p)
	if err != nil {
		panic(fmt.Sprintf("carrier: %v", err))
	}
	return c
}

// System returns a carrier for background work run by the service itself.
func System(job string) Carrier {
	return MustNew(Params{
		ActorID:    "system",
		ActorLabel: "system:" + job,
		RequestID:  NewRequestID(),
	})
}

// NewRequestID mints a request id for operations that did not arrive over HTTP.
func NewRequestID() string {
	return uuid.NewString()
}

func (c Carrier) IsZero() bool       { return c.requestID == "" }
func (c Carrier) Actor() audit.Actor { return c.actor }
func (c Carrier) ActorID() string    { return c.actor.ID }
func (c Carrier) ActorLabel() string { return c.actor.Label }
func (c Carrier) RequestID() string  { return c.requestID }
func (c Carrier) ClientIP() string   { return c.clientIP }
func (c Carrier) UserAgent() string  { return c.userAgent }
func (c Carrier) HTTPMethod() string { return c.httpMethod }
func (c Carrier) HTTPPath() string   { return c.httpPath }

// Completion returns the response status and latency once WithCompletion was applied.
func (c Carrier) Completion() (status int, latency time.Duration, ok bool) {
	return c.httpStatus, c.latency, c.completed
}

// WithCompletion returns a copy carrying the response status and latency.
func (c Carrier) WithCompletion(status int, latency time.Duration) Carrier {
	c.completed = true
	c.httpStatus = status
	c.latency = latency
	return c
}

// Stamp copies the carrier's fields onto a ledger record.
func (c Carrier) Stamp(rec *audit.MutationRecord) {
	rec.Actor = c.actor
	rec.RequestID = c.requestID
	rec.ClientIP = c.clientIP
	rec.UserAgent = c.userAgent
	rec.HTTPMethod = c.httpMethod
	rec.HTTPPath = c.httpPath
}
