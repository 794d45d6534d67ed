// Package binding exposes the checkout engine to an embedded UI
// surface over JSON-RPC 2.0 messages. It holds no business logic
// beyond translation and sequencing: requests map one to one onto
// engine operations, and committed state changes fan out as
// notifications tagged with a per-session sequence number.
package binding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
	"github.com/AltanReisoglu/UCP-AGENT/internal/engine"
	"github.com/AltanReisoglu/UCP-AGENT/internal/pipeline"
)

const notificationBuffer = 64

// CheckoutState is the payload attached to every response and
// notification: the full session snapshot plus the sequence number.
type CheckoutState struct {
	Checkout *domain.CheckoutSession `json:"checkout"`
	Seq      int64                   `json:"seq"`
	Warnings []pipeline.Warning      `json:"warnings,omitempty"`
	Order    *domain.Order           `json:"order,omitempty"`
}

type sessionState struct {
	seq      int64
	backlog  []Notification // ring of recent notifications for polling
	channels []chan Notification
}

// Binding wraps the engine for one merchant's embedded checkout
// surface. Register it as an engine listener so mutations made by
// other callers are pushed too.
type Binding struct {
	engine *engine.Engine

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func New(eng *engine.Engine) *Binding {
	return &Binding{
		engine:   eng,
		sessions: make(map[string]*sessionState),
	}
}

// OnSessionChange implements engine.Listener.
func (b *Binding) OnSessionChange(session *domain.CheckoutSession) {
	method := MethodChangeNotice
	switch {
	case session.Status == domain.CheckoutStatusCompleted:
		method = MethodCompleteNotice
	case session.Version == 1:
		method = MethodStart
	}

	b.mu.Lock()
	state := b.state(session.ID)
	state.seq++
	note := Notification{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  CheckoutState{Checkout: session, Seq: state.seq},
	}
	state.backlog = append(state.backlog, note)
	if len(state.backlog) > notificationBuffer {
		state.backlog = state.backlog[len(state.backlog)-notificationBuffer:]
	}
	channels := append([]chan Notification(nil), state.channels...)
	b.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- note:
		default: // slow subscriber, it will catch up via seq on the next push
		}
	}
}

// state returns the per-session record; callers must hold b.mu.
func (b *Binding) state(checkoutID string) *sessionState {
	s, ok := b.sessions[checkoutID]
	if !ok {
		s = &sessionState{}
		b.sessions[checkoutID] = s
	}
	return s
}

func (b *Binding) seq(checkoutID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(checkoutID).seq
}

// Subscribe registers a live notification channel for a checkout. The
// returned cancel function must be called when the subscriber goes
// away.
func (b *Binding) Subscribe(checkoutID string) (<-chan Notification, func()) {
	ch := make(chan Notification, notificationBuffer)

	b.mu.Lock()
	state := b.state(checkoutID)
	state.channels = append(state.channels, ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		state := b.state(checkoutID)
		for i, c := range state.channels {
			if c == ch {
				state.channels = append(state.channels[:i], state.channels[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Missed returns buffered notifications with seq greater than afterSeq,
// for UIs that poll instead of holding a subscription open.
func (b *Binding) Missed(checkoutID string, afterSeq int64) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.state(checkoutID)
	var out []Notification
	for _, note := range state.backlog {
		if cs, ok := note.Params.(CheckoutState); ok && cs.Seq > afterSeq {
			out = append(out, note)
		}
	}
	return out
}

type updateParams struct {
	Patch           *domain.UpdatePatch `json:"patch"`
	ExpectedVersion *int64              `json:"expected_version,omitempty"`
}

type versionParams struct {
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type readyResult struct {
	Delegate []string      `json:"delegate"`
	Checkout CheckoutState `json:"checkout"`
}

// HandleMessage processes one JSON-RPC request for the given checkout
// and returns the response. Malformed input yields a JSON-RPC error
// response, never a transport failure.
func (b *Binding) HandleMessage(ctx context.Context, checkoutID string, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("", CodeParseError, "invalid JSON-RPC message")
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "not a JSON-RPC 2.0 request")
	}

	switch req.Method {
	case MethodReady:
		return b.handleReady(ctx, req, checkoutID)
	case MethodGet:
		return b.handleGet(ctx, req, checkoutID)
	case MethodUpdate:
		return b.handleUpdate(ctx, req, checkoutID)
	case MethodComplete:
		return b.handleComplete(ctx, req, checkoutID)
	case MethodCancel:
		return b.handleCancel(ctx, req, checkoutID)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method)
	}
}

func (b *Binding) handleReady(ctx context.Context, req Request, checkoutID string) Response {
	var params struct {
		Delegate []string `json:"delegate"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid ec.ready params")
		}
	}

	session, err := b.engine.Get(ctx, checkoutID)
	if err != nil {
		return engineError(req.ID, err)
	}

	// No delegations are offered by this merchant yet; echo back empty
	// acceptance so the embedded surface renders its own flows.
	return okResponse(req.ID, readyResult{
		Delegate: []string{},
		Checkout: CheckoutState{Checkout: session, Seq: b.seq(checkoutID)},
	})
}

func (b *Binding) handleGet(ctx context.Context, req Request, checkoutID string) Response {
	session, err := b.engine.Get(ctx, checkoutID)
	if err != nil {
		return engineError(req.ID, err)
	}
	return okResponse(req.ID, CheckoutState{Checkout: session, Seq: b.seq(checkoutID)})
}

func (b *Binding) handleUpdate(ctx context.Context, req Request, checkoutID string) Response {
	var params updateParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Patch == nil {
		return errorResponse(req.ID, CodeInvalidParams, "update requires a patch object")
	}

	result, err := b.engine.Update(ctx, checkoutID, params.Patch, params.ExpectedVersion)
	if err != nil {
		return engineError(req.ID, err)
	}
	return okResponse(req.ID, CheckoutState{
		Checkout: result.Session,
		Seq:      b.seq(checkoutID),
		Warnings: result.Warnings,
	})
}

func (b *Binding) handleComplete(ctx context.Context, req Request, checkoutID string) Response {
	var params versionParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid complete params")
		}
	}

	result, err := b.engine.Complete(ctx, checkoutID, params.ExpectedVersion)
	if err != nil {
		return engineError(req.ID, err)
	}
	return okResponse(req.ID, CheckoutState{
		Checkout: result.Session,
		Seq:      b.seq(checkoutID),
		Warnings: result.Warnings,
		Order:    result.Order,
	})
}

func (b *Binding) handleCancel(ctx context.Context, req Request, checkoutID string) Response {
	var params versionParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid cancel params")
		}
	}

	result, err := b.engine.Cancel(ctx, checkoutID, params.ExpectedVersion)
	if err != nil {
		return engineError(req.ID, err)
	}
	return okResponse(req.ID, CheckoutState{Checkout: result.Session, Seq: b.seq(checkoutID)})
}

func okResponse(id string, result any) Response {
	return Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func errorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

func engineError(id string, err error) Response {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return errorResponse(id, CodeCheckoutNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidState):
		return errorResponse(id, CodeInvalidState, err.Error())
	case errors.Is(err, engine.ErrConflict):
		return errorResponse(id, CodeVersionConflict, err.Error())
	case errors.Is(err, engine.ErrIncompleteRequirements):
		return errorResponse(id, CodeIncompleteRequirements, err.Error())
	case errors.Is(err, engine.ErrValidation):
		return errorResponse(id, CodeInvalidParams, err.Error())
	default:
		return errorResponse(id, CodeInternalError, err.Error())
	}
}
