// Package fallback routes an utterance through the deterministic translator
// and, when no action plan results, through an ordered cascade of
// conversation agents until one gives a useful answer.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/catalog"
	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/redact"
	"github.com/harunnryd/fallback/pkg/registry"
	"github.com/harunnryd/fallback/pkg/translator"
)

// ItemSource yields the current catalog items. *catalog.Catalog implements it.
type ItemSource interface {
	Items(ctx context.Context) []catalog.Item
}

type Outcome string

const (
	OutcomeTranslated     Outcome = "translated"
	OutcomeAgentSucceeded Outcome = "agent_succeeded"
	OutcomeAllFailed      Outcome = "all_failed"
)

const unknownField = "UNKNOWN"

// Attempt is one agent invocation. Response carries the agent's own
// classification; its Speech may have been rewritten for debugging while
// OriginalSpeech keeps what the agent said.
type Attempt struct {
	AgentID        agent.ID
	AgentName      string
	OriginalSpeech string
	Response       agent.Response
	Err            error
	Succeeded      bool
}

type Result struct {
	Outcome     Outcome
	Response    agent.Response
	Plan        *translator.ActionPlan
	Translation translator.Result
	Attempts    []Attempt
}

type Options struct {
	Agents     *agent.Registry
	Catalog    ItemSource
	Translator *translator.Translator
	Executor   registry.Executor
	// Recorder is optional.
	Recorder  Recorder
	Selection Selection
	// UnhelpfulResponses replaces DefaultUnhelpfulResponses when non-nil.
	UnhelpfulResponses []string
	DoneText           string
	FailureMessage     string
	Language           string
	Redact             redact.Redactor
	Logger             *slog.Logger
	Observer           metrics.Observer
	NewConversationID  func() string
}

type Orchestrator struct {
	agents     *agent.Registry
	catalog    ItemSource
	translator *translator.Translator
	executor   registry.Executor
	recorder   Recorder
	unhelpful  unhelpfulSet
	doneText   string
	failure    string
	language   string
	redact     redact.Redactor
	logger     *slog.Logger
	obs        metrics.Observer
	newID      func() string
	settings   atomic.Pointer[Settings]
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Agents == nil {
		return nil, errors.New("fallback: agent registry is required")
	}
	phrases := opts.UnhelpfulResponses
	if phrases == nil {
		phrases = DefaultUnhelpfulResponses
	}
	o := &Orchestrator{
		agents:     opts.Agents,
		catalog:    opts.Catalog,
		translator: opts.Translator,
		executor:   opts.Executor,
		recorder:   opts.Recorder,
		unhelpful:  newUnhelpfulSet(phrases),
		doneText:   orDefault(opts.DoneText, DefaultDoneText),
		failure:    orDefault(opts.FailureMessage, DefaultFailureMessage),
		language:   orDefault(opts.Language, DefaultLanguage),
		redact:     opts.Redact,
		logger:     logging.NewComponentLogger(opts.Logger, "fallback"),
		obs:        metrics.OrNoop(opts.Observer),
		newID:      opts.NewConversationID,
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	o.Apply(opts.Selection)
	return o, nil
}

// Apply resolves a stored selection and makes it current for later requests.
func (o *Orchestrator) Apply(sel Selection) Settings {
	s := resolve(sel, o.agents)
	o.settings.Store(&s)
	o.logger.Info("fallback_settings_applied",
		"primary", string(s.Primary),
		"fallback", string(s.Fallback),
		"debug_level", s.Debug.String(),
	)
	return s
}

func (o *Orchestrator) Settings() Settings {
	return *o.settings.Load()
}

// Process handles one utterance. It never returns an error: total failure
// is an error-classified response carrying the failure message.
func (o *Orchestrator) Process(ctx context.Context, req agent.Request) Result {
	settings := o.Settings()
	if req.ConversationID == "" {
		req.ConversationID = o.newID()
	}
	if req.Language == "" {
		req.Language = o.language
	}
	o.logger.Debug("fallback_process",
		"conversation_id", req.ConversationID,
		"language", req.Language,
		"debug_level", settings.Debug.String(),
		"text", o.redact.Text(req.Text),
	)

	tr, plan := o.translate(ctx, req)
	if plan != nil {
		return Result{
			Outcome: OutcomeTranslated,
			Response: agent.Response{
				Classification: agent.ClassificationOK,
				Speech:         o.doneText,
				ConversationID: req.ConversationID,
			},
			Plan:        plan,
			Translation: tr,
		}
	}

	var attempts []Attempt
	var prev *Attempt
	for _, id := range settings.Agents() {
		at := o.invoke(ctx, id, req, settings.Debug, prev)
		o.record(ctx, req.Text, at)
		attempts = append(attempts, at)
		if at.Succeeded {
			return Result{Outcome: OutcomeAgentSucceeded, Response: at.Response, Translation: tr, Attempts: attempts}
		}
		last := at
		prev = &last
	}
	return Result{Outcome: OutcomeAllFailed, Response: o.failed(req, settings.Debug, attempts), Translation: tr, Attempts: attempts}
}

// translate returns a plan only when it was executed successfully. Panics,
// declines and executor failures all yield a nil plan.
func (o *Orchestrator) translate(ctx context.Context, req agent.Request) (res translator.Result, plan *translator.ActionPlan) {
	if o.translator == nil || o.catalog == nil || o.executor == nil {
		return translator.Result{Reason: translator.ReasonUnsupported}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("translate_panic", "panic", fmt.Sprint(r))
			res, plan = translator.Result{Reason: translator.ReasonUnsupported}, nil
		}
	}()

	res = o.translator.Translate(req.Text, o.catalog.Items(ctx), req.AreaHint)
	if !res.Handled || res.Plan == nil {
		o.logger.Debug("translate_declined", "reason", string(res.Reason), "normalized", o.redact.Text(res.NormalizedText))
		o.event(metrics.EventTranslateDeclined, 0, map[string]string{"reason": string(res.Reason)})
		return res, nil
	}

	p := res.Plan
	if err := o.executor.Execute(ctx, p.Domain, p.Service, p.EntityID, p.ServiceData()); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonActionExecute)
		o.logger.Warn("action_execute_failed",
			"domain", p.Domain,
			"service", p.Service,
			"entity_id", p.EntityID,
			"reason", errorsx.Reason(err),
			"error", err,
		)
		return res, nil
	}
	o.logger.Info("translate_handled", "domain", p.Domain, "service", p.Service, "entity_id", p.EntityID, "score", p.MatchScore)
	o.event(metrics.EventTranslateHandled, p.MatchScore, map[string]string{
		"domain":    p.Domain,
		"service":   p.Service,
		"entity_id": p.EntityID,
	})
	return res, p
}

func (o *Orchestrator) invoke(ctx context.Context, id agent.ID, req agent.Request, debug DebugLevel, prev *Attempt) Attempt {
	name := o.agents.Name(id)
	if name == agent.UnknownName {
		o.logger.Warn("agent_unknown", "agent_id", string(id))
	}

	var resp agent.Response
	var err error
	if a, ok := o.agents.Get(id); ok {
		resp, err = a.Process(ctx, req)
		if err != nil {
			err = errorsx.Wrap(err, errorsx.ReasonAgentProcess)
		}
	} else {
		err = errorsx.Wrap(fmt.Errorf("agent not registered: %s", id), errorsx.ReasonAgentUnknown)
	}
	if err != nil {
		o.logger.Warn("agent_process_failed", "agent_id", string(id), "reason", errorsx.Reason(err), "error", err)
		resp = agent.Response{Classification: agent.ClassificationError, Speech: err.Error()}
	}
	if resp.ConversationID == "" {
		resp.ConversationID = req.ConversationID
	}

	original := resp.Speech
	switch debug {
	case DebugLow:
		resp.Speech = fmt.Sprintf("%s responded with: %s", name, original)
	case DebugVerbose:
		if prev != nil {
			resp.Speech = fmt.Sprintf("%s failed with response: %s Then %s responded with %s",
				orUnknown(prev.AgentName), prev.OriginalSpeech, name, original)
		} else {
			resp.Speech = fmt.Sprintf("%s responded with: %s", name, original)
		}
	}

	at := Attempt{
		AgentID:        id,
		AgentName:      name,
		OriginalSpeech: original,
		Response:       resp,
		Err:            err,
		Succeeded:      !resp.IsError() && !o.unhelpful.contains(original),
	}
	o.logger.Debug("agent_result",
		"agent_id", string(id),
		"agent_name", name,
		"classification", string(resp.Classification),
		"succeeded", at.Succeeded,
		"speech", o.redact.Text(original),
	)
	return at
}

func (o *Orchestrator) record(ctx context.Context, input string, at Attempt) {
	if o.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Debug("result_record_failed", "agent_id", string(at.AgentID), "panic", fmt.Sprint(r))
		}
	}()
	if err := o.recorder.Record(ctx, at.AgentName, input, at); err != nil {
		o.logger.Debug("result_record_failed", "agent_id", string(at.AgentID), "error", err)
	}
}

func (o *Orchestrator) failed(req agent.Request, debug DebugLevel, attempts []Attempt) agent.Response {
	var b strings.Builder
	b.WriteString(o.failure)
	if len(attempts) > 0 {
		switch debug {
		case DebugLow:
			writeDiagnostic(&b, attempts[len(attempts)-1])
		case DebugVerbose:
			for _, at := range attempts {
				writeDiagnostic(&b, at)
			}
		}
	}
	convID := req.ConversationID
	if len(attempts) > 0 {
		convID = attempts[len(attempts)-1].Response.ConversationID
	}
	o.logger.Warn("cascade_failed", "conversation_id", convID, "attempts", len(attempts))
	o.event(metrics.EventCascadeFailed, float64(len(attempts)), nil)
	return agent.Response{Classification: agent.ClassificationError, Speech: b.String(), ConversationID: convID}
}

func writeDiagnostic(b *strings.Builder, at Attempt) {
	b.WriteString("\n")
	b.WriteString(orUnknown(at.AgentName))
	b.WriteString(" responded with: ")
	b.WriteString(at.OriginalSpeech)
}

func (o *Orchestrator) event(name string, value float64, tags map[string]string) {
	o.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

func orUnknown(s string) string {
	if s == "" {
		return unknownField
	}
	return s
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
