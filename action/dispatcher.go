package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/internal/util"
	"github.com/agentpipe/agentpipe/logging"
	"github.com/agentpipe/agentpipe/model"
)

// Decision is the model's verdict for one turn: which actions to run, the
// private reasoning behind them, and reply text when already generated.
type Decision struct {
	Thought string
	Actions []string
	Text    string
}

// Options configures a Dispatcher.
type Options struct {
	Logger logging.Logger
}

// Dispatcher selects and executes actions for a turn. Selection asks a large
// object model; execution runs the chosen actions sequentially, isolating
// each failure so one broken action never aborts the rest of the turn.
type Dispatcher struct {
	registry *Registry
	logger   logging.Logger
}

// NewDispatcher creates a dispatcher over an action registry.
func NewDispatcher(registry *Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Dispatcher{registry: registry, logger: opts.Logger}
}

// Decide asks the model which actions to take for the message given the
// composed state. Model transport failure is returned as an error; output
// that cannot be parsed degrades to a plain REPLY carrying the raw text, so
// a sloppy model still produces a response.
func (d *Dispatcher) Decide(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State) (Decision, error) {
	tmpl := defaultActionDecisionTemplate
	if actx.Character != nil {
		if t := actx.Character.Template(TemplateActionDecision); t != "" {
			tmpl = t
		}
	}

	values := promptValues(actx, st)
	values["actionNames"] = strings.Join(d.registry.Names(), ", ")

	prompt, err := util.RenderTemplate(tmpl, values)
	if err != nil {
		return Decision{}, fmt.Errorf("render decision prompt: %w", err)
	}

	res, err := actx.Model.Invoke(ctx, core.ModelObjectLarge, core.ModelParams{Prompt: prompt})
	if err != nil {
		return Decision{}, fmt.Errorf("action decision: %w", err)
	}

	obj := res.Object
	if obj == nil {
		if parsed, perr := model.ParseJSONBlock(res.Text); perr == nil {
			obj = parsed
		}
	}
	if obj == nil {
		return d.fallbackDecision(res.Text), nil
	}

	dec := Decision{
		Thought: model.StringField(obj, "thought"),
		Actions: normalizeActions(model.StringsField(obj, "actions")),
		Text:    model.StringField(obj, "text"),
	}
	if len(dec.Actions) == 0 {
		if dec.Text != "" {
			dec.Actions = []string{"REPLY"}
		} else {
			dec.Actions = []string{"IGNORE"}
		}
	}
	return dec, nil
}

// fallbackDecision recovers a usable decision from unparseable model output:
// known action names mentioned literally in the text are taken as the
// selection, otherwise the whole text becomes a plain reply.
func (d *Dispatcher) fallbackDecision(raw string) Decision {
	d.logger.Warn("action decision output unparseable, falling back")
	upper := strings.ToUpper(raw)
	var found []string
	for _, name := range d.registry.Names() {
		if strings.Contains(upper, strings.ToUpper(name)) {
			found = append(found, name)
		}
	}
	if len(found) > 0 {
		return Decision{Actions: found}
	}
	return Decision{Actions: []string{"REPLY"}, Text: strings.TrimSpace(raw)}
}

// Execute runs the decided actions in order. Unknown names are skipped with
// a warning, Validate misses are skipped silently, and handler errors or
// panics are recorded on the action-completed event without stopping later
// actions.
func (d *Dispatcher) Execute(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State, dec Decision, cb core.Callback) {
	opts := map[string]any{
		"thought": dec.Thought,
		"text":    dec.Text,
	}

	for _, name := range dec.Actions {
		a, ok := d.registry.Resolve(name)
		if !ok {
			d.logger.Warn("unknown action requested", "action", name)
			continue
		}
		if !a.Validate(ctx, actx, msg) {
			d.logger.Debug("action not eligible", "action", a.Name())
			continue
		}

		actionID := core.NewID()
		start := time.Now()
		actx.EmitEvent(ctx, core.EventActionStarted, core.ActionEventPayload{
			Agent:      actx,
			ActionID:   actionID,
			ActionName: a.Name(),
			StartTime:  start.UnixMilli(),
			Source:     msg.Content.Source,
		})

		err := d.runOne(ctx, a, actx, msg, st, opts, cb)
		d.observeRun(a.Name(), time.Since(start), err)

		actx.EmitEvent(ctx, core.EventActionCompleted, core.ActionEventPayload{
			Agent:      actx,
			ActionID:   actionID,
			ActionName: a.Name(),
			StartTime:  start.UnixMilli(),
			Completed:  err == nil,
			Error:      err,
			Source:     msg.Content.Source,
		})
	}
}

// observeRun records the handler outcome. A pipeline logger gets the timing
// helper plus a stack snapshot on failure; a plain logger gets the message
// and error.
func (d *Dispatcher) observeRun(name string, dur time.Duration, err error) {
	if pl, ok := d.logger.(*logging.PipelineLogger); ok {
		pl.LogActionRun(name, dur, err)
		if err != nil {
			pl.ErrorWithStack(err, "action %s handler failed", name)
		}
		return
	}
	if err != nil {
		d.logger.Error("action handler failed", "action", name, "error", err)
	}
}

func (d *Dispatcher) runOne(ctx context.Context, a core.Action, actx *core.AgentContext, msg *core.Memory, st *core.State, opts map[string]any, cb core.Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()
	return a.Handle(ctx, actx, msg, st, opts, cb)
}

func normalizeActions(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, strings.ToUpper(n))
		}
	}
	return out
}

// promptValues flattens composed state into template variables, always
// exposing the assembled context and agent name.
func promptValues(actx *core.AgentContext, st *core.State) map[string]string {
	values := make(map[string]string, len(st.Values)+2)
	for k, v := range st.Values {
		values[k] = v
	}
	values["context"] = st.Text
	values["agentName"] = actx.AgentName()
	return values
}
