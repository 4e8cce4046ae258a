package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/llm"
	"github.com/ashureev/goalcoach/internal/validation"
	"github.com/invopop/jsonschema"
)

// Tool names exposed to the model.
const (
	ToolCreateGoal  = "create_goal"
	ToolUpdateGoal  = "update_goal"
	ToolAddProgress = "add_progress"
	ToolListGoals   = "list_goals"
)

var (
	// ErrUnknownTool is returned when the model asks for a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments fail decoding or validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// CreateGoalArgs are the arguments of create_goal.
type CreateGoalArgs struct {
	Title       string  `json:"title" jsonschema:"required" jsonschema_description:"Short, concrete title of the goal" validate:"required,notblank,max=200"`
	Description *string `json:"description,omitempty" jsonschema_description:"Optional longer description or motivation" validate:"omitempty,max=2000"`
	TargetDate  *string `json:"targetDate,omitempty" jsonschema_description:"Optional target date as an ISO date (YYYY-MM-DD)" validate:"omitempty,isodate"`
}

// UpdateGoalArgs are the arguments of update_goal. Only supplied fields change.
type UpdateGoalArgs struct {
	GoalID      string  `json:"goalId" jsonschema:"required" jsonschema_description:"ID of the goal to update" validate:"required"`
	Title       *string `json:"title,omitempty" jsonschema_description:"New title" validate:"omitnil,notblank,max=200"`
	Description *string `json:"description,omitempty" jsonschema_description:"New description" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" jsonschema:"enum=active,enum=completed,enum=abandoned" jsonschema_description:"New status" validate:"omitempty,oneof=active completed abandoned"`
	TargetDate  *string `json:"targetDate,omitempty" jsonschema_description:"New target date as an ISO date (YYYY-MM-DD)" validate:"omitempty,isodate"`
}

// AddProgressArgs are the arguments of add_progress.
type AddProgressArgs struct {
	GoalID    string  `json:"goalId" jsonschema:"required" jsonschema_description:"ID of the goal the progress belongs to" validate:"required"`
	Notes     string  `json:"notes" jsonschema:"required" jsonschema_description:"What the user did or how it went" validate:"required,max=4000"`
	Sentiment *string `json:"sentiment,omitempty" jsonschema:"enum=positive,enum=neutral,enum=challenging" jsonschema_description:"How the user felt about it" validate:"omitempty,oneof=positive neutral challenging"`
}

// ListGoalsArgs are the (empty) arguments of list_goals.
type ListGoalsArgs struct{}

// Callbacks are the side effects tools are bound to. They are supplied per
// request by the caller and already scoped to the authorized user.
type Callbacks struct {
	CreateGoal  func(ctx context.Context, args CreateGoalArgs) (*domain.Goal, error)
	UpdateGoal  func(ctx context.Context, args UpdateGoalArgs) (*domain.Goal, error)
	AddProgress func(ctx context.Context, args AddProgressArgs) error
	ListGoals   func(ctx context.Context) ([]domain.Goal, error)
}

// Tool is one registered tool variant.
type Tool interface {
	Definition() llm.ToolDefinition
	invoke(ctx context.Context, raw json.RawMessage) (any, error)
}

type typedTool[A any] struct {
	name        string
	description string
	run         func(ctx context.Context, args A) (any, error)
}

func (t *typedTool[A]) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  schemaFor[A](),
	}
}

func (t *typedTool[A]) invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args A
	if err := decodeStrict(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := validateArgs(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return t.run(ctx, args)
}

// Registry maps tool names to their bound variants.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry binds the four coach tools to cb. A nil callback leaves its tool
// unregistered.
func NewRegistry(cb Callbacks) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	if cb.CreateGoal != nil {
		r.add(&typedTool[CreateGoalArgs]{
			name:        ToolCreateGoal,
			description: "Create a new goal for the user when they express something they want to achieve.",
			run: func(ctx context.Context, args CreateGoalArgs) (any, error) {
				args.Title = strings.TrimSpace(args.Title)
				if args.TargetDate != nil {
					normalized, _ := domain.NormalizeDate(*args.TargetDate)
					args.TargetDate = &normalized
				}
				return cb.CreateGoal(ctx, args)
			},
		})
	}
	if cb.UpdateGoal != nil {
		r.add(&typedTool[UpdateGoalArgs]{
			name:        ToolUpdateGoal,
			description: "Update an existing goal's title, description, status or target date. Only include fields that change.",
			run: func(ctx context.Context, args UpdateGoalArgs) (any, error) {
				if args.Title != nil {
					title := strings.TrimSpace(*args.Title)
					args.Title = &title
				}
				if args.TargetDate != nil {
					normalized, _ := domain.NormalizeDate(*args.TargetDate)
					args.TargetDate = &normalized
				}
				return cb.UpdateGoal(ctx, args)
			},
		})
	}
	if cb.AddProgress != nil {
		r.add(&typedTool[AddProgressArgs]{
			name:        ToolAddProgress,
			description: "Record a progress note against one of the user's goals.",
			run: func(ctx context.Context, args AddProgressArgs) (any, error) {
				if err := cb.AddProgress(ctx, args); err != nil {
					return nil, err
				}
				return map[string]bool{"success": true}, nil
			},
		})
	}
	if cb.ListGoals != nil {
		r.add(&typedTool[ListGoalsArgs]{
			name:        ToolListGoals,
			description: "List all of the user's goals with their IDs and statuses.",
			run: func(ctx context.Context, _ ListGoalsArgs) (any, error) {
				goals, err := cb.ListGoals(ctx)
				if err != nil {
					return nil, err
				}
				if goals == nil {
					goals = []domain.Goal{}
				}
				return goals, nil
			},
		})
	}
	return r
}

func (r *Registry) add(t Tool) {
	name := t.Definition().Name
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Definitions returns the schemas of every registered tool in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	if r == nil {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Execute runs the named tool and returns its JSON-serialized result. On failure
// the returned string is an error payload suitable for the model and err
// describes the failure; callers should not treat err as fatal.
func (r *Registry) Execute(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	var tool Tool
	if r != nil {
		tool = r.tools[name]
	}
	if tool == nil {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return errorPayload(err), err
	}

	result, err := tool.invoke(ctx, raw)
	if err != nil {
		return errorPayload(err), err
	}
	data, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("marshal %s result: %w", name, err)
		return errorPayload(err), err
	}
	return string(data), nil
}

func errorPayload(err error) string {
	data, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{Success: false, Error: err.Error()})
	return string(data)
}

func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after arguments object")
	}
	return nil
}

func validateArgs(args any) error {
	return validation.Struct(args)
}

var schemaCache sync.Map // reflect.Type -> json.RawMessage

func schemaFor[A any]() json.RawMessage {
	typ := reflect.TypeFor[A]()
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(json.RawMessage)
	}

	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
	}
	var zero A
	data, err := json.Marshal(reflector.Reflect(&zero))
	if err != nil {
		panic(fmt.Sprintf("reflect schema for %s: %v", typ, err))
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("decode schema for %s: %v", typ, err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	data, _ = json.Marshal(schema)

	actual, _ := schemaCache.LoadOrStore(typ, json.RawMessage(data))
	return actual.(json.RawMessage)
}
