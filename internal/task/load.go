package task

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/seq"
)

//go:embed schema.cue
var schemaCUE string

// Format names a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Load reads, gates, decodes, and validates a task document.
// The format is picked from the file extension (.json, .yaml, .yml).
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task document: %w", err)
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return Parse(data, format, filepath.Base(path))
}

// Parse gates raw document bytes against the grammar schema, decodes
// them into a typed tree, and validates every invariant.
// name labels error positions (usually the file name).
func Parse(data []byte, format Format, name string) (*Spec, error) {
	if err := gateSchema(data, format, name); err != nil {
		return nil, err
	}

	raw, err := decodeAny(data, format)
	if err != nil {
		// The schema gate parses the same bytes first, so this only
		// triggers on encodings the gate accepts but Go rejects.
		return nil, &ConfigurationError{Message: "decode document", Err: err}
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, configErrorf("", "document must be an object, got %T", raw)
	}

	spec := &Spec{}
	if nameVal, ok := doc["task_name"].(string); ok {
		spec.Name = nameVal
	}
	if spec.Name == "" {
		return nil, configErrorf("task_name", "task_name is required")
	}

	rngVal, _ := doc["task_rng"].(string)
	switch seq.Kind(rngVal) {
	case "", seq.KindDefault:
		spec.RNG = seq.KindDefault
	case seq.KindHalton:
		spec.RNG = seq.KindHalton
	default:
		return nil, configErrorf("task_rng", "unknown task_rng %q", rngVal)
	}

	content, ok := doc["task_content"]
	if !ok {
		return nil, configErrorf("task_content", "task_content is required")
	}

	root, err := buildNode(content, "task_content")
	if err != nil {
		return nil, err
	}
	spec.Root = root

	if err := Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// gateSchema unifies the document with the embedded #Task definition.
func gateSchema(data []byte, format Format, name string) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal: task schema does not compile: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Task"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("internal: #Task lookup: %w", err)
	}

	var doc cue.Value
	switch format {
	case FormatYAML:
		file, err := cueyaml.Extract(name, data)
		if err != nil {
			return &ConfigurationError{Message: "parse document", Err: err}
		}
		doc = ctx.BuildFile(file)
	default:
		expr, err := cuejson.Extract(name, data)
		if err != nil {
			return &ConfigurationError{Message: "parse document", Err: err}
		}
		doc = ctx.BuildExpr(expr)
	}
	if err := doc.Err(); err != nil {
		return &ConfigurationError{Message: "build document", Err: err}
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return &ConfigurationError{
			Message: "document does not match task grammar",
			Err:     fmt.Errorf("%s", cueerrors.Details(err, nil)),
		}
	}
	return nil
}

// decodeAny decodes the raw bytes into generic Go values.
func decodeAny(data []byte, format Format) (any, error) {
	var raw any
	if format == FormatYAML {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// buildNode converts one [key, value] pair into a typed Node.
// path names the position for error reporting.
func buildNode(raw any, path string) (Node, error) {
	pair, ok := raw.([]any)
	if !ok || len(pair) != 2 {
		return nil, configErrorf(path, "node must be a [type, value] pair, got %T", raw)
	}
	key, ok := pair[0].(string)
	if !ok {
		return nil, configErrorf(path, "node type must be a string, got %T", pair[0])
	}
	value := pair[1]

	switch key {
	case "Timeline":
		items, ok := value.([]any)
		if !ok {
			return nil, configErrorf(path, "Timeline value must be a list of nodes")
		}
		tl := &Timeline{Children: make([]Node, 0, len(items))}
		for i, item := range items {
			child, err := buildNode(item, fmt.Sprintf("%s/Timeline[%d]", path, i))
			if err != nil {
				return nil, err
			}
			tl.Children = append(tl.Children, child)
		}
		return tl, nil

	case "Sleep":
		v, err := buildValue(value, path+"/Sleep")
		if err != nil {
			return nil, err
		}
		return &Sleep{Duration: v}, nil

	case "Trials":
		return buildTrials(value, path+"/Trials")

	case "Choice":
		return buildChoice(value, path+"/Choice")

	case "Response":
		return buildResponse(value, path+"/Response")

	default:
		kind := hal.ActuatorKind(key)
		if !hal.ValidActuatorKind(kind) {
			return nil, configErrorf(path, "unknown node type %q", key)
		}
		v, err := buildValue(value, path+"/"+key)
		if err != nil {
			return nil, err
		}
		return &Action{Actuator: kind, Duration: v}, nil
	}
}

func buildTrials(value any, path string) (Node, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, configErrorf(path, "Trials value must be an object")
	}

	var stop StopPolicy
	if d, ok := m["total_duration"]; ok {
		sec, err := toFloat(d)
		if err != nil {
			return nil, configErrorf(path, "total_duration: %v", err)
		}
		stop.TotalDuration = secondsToDuration(sec)
	}
	if c, ok := m["total_trials"]; ok {
		n, err := toFloat(c)
		if err != nil {
			return nil, configErrorf(path, "total_trials: %v", err)
		}
		stop.TotalCount = int(n)
	}

	content, ok := m["trial_content"]
	if !ok {
		return nil, configErrorf(path, "trial_content is required")
	}
	body, err := buildNode(content, path+"/trial_content")
	if err != nil {
		return nil, err
	}
	return &Trials{Body: body, Stop: stop}, nil
}

func buildChoice(value any, path string) (Node, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, configErrorf(path, "Choice value must be a list of [weight, node] pairs")
	}
	ch := &Choice{Branches: make([]Branch, 0, len(items))}
	for i, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, configErrorf(fmt.Sprintf("%s[%d]", path, i), "branch must be a [weight, node] pair")
		}
		weight, err := toFloat(pair[0])
		if err != nil {
			return nil, configErrorf(fmt.Sprintf("%s[%d]", path, i), "weight: %v", err)
		}
		node, err := buildNode(pair[1], fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		ch.Branches = append(ch.Branches, Branch{Weight: weight, Node: node})
	}
	return ch, nil
}

func buildResponse(value any, path string) (Node, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, configErrorf(path, "Response value must be an object")
	}

	cond, _ := m["condition"].(string)
	pred, err := CompilePredicate(cond)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Message: "bad condition", Err: err}
	}

	timeoutRaw, ok := m["timeout"]
	if !ok {
		return nil, configErrorf(path, "timeout is required")
	}
	timeoutSec, err := toFloat(timeoutRaw)
	if err != nil {
		return nil, configErrorf(path, "timeout: %v", err)
	}

	satRaw, ok := m["on_satisfied"]
	if !ok {
		return nil, configErrorf(path, "on_satisfied is required")
	}
	sat, err := buildNode(satRaw, path+"/on_satisfied")
	if err != nil {
		return nil, err
	}

	toRaw, ok := m["on_timeout"]
	if !ok {
		return nil, configErrorf(path, "on_timeout is required")
	}
	to, err := buildNode(toRaw, path+"/on_timeout")
	if err != nil {
		return nil, err
	}

	return &Response{
		Condition:   pred,
		Timeout:     secondsToDuration(timeoutSec),
		OnSatisfied: sat,
		OnTimeout:   to,
	}, nil
}

// buildValue parses a scalar or [lo, hi] duration in seconds.
func buildValue(raw any, path string) (Value, error) {
	if list, ok := raw.([]any); ok {
		if len(list) != 2 {
			return Value{}, configErrorf(path, "range must be [lo, hi], got %d elements", len(list))
		}
		lo, err := toFloat(list[0])
		if err != nil {
			return Value{}, configErrorf(path, "range lo: %v", err)
		}
		hi, err := toFloat(list[1])
		if err != nil {
			return Value{}, configErrorf(path, "range hi: %v", err)
		}
		return RangeValue(secondsToDuration(lo), secondsToDuration(hi)), nil
	}
	sec, err := toFloat(raw)
	if err != nil {
		return Value{}, configErrorf(path, "duration: %v", err)
	}
	return ScalarValue(secondsToDuration(sec)), nil
}

// toFloat coerces JSON and YAML number representations.
func toFloat(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}
