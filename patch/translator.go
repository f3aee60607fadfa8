package patch

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"xdao.co/aincraft/scene"
)

var ErrNotImplemented = errors.New("patch: not implemented")

type Translator struct {
	graph scene.Graph
	log   zerolog.Logger
}

func NewTranslator(g scene.Graph, logger zerolog.Logger) *Translator {
	return &Translator{graph: g, log: logger.With().Str("component", "patch").Logger()}
}

// Apply classifies the whole batch, creates nodes first and then applies the
// remaining operations in order. A failing patch does not stop the batch; all
// failures are returned together.
func (t *Translator) Apply(patches []Patch) error {
	ops := make([]Op, len(patches))
	for i, p := range patches {
		ops[i] = Classify(p)
	}

	var result *multierror.Error
	for i, op := range ops {
		if c, ok := op.(CreateNode); ok {
			if err := t.graph.CreateNode(scene.NewEntity(c.ID)); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", patches[i], err))
			}
		}
	}
	for i, op := range ops {
		if err := t.apply(patches[i], op); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", patches[i], err))
		}
	}
	return result.ErrorOrNil()
}

func (t *Translator) apply(p Patch, op Op) error {
	switch op := op.(type) {
	case CreateNode:
		return nil
	case SetAttribute:
		v, err := t.value(op.ID, op.Key, "", op.Value, op.Splice)
		if err != nil {
			return err
		}
		return t.graph.SetAttribute(op.ID, op.Key, v)
	case SetSubfield:
		v, err := t.value(op.ID, op.Key, op.Field, op.Value, op.Splice)
		if err != nil {
			return err
		}
		return t.graph.SetSubfield(op.ID, op.Key, op.Field, v)
	case Ignored:
		t.log.Debug().Str("patch", p.String()).Str("reason", op.Reason).Msg("ignored")
		return nil
	case Unsupported:
		t.log.Warn().Str("patch", p.String()).Msg("unsupported action")
		return fmt.Errorf("%w: %s", ErrNotImplemented, op.Action)
	default:
		return fmt.Errorf("patch: unknown op %T", op)
	}
}

// value resolves the value to write. A splice into a string the graph already
// holds inserts the text at the index; otherwise the value is written as is.
func (t *Translator) value(id, key, field string, v any, splice *int) (any, error) {
	if splice == nil {
		return v, nil
	}
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("patch: splice value is %T", v)
	}
	r, ok := t.graph.(scene.AttributeReader)
	if !ok {
		return text, nil
	}
	cur, ok := r.Attribute(id, key)
	if !ok {
		return text, nil
	}
	if field != "" {
		m, ok := cur.(map[string]any)
		if !ok {
			return text, nil
		}
		cur = m[field]
	}
	s, ok := cur.(string)
	if !ok {
		return text, nil
	}
	runes := []rune(s)
	i := *splice
	if i > len(runes) {
		i = len(runes)
	}
	return string(runes[:i]) + text + string(runes[i:]), nil
}
