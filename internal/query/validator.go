package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

// DatasetLookup resolves a dataset id to its current snapshot.
type DatasetLookup interface {
	Lookup(id string) (*models.Dataset, error)
}

// Validator checks query documents against the registered datasets.
type Validator struct {
	datasets DatasetLookup
}

// NewValidator builds a Validator over the given registry.
func NewValidator(datasets DatasetLookup) *Validator {
	return &Validator{datasets: datasets}
}

type validation struct {
	datasetID string
	kind      models.DatasetKind
}

// Validate resolves doc into a Query or returns a validation error. The
// dataset is looked up once, so the returned Query is bound to a single
// snapshot even if the registry changes afterwards.
func (v *Validator) Validate(doc map[string]any) (*Query, error) {
	if doc == nil {
		return nil, invalid("query must be an object")
	}
	for key := range doc {
		switch key {
		case keyWhere, keyOptions, keyTransformations:
		default:
			return nil, invalid(fmt.Sprintf("unexpected query key %q", key))
		}
	}
	where, ok := doc[keyWhere]
	if !ok {
		return nil, invalid("query is missing WHERE")
	}
	options, ok := doc[keyOptions]
	if !ok {
		return nil, invalid("query is missing OPTIONS")
	}

	ids := collectDatasetIDs(doc)
	switch len(ids) {
	case 0:
		return nil, invalid("query does not reference a dataset")
	case 1:
	default:
		return nil, invalid(fmt.Sprintf("cannot query more than one dataset: %s", strings.Join(ids, ", ")))
	}

	dataset, err := v.datasets.Lookup(ids[0])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, fmt.Sprintf("dataset %q is not available", ids[0]))
	}

	state := &validation{datasetID: dataset.ID, kind: dataset.Kind}
	q := &Query{Dataset: dataset}

	if raw, present := doc[keyTransformations]; present {
		transform, err := state.parseTransform(raw)
		if err != nil {
			return nil, err
		}
		q.Transform = transform
	}

	columns, order, err := state.parseOptions(options, q.Transform)
	if err != nil {
		return nil, err
	}
	q.Columns = columns
	q.Order = order

	filter, err := state.parseWhere(where)
	if err != nil {
		return nil, err
	}
	q.Filter = filter

	return q, nil
}

func invalid(reason string) error {
	return appErrors.Clone(appErrors.ErrValidation, reason)
}

// collectDatasetIDs walks every place a dataset key can appear and returns
// the distinct dataset ids in first-seen order. Malformed shapes are skipped
// here and rejected by the structural checks.
func collectDatasetIDs(doc map[string]any) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(key string) {
		idx := strings.Index(key, "_")
		if idx <= 0 {
			return
		}
		id := key[:idx]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if opts, ok := doc[keyOptions].(map[string]any); ok {
		for _, col := range stringItems(opts[keyColumns]) {
			add(col)
		}
		switch order := opts[keyOrder].(type) {
		case string:
			add(order)
		case map[string]any:
			for _, key := range stringItems(order[keyKeys]) {
				add(key)
			}
		}
	}
	if tr, ok := doc[keyTransformations].(map[string]any); ok {
		for _, key := range stringItems(tr[keyGroup]) {
			add(key)
		}
		if rules, ok := tr[keyApply].([]any); ok {
			for _, rule := range rules {
				ruleObj, ok := rule.(map[string]any)
				if !ok {
					continue
				}
				for _, body := range ruleObj {
					bodyObj, ok := body.(map[string]any)
					if !ok {
						continue
					}
					for _, field := range bodyObj {
						if s, ok := field.(string); ok {
							add(s)
						}
					}
				}
			}
		}
	}
	collectFilterIDs(doc[keyWhere], add)
	return ids
}

func collectFilterIDs(node any, add func(string)) {
	obj, ok := node.(map[string]any)
	if !ok {
		return
	}
	for key, val := range obj {
		switch key {
		case "AND", "OR":
			if children, ok := val.([]any); ok {
				for _, child := range children {
					collectFilterIDs(child, add)
				}
			}
		case "NOT":
			collectFilterIDs(val, add)
		case "LT", "GT", "EQ", "IS":
			if cmp, ok := val.(map[string]any); ok {
				for field := range cmp {
					add(field)
				}
			}
		}
	}
}

func stringItems(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *validation) resolveField(key string) (FieldRef, error) {
	idx := strings.Index(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return FieldRef{}, invalid(fmt.Sprintf("invalid key %q", key))
	}
	id, name := key[:idx], key[idx+1:]
	if id != s.datasetID {
		return FieldRef{}, invalid(fmt.Sprintf("cannot query more than one dataset: %s, %s", s.datasetID, id))
	}
	typ, ok := s.kind.FieldTypeOf(name)
	if !ok {
		return FieldRef{}, invalid(fmt.Sprintf("invalid key %q for %s dataset", key, s.kind))
	}
	return FieldRef{Key: key, Name: name, Type: typ}, nil
}

func (s *validation) parseTransform(raw any) (*Transform, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("TRANSFORMATIONS must be an object")
	}
	for key := range obj {
		if key != keyGroup && key != keyApply {
			return nil, invalid(fmt.Sprintf("unexpected TRANSFORMATIONS key %q", key))
		}
	}

	groupRaw, ok := obj[keyGroup].([]any)
	if !ok || len(groupRaw) == 0 {
		return nil, invalid("GROUP must be a non-empty array")
	}
	transform := &Transform{}
	for _, item := range groupRaw {
		key, ok := item.(string)
		if !ok {
			return nil, invalid("GROUP keys must be strings")
		}
		ref, err := s.resolveField(key)
		if err != nil {
			return nil, err
		}
		transform.Group = append(transform.Group, ref)
	}

	applyRaw, ok := obj[keyApply].([]any)
	if !ok {
		return nil, invalid("APPLY must be an array")
	}
	seen := make(map[string]bool, len(applyRaw))
	for _, item := range applyRaw {
		rule, err := s.parseApplyRule(item)
		if err != nil {
			return nil, err
		}
		if seen[rule.Key] {
			return nil, invalid(fmt.Sprintf("duplicate APPLY key %q", rule.Key))
		}
		seen[rule.Key] = true
		transform.Apply = append(transform.Apply, rule)
	}
	return transform, nil
}

func (s *validation) parseApplyRule(raw any) (ApplyRule, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) != 1 {
		return ApplyRule{}, invalid("APPLY rule must be an object with exactly one key")
	}
	var rule ApplyRule
	for applyKey, body := range obj {
		if applyKey == "" || strings.Contains(applyKey, "_") {
			return ApplyRule{}, invalid(fmt.Sprintf("invalid APPLY key %q", applyKey))
		}
		bodyObj, ok := body.(map[string]any)
		if !ok || len(bodyObj) != 1 {
			return ApplyRule{}, invalid(fmt.Sprintf("APPLY body for %q must have exactly one operator", applyKey))
		}
		for opRaw, fieldRaw := range bodyObj {
			op := AggregateOp(opRaw)
			if !op.valid() {
				return ApplyRule{}, invalid(fmt.Sprintf("invalid APPLY operator %q", opRaw))
			}
			key, ok := fieldRaw.(string)
			if !ok {
				return ApplyRule{}, invalid(fmt.Sprintf("APPLY %s target must be a key", op))
			}
			ref, err := s.resolveField(key)
			if err != nil {
				return ApplyRule{}, err
			}
			if op.numericOnly() && ref.Type != models.FieldNumber {
				return ApplyRule{}, invalid(fmt.Sprintf("%s requires a numeric key, got %q", op, key))
			}
			rule = ApplyRule{Key: applyKey, Op: op, Field: ref}
		}
	}
	return rule, nil
}

func (s *validation) parseOptions(raw any, transform *Transform) ([]Column, *Order, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, invalid("OPTIONS must be an object")
	}
	for key := range obj {
		if key != keyColumns && key != keyOrder {
			return nil, nil, invalid(fmt.Sprintf("unexpected OPTIONS key %q", key))
		}
	}

	colsRaw, ok := obj[keyColumns].([]any)
	if !ok || len(colsRaw) == 0 {
		return nil, nil, invalid("COLUMNS must be a non-empty array")
	}

	var groupKeys map[string]FieldRef
	var applyKeys map[string]bool
	if transform != nil {
		groupKeys = make(map[string]FieldRef, len(transform.Group))
		for _, ref := range transform.Group {
			groupKeys[ref.Key] = ref
		}
		applyKeys = make(map[string]bool, len(transform.Apply))
		for _, rule := range transform.Apply {
			applyKeys[rule.Key] = true
		}
	}

	columns := make([]Column, 0, len(colsRaw))
	known := make(map[string]bool, len(colsRaw))
	for _, item := range colsRaw {
		key, ok := item.(string)
		if !ok {
			return nil, nil, invalid("COLUMNS entries must be strings")
		}
		if transform != nil {
			if ref, ok := groupKeys[key]; ok {
				refCopy := ref
				columns = append(columns, Column{Key: key, Field: &refCopy})
			} else if applyKeys[key] {
				columns = append(columns, Column{Key: key})
			} else {
				return nil, nil, invalid(fmt.Sprintf("keys in COLUMNS must be in GROUP or APPLY when TRANSFORMATIONS is present: %q", key))
			}
		} else {
			ref, err := s.resolveField(key)
			if err != nil {
				return nil, nil, err
			}
			columns = append(columns, Column{Key: key, Field: &ref})
		}
		known[key] = true
	}

	orderRaw, present := obj[keyOrder]
	if !present {
		return columns, nil, nil
	}
	order, err := parseOrder(orderRaw, known)
	if err != nil {
		return nil, nil, err
	}
	return columns, order, nil
}

func parseOrder(raw any, columns map[string]bool) (*Order, error) {
	switch o := raw.(type) {
	case string:
		if !columns[o] {
			return nil, invalid(fmt.Sprintf("ORDER key %q must be in COLUMNS", o))
		}
		return &Order{Keys: []string{o}}, nil
	case map[string]any:
		if len(o) != 2 {
			return nil, invalid("ORDER must have exactly dir and keys")
		}
		dir, ok := o[keyDir].(string)
		if !ok {
			return nil, invalid("ORDER dir must be UP or DOWN")
		}
		order := &Order{}
		switch dir {
		case "UP":
		case "DOWN":
			order.Descending = true
		default:
			return nil, invalid(fmt.Sprintf("invalid ORDER direction %q", dir))
		}
		keysRaw, ok := o[keyKeys].([]any)
		if !ok || len(keysRaw) == 0 {
			return nil, invalid("ORDER keys must be a non-empty array")
		}
		for _, item := range keysRaw {
			key, ok := item.(string)
			if !ok {
				return nil, invalid("ORDER keys must be strings")
			}
			if !columns[key] {
				return nil, invalid(fmt.Sprintf("ORDER key %q must be in COLUMNS", key))
			}
			order.Keys = append(order.Keys, key)
		}
		return order, nil
	default:
		return nil, invalid("ORDER must be a key or an object")
	}
}

func (s *validation) parseWhere(raw any) (Filter, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("WHERE must be an object")
	}
	if len(obj) == 0 {
		return All{}, nil
	}
	return s.parseFilter(obj)
}

func (s *validation) parseFilter(raw any) (Filter, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("filter must be an object")
	}
	if len(obj) != 1 {
		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil, invalid(fmt.Sprintf("filter must have exactly one key, got [%s]", strings.Join(keys, ", ")))
	}
	for key, val := range obj {
		switch key {
		case "AND", "OR":
			children, ok := val.([]any)
			if !ok || len(children) == 0 {
				return nil, invalid(fmt.Sprintf("%s must be a non-empty array", key))
			}
			parsed := make([]Filter, 0, len(children))
			for _, child := range children {
				f, err := s.parseFilter(child)
				if err != nil {
					return nil, err
				}
				parsed = append(parsed, f)
			}
			if key == "AND" {
				return And{Children: parsed}, nil
			}
			return Or{Children: parsed}, nil
		case "NOT":
			child, err := s.parseFilter(val)
			if err != nil {
				return nil, err
			}
			return Not{Child: child}, nil
		case "LT", "GT", "EQ":
			ref, value, err := s.comparand(key, val)
			if err != nil {
				return nil, err
			}
			if ref.Type != models.FieldNumber {
				return nil, invalid(fmt.Sprintf("%s requires a numeric key, got %q", key, ref.Key))
			}
			n, ok := numberOf(value)
			if !ok {
				return nil, invalid(fmt.Sprintf("%s value for %q must be a number", key, ref.Key))
			}
			return Compare{Op: CompareOp(key), Field: ref, Value: n}, nil
		case "IS":
			ref, value, err := s.comparand(key, val)
			if err != nil {
				return nil, err
			}
			if ref.Type != models.FieldString {
				return nil, invalid(fmt.Sprintf("IS requires a string key, got %q", ref.Key))
			}
			pattern, ok := value.(string)
			if !ok {
				return nil, invalid(fmt.Sprintf("IS value for %q must be a string", ref.Key))
			}
			m, err := NewMatch(ref, pattern)
			if err != nil {
				return nil, invalid(err.Error())
			}
			return m, nil
		default:
			return nil, invalid(fmt.Sprintf("invalid filter key %q", key))
		}
	}
	return nil, invalid("filter must have exactly one key")
}

func (s *validation) comparand(op string, raw any) (FieldRef, any, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) != 1 {
		return FieldRef{}, nil, invalid(fmt.Sprintf("%s must be an object with exactly one key", op))
	}
	for key, value := range obj {
		ref, err := s.resolveField(key)
		if err != nil {
			return FieldRef{}, nil, err
		}
		return ref, value, nil
	}
	return FieldRef{}, nil, invalid(fmt.Sprintf("%s must be an object with exactly one key", op))
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
