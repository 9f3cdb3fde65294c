package operators

import (
	"fmt"
	"math/rand/v2"

	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/epgm"
)

// ErrClassifierFailed is the cause of every error returned by an operator
// because the classifier failed on one of the vertices.
var ErrClassifierFailed = errors.New("classifier failed")

// Classifier assigns a vertex to new graphs. It may be called concurrently
// from several partitions and must return the same set for the same vertex
// within one invocation.
type Classifier interface {
	Classify(v *epgm.Vertex) (epgm.IDSet, error)
}

type ClassifierFunc func(v *epgm.Vertex) (epgm.IDSet, error)

func (f ClassifierFunc) Classify(v *epgm.Vertex) (epgm.IDSet, error) {
	return f(v)
}

func classify(c Classifier, v *epgm.Vertex) (ids epgm.IDSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.Errorf("%v", r), ErrClassifierFailed, "classifying vertex %d", v.ID)
		}
	}()
	ids, err = c.Classify(v)
	if err != nil {
		return nil, errors.Wrapf(err, ErrClassifierFailed, "classifying vertex %d", v.ID)
	}
	return ids, nil
}

type mappingClassifier struct {
	value   func(v *epgm.Vertex) (string, bool)
	mapping map[string]epgm.IDSet
}

func (c *mappingClassifier) Classify(v *epgm.Vertex) (epgm.IDSet, error) {
	key, ok := c.value(v)
	if !ok {
		return nil, nil
	}
	// Callers get a copy, the sets are shared between vertices.
	return c.mapping[key].Clone(), nil
}

func toSets(mapping map[string][]epgm.ID) map[string]epgm.IDSet {
	sets := make(map[string]epgm.IDSet, len(mapping))
	for k, ids := range mapping {
		sets[k] = epgm.NewIDSet(ids...)
	}
	return sets
}

// ByLabel puts every vertex into the graphs listed for its label.
func ByLabel(mapping map[string][]epgm.ID) Classifier {
	return &mappingClassifier{
		value:   func(v *epgm.Vertex) (string, bool) { return v.Label, true },
		mapping: toSets(mapping),
	}
}

// ByProperty puts every vertex into the graphs listed for the value of one of
// its properties. Values are compared in their fmt.Sprint form. Vertices
// without the property are not classified.
func ByProperty(key string, mapping map[string][]epgm.ID) Classifier {
	return &mappingClassifier{
		value: func(v *epgm.Vertex) (string, bool) {
			p, ok := v.Properties[key]
			if !ok {
				return "", false
			}
			return fmt.Sprint(p), true
		},
		mapping: toSets(mapping),
	}
}

// RandomClassifier puts every vertex into each of the graphs independently
// with the given probability. The draws are keyed by the seed and the vertex
// ID, so no generator is shared between goroutines and a vertex gets the same
// result however the graph is partitioned.
func RandomClassifier(seed int64, ids []epgm.ID, probability float64) Classifier {
	ids = append([]epgm.ID(nil), ids...)
	return ClassifierFunc(func(v *epgm.Vertex) (epgm.IDSet, error) {
		r := rand.New(rand.NewPCG(uint64(seed), uint64(v.ID)))
		out := epgm.NewIDSet()
		for _, id := range ids {
			if r.Float64() < probability {
				out.Add(id)
			}
		}
		return out, nil
	})
}

func toIDs(v interface{}) ([]epgm.ID, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.NotValidf("graph ID list %#v", v)
	}
	ids := make([]epgm.ID, len(list))
	for i, x := range list {
		f, ok := x.(float64)
		if !ok || f != float64(int64(f)) {
			return nil, errors.NotValidf("graph ID %#v", x)
		}
		ids[i] = epgm.ID(f)
	}
	return ids, nil
}

func toMapping(v interface{}) (map[string][]epgm.ID, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.NotValidf("classifier mapping %#v", v)
	}
	mapping := make(map[string][]epgm.ID, len(m))
	for k, list := range m {
		ids, err := toIDs(list)
		if err != nil {
			return nil, errors.Annotatef(err, "mapping for %q", k)
		}
		mapping[k] = ids
	}
	return mapping, nil
}

// ParseClassifier builds a built-in classifier from its JSON description:
//
//	{"type": "label", "mapping": {"Person": [1, 2]}}
//	{"type": "property", "key": "gender", "mapping": {"Male": [1]}}
//	{"type": "random", "seed": 7, "ids": [1, 2], "probability": 0.5}
func ParseClassifier(desc map[string]interface{}) (Classifier, error) {
	switch t := desc["type"]; t {
	case "label":
		mapping, err := toMapping(desc["mapping"])
		if err != nil {
			return nil, err
		}
		return ByLabel(mapping), nil
	case "property":
		key, ok := desc["key"].(string)
		if !ok {
			return nil, errors.NotValidf("property classifier key %#v", desc["key"])
		}
		mapping, err := toMapping(desc["mapping"])
		if err != nil {
			return nil, err
		}
		return ByProperty(key, mapping), nil
	case "random":
		seed, _ := desc["seed"].(float64)
		p, ok := desc["probability"].(float64)
		if !ok {
			return nil, errors.NotValidf("random classifier probability %#v", desc["probability"])
		}
		ids, err := toIDs(desc["ids"])
		if err != nil {
			return nil, err
		}
		return RandomClassifier(int64(seed), ids, p), nil
	default:
		return nil, errors.NotValidf("classifier type %#v", t)
	}
}
