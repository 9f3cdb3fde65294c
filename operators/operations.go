// Package operators implements the graph operations: OverlapSplit,
// RandomNodeSampling and a few helpers. Operations are registered by name in
// init functions so the server can look them up from a request.
package operators

import (
	"context"

	"github.com/juju/errors"
	"github.com/mandelsoft/logging"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

var REALM = logging.DefineRealm("epgm/operators", "graph operations")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

// EntityAccessor gives an operation its inputs and parameters and collects
// its outputs. Logical graphs are passed around as collections with a single
// head.
type EntityAccessor struct {
	env     *dataset.Env
	inputs  map[string]*epgm.GraphCollection
	outputs map[string]*epgm.GraphCollection
	params  map[string]interface{}
}

func NewEntityAccessor(env *dataset.Env, inputs map[string]*epgm.GraphCollection, params map[string]interface{}) *EntityAccessor {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &EntityAccessor{
		env:     env,
		inputs:  inputs,
		outputs: make(map[string]*epgm.GraphCollection),
		params:  params,
	}
}

func (ea *EntityAccessor) Outputs() map[string]*epgm.GraphCollection {
	return ea.outputs
}

func (ea *EntityAccessor) output(name string, c *epgm.GraphCollection) {
	ea.outputs[name] = c
}

func (ea *EntityAccessor) getCollection(name string) (*epgm.GraphCollection, error) {
	c, ok := ea.inputs[name]
	if !ok {
		return nil, errors.NotFoundf("input %q", name)
	}
	return c, nil
}

// getGraph returns an input that must contain exactly one graph.
func (ea *EntityAccessor) getGraph(name string) (*epgm.LogicalGraph, error) {
	c, err := ea.getCollection(name)
	if err != nil {
		return nil, err
	}
	heads, err := c.CollectHeads()
	if err != nil {
		return nil, errors.Annotatef(err, "reading input %q", name)
	}
	if len(heads) != 1 {
		return nil, errors.NotValidf("input %q with %d graph heads as a logical graph", name, len(heads))
	}
	return &epgm.LogicalGraph{Head: heads[0], Vertices: c.Vertices, Edges: c.Edges}, nil
}

func (ea *EntityAccessor) hasParam(name string) bool {
	v, ok := ea.params[name]
	return ok && v != nil
}

func (ea *EntityAccessor) GetFloatParam(name string) (float64, error) {
	v, ok := ea.params[name].(float64)
	if !ok {
		return 0, errors.NotValidf("parameter %q: %#v", name, ea.params[name])
	}
	return v, nil
}

func (ea *EntityAccessor) GetStringParam(name string) (string, error) {
	v, ok := ea.params[name].(string)
	if !ok {
		return "", errors.NotValidf("parameter %q: %#v", name, ea.params[name])
	}
	return v, nil
}

func (ea *EntityAccessor) GetMapParam(name string) (map[string]interface{}, error) {
	v, ok := ea.params[name].(map[string]interface{})
	if !ok {
		return nil, errors.NotValidf("parameter %q: %#v", name, ea.params[name])
	}
	return v, nil
}

// Operation is one entry of the repository. canCompute may be nil, then the
// operation accepts any parameters.
type Operation struct {
	execute    func(ctx context.Context, ea *EntityAccessor) error
	canCompute func(params map[string]interface{}) bool
}

func (op Operation) Execute(ctx context.Context, ea *EntityAccessor) error {
	return op.execute(ctx, ea)
}

func (op Operation) CanCompute(params map[string]interface{}) bool {
	return op.canCompute == nil || op.canCompute(params)
}

var operationRepository = map[string]Operation{}

func Register(name string, op Operation) {
	operationRepository[name] = op
}

func Lookup(name string) (Operation, bool) {
	op, ok := operationRepository[name]
	return op, ok
}

func init() {
	Register("ExampleGraph", Operation{
		execute: func(ctx context.Context, ea *EntityAccessor) error {
			g := epgm.ExampleGraph(dataset.NewJob(ctx, ea.env))
			ea.output("graph", g.AsCollection())
			return nil
		},
	})
	Register("VerifyConsistency", Operation{
		execute: func(ctx context.Context, ea *EntityAccessor) error {
			c, err := ea.getCollection("collection")
			if err != nil {
				return err
			}
			return epgm.Verify(ctx, c)
		},
	})
	Register("SelectGraph", Operation{
		execute: func(ctx context.Context, ea *EntityAccessor) error {
			c, err := ea.getCollection("collection")
			if err != nil {
				return err
			}
			id, err := ea.GetFloatParam("graphId")
			if err != nil {
				return err
			}
			g, err := c.Graph(epgm.ID(id))
			if err != nil {
				return err
			}
			ea.output("graph", g.AsCollection())
			return nil
		},
	})
}
