// Package dataset is the partitioned collection runtime the graph operators
// are written against. A Dataset is split into Env.Parallelism partitions that
// are processed by one goroutine each. Keyed operations (joins, grouping,
// distinct) repartition both sides by a hash of the key first, so matching
// records always meet in the same partition.
//
// All datasets of one operator invocation share a Job. The first failure of
// any user function, join cardinality check or the context fails the whole
// Job; later operations become no-ops and Job.Err reports the cause. Results
// are only handed out through Collect, which returns the error instead of a
// partial result.
package dataset

import (
	"context"
	"hash/maphash"
	"sync"

	"github.com/juju/errors"
	"github.com/mandelsoft/logging"
	"golang.org/x/sync/errgroup"
)

var REALM = logging.DefineRealm("epgm/dataset", "partitioned collection runtime")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

// Join cardinality violations.
var (
	ErrDanglingReference = errors.New("dangling reference")
	ErrDuplicateKey      = errors.New("duplicate key")
)

// Env describes the execution environment shared by jobs.
type Env struct {
	Parallelism int
}

func NewEnv(parallelism int) *Env {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Env{Parallelism: parallelism}
}

type Job struct {
	ctx  context.Context
	env  *Env
	seed maphash.Seed

	mu  sync.Mutex
	err error
}

func NewJob(ctx context.Context, env *Env) *Job {
	if env == nil {
		env = NewEnv(1)
	}
	return &Job{ctx: ctx, env: env, seed: maphash.MakeSeed()}
}

func (j *Job) Env() *Env {
	return j.env
}

func (j *Job) Context() context.Context {
	return j.ctx
}

// Err returns the first error the job failed with.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Fail marks the job as failed. Only the first error is kept.
func (j *Job) Fail(err error) {
	if err == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		log.Debug("job failed: {{error}}", "error", err)
		j.err = err
	}
}

// Finish ends the job. It returns the error the job failed with, or a job
// for the results that no longer depends on the context of j. Datasets
// rebound to it stay readable after that context is cancelled.
func (j *Job) Finish() (*Job, error) {
	if j.failed() {
		return nil, j.Err()
	}
	return &Job{ctx: context.WithoutCancel(j.ctx), env: j.env, seed: j.seed}, nil
}

func (j *Job) failed() bool {
	if err := j.ctx.Err(); err != nil {
		j.Fail(errors.Annotate(err, "job cancelled"))
	}
	return j.Err() != nil
}

// run executes fn for each partition index in parallel and fails the job with
// the first error. Panics in user code are turned into errors.
func (j *Job) run(n int, fn func(partition int) error) {
	if j.failed() {
		return
	}
	g, ctx := errgroup.WithContext(j.ctx)
	for i := 0; i < n; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("partition %d panicked: %v", i, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	j.Fail(g.Wait())
}
