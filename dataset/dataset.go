package dataset

import (
	"hash/maphash"

	"github.com/juju/errors"
)

// Dataset is an immutable, partitioned collection. Every dataset of a job has
// exactly Env.Parallelism partitions. Record order is not significant.
type Dataset[T any] struct {
	job   *Job
	parts [][]T
}

func newDataset[T any](job *Job) *Dataset[T] {
	return &Dataset[T]{job: job, parts: make([][]T, job.env.Parallelism)}
}

func (ds *Dataset[T]) Job() *Job {
	return ds.job
}

func (ds *Dataset[T]) NumPartitions() int {
	return len(ds.parts)
}

// Empty returns a dataset without records.
func Empty[T any](job *Job) *Dataset[T] {
	return newDataset[T](job)
}

// FromSlice distributes items round robin over the partitions.
func FromSlice[T any](job *Job, items []T) *Dataset[T] {
	ds := newDataset[T](job)
	n := len(ds.parts)
	for i := range ds.parts {
		ds.parts[i] = make([]T, 0, len(items)/n+1)
	}
	for i, item := range items {
		ds.parts[i%n] = append(ds.parts[i%n], item)
	}
	return ds
}

// Collect returns all records, or the error the job failed with.
func Collect[T any](ds *Dataset[T]) ([]T, error) {
	if ds.job.failed() {
		return nil, ds.job.Err()
	}
	size := 0
	for _, p := range ds.parts {
		size += len(p)
	}
	out := make([]T, 0, size)
	for _, p := range ds.parts {
		out = append(out, p...)
	}
	return out, nil
}

func Count[T any](ds *Dataset[T]) (int, error) {
	if ds.job.failed() {
		return 0, ds.job.Err()
	}
	n := 0
	for _, p := range ds.parts {
		n += len(p)
	}
	return n, nil
}

// MapPartition calls fn once per partition with the partition index. It is
// the place to keep per-partition state such as a random generator.
func MapPartition[T, U any](ds *Dataset[T], fn func(partition int, in []T, emit func(U)) error) *Dataset[U] {
	out := newDataset[U](ds.job)
	ds.job.run(len(ds.parts), func(i int) error {
		res := make([]U, 0, len(ds.parts[i]))
		err := fn(i, ds.parts[i], func(u U) { res = append(res, u) })
		out.parts[i] = res
		return err
	})
	return out
}

func Map[T, U any](ds *Dataset[T], fn func(T) (U, error)) *Dataset[U] {
	return MapPartition(ds, func(_ int, in []T, emit func(U)) error {
		for _, t := range in {
			u, err := fn(t)
			if err != nil {
				return err
			}
			emit(u)
		}
		return nil
	})
}

func FlatMap[T, U any](ds *Dataset[T], fn func(t T, emit func(U)) error) *Dataset[U] {
	return MapPartition(ds, func(_ int, in []T, emit func(U)) error {
		for _, t := range in {
			if err := fn(t, emit); err != nil {
				return err
			}
		}
		return nil
	})
}

func Filter[T any](ds *Dataset[T], fn func(T) (bool, error)) *Dataset[T] {
	return MapPartition(ds, func(_ int, in []T, emit func(T)) error {
		for _, t := range in {
			keep, err := fn(t)
			if err != nil {
				return err
			}
			if keep {
				emit(t)
			}
		}
		return nil
	})
}

// Union concatenates two datasets partition by partition.
func Union[T any](a, b *Dataset[T]) *Dataset[T] {
	out := newDataset[T](a.job)
	if !sameJob(a.job, b.job) {
		return out
	}
	for i := range out.parts {
		p := make([]T, 0, len(a.parts[i])+len(b.parts[i]))
		p = append(p, a.parts[i]...)
		out.parts[i] = append(p, b.parts[i]...)
	}
	return out
}

func sameJob(a, b *Job) bool {
	if a != b {
		a.Fail(errors.NotValidf("combining datasets of different jobs"))
		return false
	}
	return true
}

// partitionBy redistributes the records so that records with equal keys end
// up in the same partition.
func partitionBy[T any, K comparable](ds *Dataset[T], key func(T) K) [][]T {
	n := len(ds.parts)
	scattered := make([][][]T, n)
	ds.job.run(n, func(i int) error {
		local := make([][]T, n)
		for _, t := range ds.parts[i] {
			b := maphash.Comparable(ds.job.seed, key(t)) % uint64(n)
			local[b] = append(local[b], t)
		}
		scattered[i] = local
		return nil
	})
	out := make([][]T, n)
	if ds.job.Err() != nil {
		return out
	}
	for b := 0; b < n; b++ {
		size := 0
		for i := 0; i < n; i++ {
			size += len(scattered[i][b])
		}
		out[b] = make([]T, 0, size)
		for i := 0; i < n; i++ {
			out[b] = append(out[b], scattered[i][b]...)
		}
	}
	return out
}

// Rebind returns a view of ds that belongs to job. Records are shared, not
// copied. If the environments differ in parallelism the records are
// redistributed. A failure of ds's job carries over to job.
func Rebind[T any](ds *Dataset[T], job *Job) *Dataset[T] {
	if err := ds.job.Err(); err != nil {
		job.Fail(err)
		return newDataset[T](job)
	}
	if len(ds.parts) == job.env.Parallelism {
		return &Dataset[T]{job: job, parts: ds.parts}
	}
	all, err := Collect(ds)
	if err != nil {
		job.Fail(err)
		return newDataset[T](job)
	}
	return FromSlice(job, all)
}

// ForEachPartition calls fn for every partition in parallel and returns the
// error the job failed with. It is how datasets are written out.
func ForEachPartition[T any](ds *Dataset[T], fn func(partition int, in []T) error) error {
	ds.job.run(len(ds.parts), func(i int) error {
		return fn(i, ds.parts[i])
	})
	return ds.job.Err()
}
