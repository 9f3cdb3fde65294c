package dataset

import (
	"github.com/juju/errors"
)

// Join is an inner equi-join. Both sides are repartitioned by key, the right
// side of each partition is put into a hash table and the left side probes it.
// fn is called once for every matching (left, right) pair.
func Join[L, R any, K comparable, O any](
	left *Dataset[L], right *Dataset[R],
	leftKey func(L) K, rightKey func(R) K,
	fn func(L, R) (O, error)) *Dataset[O] {
	return join(left, right, leftKey, rightKey, fn, false)
}

// JoinUnique is like Join, but every left record must match exactly one right
// record. This is how references (e.g. edge endpoints) are resolved: a left
// record without a match fails the job with ErrDanglingReference, one with
// several matches fails it with ErrDuplicateKey.
func JoinUnique[L, R any, K comparable, O any](
	left *Dataset[L], right *Dataset[R],
	leftKey func(L) K, rightKey func(R) K,
	fn func(L, R) (O, error)) *Dataset[O] {
	return join(left, right, leftKey, rightKey, fn, true)
}

func join[L, R any, K comparable, O any](
	left *Dataset[L], right *Dataset[R],
	leftKey func(L) K, rightKey func(R) K,
	fn func(L, R) (O, error), unique bool) *Dataset[O] {
	job := left.job
	out := newDataset[O](job)
	if !sameJob(job, right.job) {
		return out
	}
	lp := partitionBy(left, leftKey)
	rp := partitionBy(right, rightKey)
	job.run(len(out.parts), func(i int) error {
		table := make(map[K][]R, len(rp[i]))
		for _, r := range rp[i] {
			k := rightKey(r)
			table[k] = append(table[k], r)
		}
		res := make([]O, 0, len(lp[i]))
		for _, l := range lp[i] {
			k := leftKey(l)
			matches := table[k]
			if unique {
				switch {
				case len(matches) == 0:
					return errors.Annotatef(ErrDanglingReference, "no match for key %v", k)
				case len(matches) > 1:
					return errors.Annotatef(ErrDuplicateKey, "%d matches for key %v", len(matches), k)
				}
			}
			for _, r := range matches {
				o, err := fn(l, r)
				if err != nil {
					return err
				}
				res = append(res, o)
			}
		}
		out.parts[i] = res
		return nil
	})
	return out
}

// GroupReduce calls fn once per distinct key with all records of that key.
func GroupReduce[T any, K comparable, O any](
	ds *Dataset[T], key func(T) K,
	fn func(k K, group []T, emit func(O)) error) *Dataset[O] {
	out := newDataset[O](ds.job)
	parts := partitionBy(ds, key)
	ds.job.run(len(out.parts), func(i int) error {
		groups := make(map[K][]T)
		order := make([]K, 0)
		for _, t := range parts[i] {
			k := key(t)
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], t)
		}
		res := make([]O, 0, len(order))
		emit := func(o O) { res = append(res, o) }
		for _, k := range order {
			if err := fn(k, groups[k], emit); err != nil {
				return err
			}
		}
		out.parts[i] = res
		return nil
	})
	return out
}

// Distinct keeps one record per key. Which one is kept is unspecified.
func Distinct[T any, K comparable](ds *Dataset[T], key func(T) K) *Dataset[T] {
	return GroupReduce(ds, key, func(_ K, group []T, emit func(T)) error {
		emit(group[0])
		return nil
	})
}

// Reduce combines all records into one. The result has no records if the
// input had none. fn must be associative and commutative.
func Reduce[T any](ds *Dataset[T], fn func(a, b T) (T, error)) *Dataset[T] {
	job := ds.job
	out := newDataset[T](job)
	partial := make([][]T, len(ds.parts))
	job.run(len(ds.parts), func(i int) error {
		in := ds.parts[i]
		if len(in) == 0 {
			return nil
		}
		acc := in[0]
		for _, t := range in[1:] {
			var err error
			if acc, err = fn(acc, t); err != nil {
				return err
			}
		}
		partial[i] = []T{acc}
		return nil
	})
	if job.Err() != nil {
		return out
	}
	var acc T
	found := false
	for _, p := range partial {
		for _, t := range p {
			if !found {
				acc, found = t, true
				continue
			}
			var err error
			if acc, err = fn(acc, t); err != nil {
				job.Fail(err)
				return out
			}
		}
	}
	if found {
		out.parts[0] = []T{acc}
	}
	return out
}

// CrossWithTiny pairs every record of big with every record of tiny. tiny is
// broadcast to all partitions, so it must be small.
func CrossWithTiny[T, S, O any](big *Dataset[T], tiny *Dataset[S], fn func(T, S) (O, error)) *Dataset[O] {
	job := big.job
	if !sameJob(job, tiny.job) {
		return newDataset[O](job)
	}
	broadcast, err := Collect(tiny)
	if err != nil {
		return newDataset[O](job)
	}
	return MapPartition(big, func(_ int, in []T, emit func(O)) error {
		for _, t := range in {
			for _, s := range broadcast {
				o, err := fn(t, s)
				if err != nil {
					return err
				}
				emit(o)
			}
		}
		return nil
	})
}
