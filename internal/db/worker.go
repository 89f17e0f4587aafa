package db

import (
	"context"
	"database/sql"
	"fmt"
)

// TxFn runs inside a transaction owned by the Worker.  Returning an error
// rolls the transaction back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker serialises every SQLite write onto one goroutine so writers never
// contend for the database lock.  Reads go straight to the *sql.DB.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}
}

const defaultQueueDepth = 256

func NewWorker(db *sql.DB) *Worker {
	return NewWorkerSize(db, defaultQueueDepth)
}

func NewWorkerSize(db *sql.DB, depth int) *Worker {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	w := &Worker{
		db:   db,
		jobs: make(chan job, depth),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close stops accepting jobs and waits for queued ones to finish.
func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	// If the caller gives up, the loop still finishes the transaction and
	// the result is dropped into the buffered channel.
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}
		j.ch <- w.run(j)
	}
}

// run executes one job.  A panicking TxFn is rolled back and reported as an
// error so the writer goroutine survives it.
func (w *Worker) run(j job) (err error) {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("tx panic: %v", r)
		}
	}()

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
