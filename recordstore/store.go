package recordstore

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"

	"recordstore/docstore"
	"recordstore/logging"
	"recordstore/utils"
)

// Store performs record operations through its Manager's live connection.
// Every operation fails with ErrNotConnected while the manager is disconnected.
type Store struct {
	mgr *Manager
}

func (s *Store) collection() string {
	return s.mgr.opts.Collection
}

func (s *Store) log(ctx context.Context, op, id string) logging.Logger {
	l := utils.WithTraceLogger(s.mgr.logger, ctx).WithField("op", op)
	if id != "" {
		l = l.WithField("id", id)
	}
	return l
}

// begin checks the connection, then the ID.
func (s *Store) begin(op, id string, checkID bool) (*ConnectionState, error) {
	st, err := s.mgr.session(op, id)
	if err != nil {
		return nil, err
	}
	if checkID {
		if err := validateID(id); err != nil {
			return nil, &OpError{Op: op, ID: id, Kind: ErrInvalidArgument, Err: err}
		}
	}
	return st, nil
}

// fail wraps cause as kind. A store closed under a running operation reports
// ErrNotConnected, the same as one closed before it started.
func (s *Store) fail(ctx context.Context, op, id string, kind, cause error) error {
	if stderrors.Is(cause, docstore.ErrStoreClosed) {
		kind = ErrNotConnected
	}
	s.log(ctx, op, id).WithError(cause).Error("Record store operation failed")
	return &OpError{Op: op, ID: id, Kind: kind, Err: errors.WithStack(cause)}
}

// Write inserts a record. If a record with the same ID already exists it is
// updated instead. Other insert failures are returned as ErrWrite.
func (s *Store) Write(ctx context.Context, id string, data float64) (Record, error) {
	st, err := s.begin("write", id, true)
	if err != nil {
		return Record{}, err
	}
	if err := validateData(data); err != nil {
		return Record{}, &OpError{Op: "write", ID: id, Kind: ErrInvalidArgument, Err: err}
	}

	rec := Record{ID: id, Data: data}
	opCtx, cancel := s.mgr.opContext(ctx)
	err = st.handle.InsertOne(opCtx, s.collection(), rec)
	cancel()

	if err == nil {
		s.log(ctx, "write", id).Debug("Record inserted")
		return rec, nil
	}
	if !stderrors.Is(err, docstore.ErrDuplicateKey) {
		return Record{}, s.fail(ctx, "write", id, ErrWrite, err)
	}

	s.log(ctx, "write", id).Debug("Record exists, updating instead")
	matched, err := s.update(ctx, st, id, data)
	if err != nil {
		return Record{}, err
	}
	if matched == 0 {
		// deleted between the insert and the update
		return Record{}, s.fail(ctx, "write", id, ErrWrite, ErrRecordNotFound)
	}
	return rec, nil
}

// Update sets data on the record with the given ID. A missing record is not an error.
func (s *Store) Update(ctx context.Context, id string, data float64) error {
	st, err := s.begin("update", id, true)
	if err != nil {
		return err
	}
	if err := validateData(data); err != nil {
		return &OpError{Op: "update", ID: id, Kind: ErrInvalidArgument, Err: err}
	}

	matched, err := s.update(ctx, st, id, data)
	if err != nil {
		return err
	}
	if matched == 0 {
		s.log(ctx, "update", id).Debug("No record matched update")
	}
	return nil
}

func (s *Store) update(ctx context.Context, st *ConnectionState, id string, data float64) (int64, error) {
	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	matched, err := st.handle.UpdateOne(opCtx, s.collection(), docstore.Filter{IDField: id}, docstore.Fields{DataField: data})
	if err != nil {
		return 0, s.fail(ctx, "update", id, ErrUpdate, err)
	}
	return matched, nil
}

// Delete removes the record with the given ID. Deleting a missing record succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	st, err := s.begin("delete", id, true)
	if err != nil {
		return err
	}

	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	deleted, err := st.handle.DeleteOne(opCtx, s.collection(), docstore.Filter{IDField: id})
	if err != nil {
		return s.fail(ctx, "delete", id, ErrDelete, err)
	}
	s.log(ctx, "delete", id).Debugw("Record deleted", "deleted", deleted)
	return nil
}

// Read returns the record with the given ID, or nil if there is none.
func (s *Store) Read(ctx context.Context, id string) (*Record, error) {
	st, err := s.begin("read", id, true)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	var rec Record
	err = st.handle.FindOne(opCtx, s.collection(), docstore.Filter{IDField: id}, &rec)
	if stderrors.Is(err, docstore.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "read", id, ErrRead, err)
	}
	return &rec, nil
}

// ReadAll returns every record in store order. The result is never nil.
func (s *Store) ReadAll(ctx context.Context) ([]Record, error) {
	st, err := s.begin("readAll", "", false)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	var recs []Record
	if err := st.handle.FindMany(opCtx, s.collection(), docstore.Filter{}, &recs); err != nil {
		return nil, s.fail(ctx, "readAll", "", ErrRead, err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// DeleteAll removes every record and reports how many were removed.
func (s *Store) DeleteAll(ctx context.Context) (DeleteSummary, error) {
	st, err := s.begin("deleteAll", "", false)
	if err != nil {
		return DeleteSummary{}, err
	}

	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	deleted, err := st.handle.DeleteMany(opCtx, s.collection(), docstore.Filter{})
	if err != nil {
		return DeleteSummary{}, s.fail(ctx, "deleteAll", "", ErrDelete, err)
	}
	s.log(ctx, "deleteAll", "").Infow("Records deleted", "deleted", deleted)
	return DeleteSummary{DeletedCount: deleted}, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	st, err := s.begin("count", "", false)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := s.mgr.opContext(ctx)
	defer cancel()

	n, err := st.handle.CountDocuments(opCtx, s.collection(), docstore.Filter{})
	if err != nil {
		return 0, s.fail(ctx, "count", "", ErrRead, err)
	}
	return n, nil
}
