// Package lockmgr schedules transactions over the object stores of one
// database.
//
// Requests join a single FIFO queue. A request is granted once no request
// queued before it, granted or waiting, conflicts with it:
//
//   - read-only requests conflict only with read-write requests on an
//     overlapping scope
//   - read-write requests conflict with any request on an overlapping scope
//   - version-change requests conflict with everything
//
// Readers that arrive behind a waiting writer wait too, so writers are not
// starved and conflicting writers run in creation order.
//
// Usage Example:
//
//	m := lockmgr.New()
//	id := uuid.New()
//	if !m.Acquire(id, []string{"books"}, lockmgr.ReadWrite) {
//	    // wait for a later Release to return id
//	}
//	...
//	for _, next := range m.Release(id) {
//	    // start next
//	}
package lockmgr
