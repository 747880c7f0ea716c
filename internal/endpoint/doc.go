// Package endpoint implements relation end-points: the lazily loaded
// collection end-point on the many side of a relation, the foreign-key end-point
// on the one side, and the Manager that owns every end-point of an edit
// scope.
//
// A collection end-point is either incomplete (no data, registrations are
// buffered) or complete (a DataManager owns current and original data).
// Edits are commands from the command package; expanding one adds the
// mirror edit on the opposite end so both sides stay in agreement.
package endpoint
