// Package resolver implements server-side data resolution over a node tree:
// a level-by-level discovery, fetch, and merge loop that produces one
// serializable snapshot of every resolving node's data.
//
// # Overview
//
// The shape of a node tree is not fully known up front: a composable node
// may render different children once its data has arrived. The resolver
// therefore alternates between two phases until no resolution capability is
// left undiscovered:
//   - Discovery: walk the tree (tree.Walk) with a query collector. Every
//     visited node whose type exposes the configured resolution method is
//     invoked; a non-nil Future is recorded as a query and the walk is told to
//     stop descending into that node, because its subtree is not known yet.
//   - Wave: await every query collected by that walk concurrently. When a
//     query settles, its props are stored under the node's identity and the
//     node is walked again with those props as override, discovering the
//     children that depend on them.
//
// # Ordering
//
// All calls discovered by one walk are issued before any call below them: a
// node's children are not even instantiated until its own data has settled.
// Calls within the same wave race freely; nothing is promised about their
// completion order. For a chain A → B → C where each child only appears once
// its parent has data, resolution takes exactly three waves.
//
// # Identity
//
// Recursive mode keys the snapshot by tree.Identifiable display names. A
// resolving node without an identity fails the whole operation with
// ErrMissingIdentity. Two resolving nodes sharing an identity overwrite each
// other; the entry written last wins.
//
// # Root handling
//
// The root node of a walk is skipped by the collector unless includeRoot is
// set. Recursive walks always skip their root: that node is the one whose
// data was just merged, and collecting it again would resolve it forever.
//
// # Errors
//
// Usage errors are returned synchronously by the entry points. Identity
// errors and rejected Futures abort the whole operation; other calls in
// flight are cancelled through the wave's context and no partial snapshot is
// returned. There is no timeout: a Future that never settles stalls the
// operation unless the caller's context is cancelled.
//
// # Simple mode
//
// ResolveSimple resolves a single component, or the first view of a router
// state that exposes the method, and returns its bare props without walking.
package resolver
