// Package hydrate implements the client half of data resolution. A Resolver
// serves one data-consuming node and obtains its props from the first source
// that has them:
//
//  1. the frame, when an ancestor provided resolved data that is still fresh;
//  2. the payload embedded in the hosting document, read at most once;
//  3. the node's own resolution method, on the client only.
//
// Each Resolver is activated once. When props were found the node is
// re-emitted with the props merged and RemountKey as its key so the host
// remounts it; otherwise the node is emitted unchanged.
//
// Hydrate drives Resolvers over a whole tree: every Boundary node is replaced
// by its activated child, and per-node outcomes are collected in a Report.
package hydrate
