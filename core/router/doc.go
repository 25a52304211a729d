// Package router decides which domain handler answers a query.
//
// The classifier asks the generation backends for exactly one label, taking
// the last few turns and the previous route into account so follow-up
// answers stay in the route they belong to. Decoding is strict: anything that
// is not a known label, and any generation failure, yields RouteCombined.
package router
