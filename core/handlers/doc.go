// Package handlers implements the domain handlers that turn a routed query
// into one or more domain answers.
//
//   - Tax and Payroll ground their answer in one knowledge domain.
//   - Financial answers from live web search only.
//   - Combined retrieves across both knowledge domains while a web search runs
//     concurrently, and hands both results to the synthesizer.
//
// Handlers never return errors. Retrieval failures become explicit "no
// information" statements and generation failures become degraded answers
// built from the retrieved excerpts, flagged in Result.Degraded.
package handlers
