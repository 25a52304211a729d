// Package utils provides shared low-level helpers: a synchronous JSON POST
// helper used by every outbound HTTP integration (generation backends,
// knowledge service, web search) and small string utilities.
package utils
