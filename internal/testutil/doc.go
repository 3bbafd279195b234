// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing model contexts, agent configurations and
// retrieval fakes. They are not intended for production usage.
package testutil
