// Command docflow is the operator CLI. It talks to a running docflowd
// instance over its HTTP API.
package main
