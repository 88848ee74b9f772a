// Package proxy is an optional plain-HTTP forward proxy that runs each
// request through the tagging pipeline before forwarding it, for clients
// that cannot call the hook API themselves.
//
// The container is identified by the X-Courier-Container request header
// (configurable, stripped before forwarding) or by the username in
// Proxy-Authorization. CONNECT requests are tunnelled without inspection.
package proxy
