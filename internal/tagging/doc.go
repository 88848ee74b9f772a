/*
Package tagging decides, per intercepted browser request, whether to attach a
correlation id and report the request to the relay.

Order of operations:

 1. wait for the correlation allocator to be ready (bounded)
 2. skip requests without a container, or from the default or private
    container, or without headers
 3. reuse a correlation header already on the request, otherwise mint one and
    append it
 4. resolve the container's display name and role
 5. a resolved container without a role raises one notification and is not
    reported
 6. report the context event and return the headers

Nothing here ever rejects the underlying request. The worst case is that it
proceeds untagged and unreported.
*/
package tagging
