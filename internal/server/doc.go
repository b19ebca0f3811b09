/*
Package server holds the gateway's HTTP front: the chi router, its middleware
chain and the helpers handlers use to enrich the request log.

# Middleware Chain Order

 1. RequestIDMiddleware (first, so every log line carries the id)
 2. LoggingMiddleware (one structured line per request)
 3. Timeout (chi middleware, 504 when the request deadline passes)
 4. Recoverer (chi middleware, panics become 500)
 5. OTel instrumentation (otelhttp)

AuthMiddleware is not global; the runtime applies it to the /admin subtree.

# Log Fields

Handlers call AddLogField and AddError to attach delivery ids, topics and
failures to the request's completion log line instead of logging separately.
*/
package server
