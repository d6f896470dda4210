// Package api holds the wire types of the kbroute HTTP API.
//
// # Endpoints
//
//   - POST /query: run a batch of queries, respond with text blocks and traces
//   - GET /query/stream: websocket; one request message in, one record message
//     per completed query out, then a done message
//   - GET /health, /healthz, /ready, /version
//
// Successful /query responses and errors use the envelope
// {success, data, error, timestamp, request_id} defined in api/handlers.
//
// # Authentication
//
// When server.api_keys is set, requests must carry one of the keys:
//
//	X-API-Key: your-api-key
//
// When server.jwt.secret is set, a bearer token signed with HS256 is accepted instead.
// Health endpoints are never authenticated.
package api
