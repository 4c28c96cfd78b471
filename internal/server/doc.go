// Package server implements the HTTP listener of the kryodeploy webhook
// receiver.
//
// Routes:
//   - POST /webhook: GitHub push deliveries, HMAC-SHA256 verified
//   - POST /deploy: manual trigger behind a bearer token
//   - GET /health, GET /status: liveness and last deploy state
//   - GET /deploys, GET /deploys/{id}: deploy history
//   - GET /metrics: Prometheus exposition
//
// Deliveries are verified, filtered and parsed synchronously. The deploy
// itself runs in the background through internal/deployment, which allows
// one deploy at a time; a second request while one runs gets 409.
package server
