// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/tasks/:id/ws and receive a status snapshot
// followed by every event of that task. The stream is closed by the server
// once the task reaches a terminal status.
package websocket
