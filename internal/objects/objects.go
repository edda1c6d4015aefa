// Package objects holds the shared domain objects and API DTOs.
// Decrypted content types (TopicContent, AnchorCard) exist only in
// request-scoped memory; nothing in this package is ever persisted with
// plaintext content.
package objects

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
