// Package forum harvests topics and replies from a Discourse forum.
// Discourse calls topics "topics" and replies "posts"; this package uses
// the engine's vocabulary instead, so a topic item is a member's post and a
// user action with filter 5 is a reply.
package forum
