// Package github implements the GitHub harvest fetchers: merged pull
// requests, pull-request review comments and weekly contributor stats.
// All requests go through a dual-strategy rate limiter (proactive token
// bucket plus reactive header tracking) and an indefinite capped-backoff
// retry for transport failures, so the engine above never observes a
// throttle or a transient network error.
package github
