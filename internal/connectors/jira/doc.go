// Package jira harvests ticket assignments and ticket comments from the
// Jira Cloud REST API (v3). Pagination follows Jira's startAt/maxResults/
// total contract, so all cursors in this package are absolute offsets.
package jira
