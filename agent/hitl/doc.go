// Package hitl is the human-escalation queue. Escalated conversations become
// tickets that a person can claim and resolve or cancel. Tickets are kept in
// memory or in Redis.
package hitl
