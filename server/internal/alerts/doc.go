// Package alerts evaluates collector alert rules against peer delivery stats
// and posts notifications to Teams, Slack, or generic HTTP webhooks.
//
// Rules run after every accepted batch. A rule fires once per cooldown for
// each peer and resolves on the first batch for which its condition no
// longer holds.
package alerts
