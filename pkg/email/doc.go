// Package email is the outbound email transport used by the notification
// dispatcher for urgent notifications.
//
// Sender has a single method, Send(ctx, to, subject, html) Result. Two
// implementations are provided: a Postmark sender built on
// github.com/mrz1836/postmark, and DevSender which writes messages to a local
// directory. New selects between them from Config.
package email
