// Package events publishes domain events as CloudEvents over a watermill
// message bus. An in-process gochannel bus is used for development and tests,
// and an AMQP publisher for deployments.
package events
