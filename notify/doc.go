// Package notify contains the HTTP clients used to tell a user that their
// device has been activated: a user profile lookup and an SMS gateway client.
package notify
