// Package jwt signs and verifies the short-lived challenge tokens handed to a
// client between the password step and the second-factor step of a login.
package jwt
