// Package mailer provides goMFA.Mailer implementations.
//
// [KafkaMailer] publishes one delivery job per code to a Kafka topic consumed
// by the email worker. [LogMailer] writes codes to a zap logger and is meant
// for local development only.
package mailer
