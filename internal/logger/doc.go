// Package logger wraps zap with a global sugared logger and context helpers
// (ToContext, FromContext, WithName, WithKV).
//
// Setup mirrors console output into a rotating log file so cron runs leave a
// trace on disk. Call sites log through the context so entries are scoped
// to the command that produced them.
package logger
