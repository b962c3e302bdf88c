// Package log builds the slog loggers used by mpasite.
//
// Every logger returned by this package is wrapped in a SecureHandler that
// redacts sensitive request data before it reaches the output:
//   - request headers such as Authorization, Cookie and Set-Cookie
//   - attributes whose key names a credential (password, token, session, ...)
//   - values that look like bearer tokens, JWTs or API keys
//   - credential-like query parameters inside URL and query attributes,
//     which keep their shape: "/?lang=ru&token=***REDACTED***"
//
// # Usage
//
//	logger := log.New(os.Stderr, verbose, jsonLogs)
//	slog.SetDefault(logger)
//
//	logger.Info("request",
//	    "path", r.URL.Path,
//	    "query", r.URL.RawQuery, // token=abc becomes token=***REDACTED***
//	)
package log
