package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/thushan/llamatap/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	return logger, NewStyledLogger(logger, appTheme), cleanup, nil
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithProvider(msg string, provider string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Provider}.Sprint(provider))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithProvider(msg string, provider string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Provider}.Sprint(provider))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithModel(msg string, model string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Model}.Sprint(model))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithModel(msg string, model string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Model}.Sprint(model))
	sl.logger.Warn(styledMsg, args...)
}

// InfoTrust reports whether a host has a pinned certificate or falls back to skipping verification
func (sl *StyledLogger) InfoTrust(host string, pinned bool, args ...any) {
	colour, text := sl.Theme.NoTrust, "verification disabled"
	if pinned {
		colour, text = sl.Theme.Trust, "pinned"
	}
	styledMsg := fmt.Sprintf("TLS trust for %s is %s",
		pterm.Style{sl.Theme.Provider}.Sprint(host),
		pterm.Style{colour}.Sprint(text))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	formatted := make([]any, 0, len(numbers))
	for _, num := range numbers {
		formatted = append(formatted, pterm.Style{sl.Theme.Numbers}.Sprint(num))
	}
	sl.logger.Info(fmt.Sprintf(msg, formatted...))
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithRequestID(requestID string) *StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

// LogContext separates the terse terminal args from the detailed args that only reach the log file
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

func (sl *StyledLogger) WarnWithContext(msg string, provider string, ctx LogContext) {
	sl.logWithContext(slog.LevelWarn, msg, provider, ctx)
}

func (sl *StyledLogger) ErrorWithContext(msg string, provider string, ctx LogContext) {
	sl.logWithContext(slog.LevelError, msg, provider, ctx)
}

func (sl *StyledLogger) logWithContext(level slog.Level, msg string, provider string, lc LogContext) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Provider}.Sprint(provider))
	sl.logger.Log(context.Background(), level, styledMsg, lc.UserArgs...)

	if len(lc.DetailedArgs) == 0 {
		return
	}

	allArgs := make([]any, 0, len(lc.UserArgs)+len(lc.DetailedArgs)+2)
	allArgs = append(allArgs, "provider", provider)
	allArgs = append(allArgs, lc.UserArgs...)
	allArgs = append(allArgs, lc.DetailedArgs...)

	detailedCtx := context.WithValue(context.Background(), DefaultDetailedCookie, true)
	sl.logger.Log(detailedCtx, level, msg, allArgs...)
}
