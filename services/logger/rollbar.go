package logsvc

import (
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

// NewZapLogger returns the local logger: development config in debug mode, production config otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	if conf.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// RollbarLogger reports entries to Rollbar and writes them locally through zap.
type RollbarLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{zl: zl.WithOptions(zap.AddCallerSkip(1))}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, []zap.Field) {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	fields := make([]zap.Field, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// set logged in User
			if !usrSet { // only set one User
				rollbar.SetPerson(strconv.FormatInt(a.ID, 10), a.Username, a.Email)
				fields = append(fields, zap.Int64("user_id", a.ID), zap.String("username", a.Username))
				usrSet = true
			}
			continue
		case error:
			fields = append(fields, zap.Error(a))
		case map[string]interface{}:
			fields = append(fields, zap.Any("data", a))
		default:
			fields = append(fields, zap.Any("arg", a))
		}
		newArgs = append(newArgs, arg)
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs, fields
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.zl.Debug(msg, fields...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.zl.Info(msg, fields...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.zl.Warn(msg, fields...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.zl.Error(msg, fields...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.zl.Fatal(msg, fields...)
}

// Sync flushes buffered entries.
func (l RollbarLogger) Sync() {
	rollbar.Wait()
	_ = l.zl.Sync()
}
